package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const maxDescriptionLen = 200

type (
	// Kind selects which collection an entry lives in.
	Kind string

	Money struct {
		Cents int64
	}

	// Entry is a single income or expense record.
	Entry struct {
		ID          string
		Kind        Kind
		Amount      Money
		Description string
		Date        string // calendar date, YYYY-MM-DD once normalized
		OwnerID     string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// EntryInput carries the user-editable fields of an entry.
	EntryInput struct {
		Amount      Money
		Description string
		Date        string
	}

	User struct {
		ID           string
		Email        string
		Name         string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Profile is the public view of a user.
	Profile struct {
		ID        string
		Email     string
		Name      string
		CreatedAt time.Time
	}
)

var (
	ErrInvalidKind        = errors.New("invalid entry kind")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	ErrEmptyDate          = errors.New("empty date")
	ErrInvalidDate        = errors.New("invalid date")
)

// ValidationError reports which field failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ParseKind accepts both the singular kind and its collection name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "incomes":
		return Income, nil
	case "expense", "expenses":
		return Expense, nil
	default:
		return "", ErrInvalidKind
	}
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// Collection returns the logical collection name for the kind.
func (k Kind) Collection() string {
	switch k {
	case Income:
		return "incomes"
	case Expense:
		return "expenses"
	default:
		return ""
	}
}

func (k Kind) String() string {
	return string(k)
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the fields a user submits. The date is normalized in place.
func (in *EntryInput) Validate() error {
	if err := in.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return invalid("description", ErrEmptyDescription)
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLen {
		return invalid("description", ErrDescriptionTooLong)
	}
	if strings.TrimSpace(in.Date) == "" {
		return invalid("date", ErrEmptyDate)
	}
	if _, ok := ParseDate(in.Date); !ok {
		return invalid("date", ErrInvalidDate)
	}
	in.Date = NormalizeDate(in.Date)
	return nil
}

func (e Entry) Validate() error {
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	in := e.Input()
	return in.Validate()
}

// Input returns the editable fields of e.
func (e Entry) Input() EntryInput {
	return EntryInput{Amount: e.Amount, Description: e.Description, Date: e.Date}
}

// Apply replaces the editable fields, leaving ID and owner untouched.
func (e Entry) Apply(in EntryInput) Entry {
	e.Amount = in.Amount
	e.Description = in.Description
	e.Date = in.Date
	return e
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}
