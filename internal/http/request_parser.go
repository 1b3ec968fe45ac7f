package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"revenue/internal/core"
)

const maxBodyBytes = 1 << 20

var (
	ErrMalformedBody = errors.New("malformed request body")
	errRequired      = errors.New("is required")
	errMonthRange    = errors.New("must be between 1 and 12")
)

// Request DTOs. Domain rules stay in the services; tags only catch what is
// structurally missing or obviously out of range.
type (
	credentialsRequest struct {
		Email    string `json:"email" validate:"required,max=254"`
		Password string `json:"password" validate:"required"`
		Name     string `json:"name" validate:"max=100"`
	}

	profileRequest struct {
		Name string `json:"name" validate:"max=100"`
	}

	entryRequest struct {
		Amount      amountField `json:"amount" validate:"required"`
		Description string      `json:"description" validate:"required,max=200"`
		Date        string      `json:"date" validate:"required"`
	}
)

// amountField accepts both "12.50" and 12.5 and keeps the literal text, so
// rounding happens once in core.ParseAmount.
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("amount must be a number or a decimal string")
	}
	*a = amountField(n.String())
	return nil
}

func (r entryRequest) input() (core.EntryInput, error) {
	amount, err := core.ParseAmount(string(r.Amount))
	if err != nil {
		return core.EntryInput{}, &core.ValidationError{Field: "amount", Err: err}
	}
	return core.EntryInput{Amount: amount, Description: r.Description, Date: r.Date}, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads one JSON object into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrMalformedBody)
		}
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformedBody)
	}

	return validationError(s.validate.Struct(dst))
}

// validationError turns the first validator failure into a core.ValidationError.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fe := errs[0]
	var reason error
	switch fe.Tag() {
	case "required":
		reason = errRequired
	case "max":
		reason = fmt.Errorf("must be at most %s characters", fe.Param())
	default:
		reason = fmt.Errorf("failed %s validation", fe.Tag())
	}
	return &core.ValidationError{Field: fe.Field(), Err: reason}
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Period holds the optional year and month query parameters.
type Period struct {
	Year  int
	Month int
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// ParsePeriod reads year and month from query. Both are optional but a
// month needs a year.
func ParsePeriod(query url.Values) (Period, error) {
	var p Period
	var err error

	if p.Year, err = intParam(query, "year"); err != nil {
		return Period{}, err
	}
	if p.Month, err = intParam(query, "month"); err != nil {
		return Period{}, err
	}
	if p.Month != 0 && p.Year == 0 {
		return Period{}, &core.ValidationError{Field: "year", Err: errRequired}
	}
	return p, nil
}

func intParam(query url.Values, name string) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: name, Err: errors.New("must be an integer")}
	}
	return n, nil
}
