package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"revenue/internal/core"
)

// Op is what happened to the entry.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

var ErrInvalidEvent = errors.New("invalid entry event")

// EntryEvent announces a mutation. It carries identifiers only; consumers
// reload the entry from the store.
type EntryEvent struct {
	Op        Op        `json:"op"`
	Kind      core.Kind `json:"kind"`
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryEvent(op Op, e core.Entry) EntryEvent {
	return EntryEvent{
		Op:        op,
		Kind:      e.Kind,
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Timestamp: time.Now().UTC(),
	}
}

func (e EntryEvent) Validate() error {
	if e.Op != OpUpsert && e.Op != OpDelete {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidEvent, e.Op)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.ID == "" || e.OwnerID == "" {
		return fmt.Errorf("%w: missing id or owner", ErrInvalidEvent)
	}
	return nil
}

func (e EntryEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EntryEventFromJSON decodes and validates a message body. The kind may be
// given as a collection name ("incomes").
func EntryEventFromJSON(data []byte) (EntryEvent, error) {
	var e EntryEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return EntryEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if kind, err := core.ParseKind(string(e.Kind)); err == nil {
		e.Kind = kind
	}
	if err := e.Validate(); err != nil {
		return EntryEvent{}, err
	}
	return e, nil
}
