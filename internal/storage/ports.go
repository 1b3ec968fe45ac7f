// Package storage defines the persistence ports shared by every backend.
//
// Entries live in one logical collection per kind ("incomes", "expenses").
// Every entry read or write is keyed by the owner as well as the id, so a
// backend never returns or touches another user's documents.
package storage

import (
	"context"
	"errors"
	"time"

	"revenue/internal/core"
)

var (
	// ErrNotFound is returned when no document matches both id and owner.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key (user email) already exists.
	ErrDuplicate = errors.New("duplicate key")
)

type (
	EntryStore interface {
		// Insert assigns an id and timestamps and returns the stored entry.
		Insert(ctx context.Context, e core.Entry) (core.Entry, error)
		// FindByOwner returns all entries of kind owned by ownerID, in store order.
		FindByOwner(ctx context.Context, kind core.Kind, ownerID string) ([]core.Entry, error)
		Get(ctx context.Context, kind core.Kind, ownerID, id string) (core.Entry, error)
		// Replace overwrites amount, description and date of an existing entry.
		Replace(ctx context.Context, e core.Entry) (core.Entry, error)
		Delete(ctx context.Context, kind core.Kind, ownerID, id string) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		UserByEmail(ctx context.Context, email string) (core.User, error)
		UserByID(ctx context.Context, id string) (core.User, error)
		UpdateUserName(ctx context.Context, id, name string) error
	}

	// TokenStore remembers signed-out tokens until they expire.
	TokenStore interface {
		RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}

	Store interface {
		EntryStore
		UserStore
		TokenStore
		Close() error
	}
)
