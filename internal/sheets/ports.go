package sheets

import (
	"context"

	"revenue/internal/core"
)

// Ports for the spreadsheet mirror.
type (
	// EntryWriter writes an entry into its row, creating the row if needed.
	EntryWriter interface {
		Upsert(ctx context.Context, e core.Entry) error
	}

	// EntryRemover drops the row of an entry. Removing an unknown ID is not an error.
	EntryRemover interface {
		Remove(ctx context.Context, kind core.Kind, id string) error
	}

	Mirror interface {
		EntryWriter
		EntryRemover
	}
)
