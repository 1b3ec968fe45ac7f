// Package worker applies entry events to the spreadsheet mirror.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"revenue/internal/amqp"
	"revenue/internal/core"
	applog "revenue/internal/log"
	"revenue/internal/sheets"
	"revenue/internal/storage"
)

// EntryReader is the slice of storage.EntryStore the worker needs.
type EntryReader interface {
	Get(ctx context.Context, kind core.Kind, ownerID, id string) (core.Entry, error)
}

// SyncWorker mirrors stored entries into a spreadsheet.
type SyncWorker struct {
	store  EntryReader
	mirror sheets.Mirror
	logger *applog.Logger

	synced  atomic.Int64
	removed atomic.Int64
	skipped atomic.Int64
}

// Stats counts the events handled since start.
type Stats struct {
	Synced  int64
	Removed int64
	Skipped int64
}

func NewSyncWorker(store EntryReader, mirror sheets.Mirror, logger *applog.Logger) *SyncWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &SyncWorker{
		store:  store,
		mirror: mirror,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEntryEvent reloads the entry on upsert so the mirror always gets the
// latest stored state. An entry deleted in the meantime is skipped; its own
// delete event removes the row.
func (w *SyncWorker) HandleEntryEvent(ctx context.Context, ev amqp.EntryEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	if ev.Op == amqp.OpDelete {
		return w.remove(ctx, ev)
	}
	return w.sync(ctx, ev)
}

func (w *SyncWorker) sync(ctx context.Context, ev amqp.EntryEvent) error {
	entry, err := w.store.Get(ctx, ev.Kind, ev.OwnerID, ev.ID)
	if errors.Is(err, storage.ErrNotFound) {
		w.skipped.Add(1)
		w.logger.InfoContext(ctx, "Entry no longer exists, skipping sync",
			applog.FieldKind, ev.Kind,
			applog.FieldEntryID, ev.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s %s: %w", ev.Kind, ev.ID, err)
	}

	if err := w.mirror.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("mirror %s %s: %w", ev.Kind, ev.ID, err)
	}

	w.synced.Add(1)
	w.logger.InfoContext(ctx, "Successfully synced entry",
		applog.FieldOperation, applog.OpSync,
		applog.FieldKind, entry.Kind,
		applog.FieldEntryID, entry.ID,
		applog.FieldAmountCents, entry.Amount.Cents,
		applog.FieldEntryDate, entry.Date)
	return nil
}

func (w *SyncWorker) remove(ctx context.Context, ev amqp.EntryEvent) error {
	if err := w.mirror.Remove(ctx, ev.Kind, ev.ID); err != nil {
		return fmt.Errorf("remove %s %s from mirror: %w", ev.Kind, ev.ID, err)
	}

	w.removed.Add(1)
	w.logger.InfoContext(ctx, "Successfully removed entry from mirror",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldKind, ev.Kind,
		applog.FieldEntryID, ev.ID)
	return nil
}

func (w *SyncWorker) Stats() Stats {
	return Stats{
		Synced:  w.synced.Load(),
		Removed: w.removed.Load(),
		Skipped: w.skipped.Load(),
	}
}
