// Package ledger is the session-scoped entry service: CRUD over incomes and
// expenses plus the totals and dashboard computed from them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"revenue/internal/amqp"
	"revenue/internal/auth"
	"revenue/internal/cache"
	"revenue/internal/core"
	applog "revenue/internal/log"
	"revenue/internal/storage"
)

var (
	// ErrNotAuthenticated is returned before any I/O when the session is empty.
	ErrNotAuthenticated = auth.ErrNotAuthenticated
	ErrInvalidPeriod    = errors.New("invalid year or month")
)

// Publisher announces entry mutations to other processes.
type Publisher interface {
	PublishEntryEvent(ctx context.Context, event amqp.EntryEvent) error
}

type Config struct {
	CacheTTL  time.Duration
	CacheSize int
}

type Service struct {
	store     storage.EntryStore
	publisher Publisher
	summaries cache.Cache[core.Summary]
	reports   cache.Cache[[]core.MonthSummary]
	cleaners  []cache.Cleaner
	logger    *applog.Logger
	events    *applog.StructuredLogger

	// generations counts invalidations per owner. A summary computed from
	// reads that started before an invalidation is not cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewService wires the service. publisher may be nil; a zero CacheTTL
// disables summary caching.
func NewService(store storage.EntryStore, publisher Publisher, cfg Config, logger *applog.Logger) *Service {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	s := &Service{
		store:       store,
		publisher:   publisher,
		logger:      logger.WithComponent(applog.ComponentLedger),
		events:      applog.NewStructuredLogger(logger),
		generations: make(map[string]uint64),
	}
	if cfg.CacheTTL > 0 {
		summaries := cache.NewLRUCache[core.Summary](cfg.CacheSize, cfg.CacheTTL)
		reports := cache.NewLRUCache[[]core.MonthSummary](cfg.CacheSize, cfg.CacheTTL)
		s.summaries, s.reports = summaries, reports
		s.cleaners = []cache.Cleaner{summaries, reports}
	}
	return s
}

// CacheStats adds up hit and miss counters of the dashboard and report caches.
func (s *Service) CacheStats() cache.Stats {
	var total cache.Stats
	if s.summaries != nil {
		total = s.summaries.Stats()
	}
	if s.reports != nil {
		r := s.reports.Stats()
		total.Hits += r.Hits
		total.Misses += r.Misses
		total.Size += r.Size
	}
	return total
}

// Cleaners returns the caches a cache.Manager should sweep.
func (s *Service) Cleaners() []cache.Cleaner {
	return s.cleaners
}

func check(session auth.Session, kind core.Kind) error {
	if session.IsZero() {
		return ErrNotAuthenticated
	}
	if !kind.Valid() {
		return core.ErrInvalidKind
	}
	return nil
}

// Create validates in, tags it with the session's user and stores it.
func (s *Service) Create(ctx context.Context, session auth.Session, kind core.Kind, in core.EntryInput) (core.Entry, error) {
	if err := check(session, kind); err != nil {
		return core.Entry{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Entry{}, err
	}

	entry := core.Entry{Kind: kind, OwnerID: session.UserID}.Apply(in)
	stored, err := s.store.Insert(ctx, entry)
	if err != nil {
		return core.Entry{}, fmt.Errorf("create %s: %w", kind, err)
	}

	s.afterMutation(ctx, applog.OpCreate, amqp.OpUpsert, stored)
	return stored, nil
}

// List returns the user's entries of kind, latest date first.
func (s *Service) List(ctx context.Context, session auth.Session, kind core.Kind) ([]core.Entry, error) {
	if err := check(session, kind); err != nil {
		return nil, err
	}

	entries, err := s.store.FindByOwner(ctx, kind, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Collection(), err)
	}
	for i := range entries {
		entries[i].Date = core.NormalizeDate(entries[i].Date)
	}
	core.SortByDateDesc(entries)
	return entries, nil
}

func (s *Service) Get(ctx context.Context, session auth.Session, kind core.Kind, id string) (core.Entry, error) {
	if err := check(session, kind); err != nil {
		return core.Entry{}, err
	}

	e, err := s.store.Get(ctx, kind, session.UserID, id)
	if err != nil {
		return core.Entry{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	e.Date = core.NormalizeDate(e.Date)
	return e, nil
}

// Update replaces amount, description and date. ID and owner never change
// and the last write wins.
func (s *Service) Update(ctx context.Context, session auth.Session, kind core.Kind, id string, in core.EntryInput) (core.Entry, error) {
	if err := check(session, kind); err != nil {
		return core.Entry{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Entry{}, err
	}

	entry := core.Entry{ID: id, Kind: kind, OwnerID: session.UserID}.Apply(in)
	stored, err := s.store.Replace(ctx, entry)
	if err != nil {
		return core.Entry{}, fmt.Errorf("update %s %s: %w", kind, id, err)
	}

	s.afterMutation(ctx, applog.OpUpdate, amqp.OpUpsert, stored)
	return stored, nil
}

func (s *Service) Delete(ctx context.Context, session auth.Session, kind core.Kind, id string) error {
	if err := check(session, kind); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, kind, session.UserID, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}

	s.afterMutation(ctx, applog.OpDelete, amqp.OpDelete, core.Entry{ID: id, Kind: kind, OwnerID: session.UserID})
	return nil
}

func (s *Service) Total(ctx context.Context, session auth.Session, kind core.Kind) (core.Money, error) {
	entries, err := s.List(ctx, session, kind)
	if err != nil {
		return core.Money{}, err
	}
	return core.Total(entries), nil
}

func (s *Service) MonthlyTotal(ctx context.Context, session auth.Session, kind core.Kind, year, month int) (core.Money, error) {
	if err := checkPeriod(year, month); err != nil {
		return core.Money{}, err
	}
	entries, err := s.List(ctx, session, kind)
	if err != nil {
		return core.Money{}, err
	}
	return core.MonthlyTotal(entries, year, month), nil
}

// Dashboard summarizes every income and expense of the user.
func (s *Service) Dashboard(ctx context.Context, session auth.Session) (core.Summary, error) {
	if session.IsZero() {
		return core.Summary{}, ErrNotAuthenticated
	}

	key := session.UserID + "|dashboard"
	if s.summaries != nil {
		if summary, ok := s.summaries.Get(key); ok {
			return summary, nil
		}
	}

	gen := s.generation(session.UserID)
	incomes, expenses, err := s.fetchBoth(ctx, session)
	if err != nil {
		return core.Summary{}, err
	}

	summary := core.Summarize(incomes, expenses)
	if s.summaries != nil && s.generation(session.UserID) == gen {
		s.summaries.Set(key, summary)
	}
	s.logger.DebugContext(ctx, "Computed dashboard",
		applog.FieldOperation, applog.OpSummary,
		applog.FieldUserID, session.UserID)
	return summary, nil
}

// Report returns the twelve monthly rows of year.
func (s *Service) Report(ctx context.Context, session auth.Session, year int) ([]core.MonthSummary, error) {
	if session.IsZero() {
		return nil, ErrNotAuthenticated
	}
	if err := checkPeriod(year, 1); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s|report|%d", session.UserID, year)
	if s.reports != nil {
		if rows, ok := s.reports.Get(key); ok {
			return append([]core.MonthSummary(nil), rows...), nil
		}
	}

	gen := s.generation(session.UserID)
	incomes, expenses, err := s.fetchBoth(ctx, session)
	if err != nil {
		return nil, err
	}

	rows := core.MonthlyBreakdown(incomes, expenses, year)
	if s.reports != nil && s.generation(session.UserID) == gen {
		s.reports.Set(key, append([]core.MonthSummary(nil), rows...))
	}
	return rows, nil
}

// fetchBoth loads incomes and expenses concurrently; the first failure
// cancels the other read.
func (s *Service) fetchBoth(ctx context.Context, session auth.Session) (incomes, expenses []core.Entry, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomes, err = s.List(gctx, session, core.Income)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.List(gctx, session, core.Expense)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return incomes, expenses, nil
}

func (s *Service) afterMutation(ctx context.Context, op string, eventOp amqp.Op, e core.Entry) {
	s.invalidate(e.OwnerID)
	s.events.LogEntryMutation(ctx, op, e.OwnerID, e.Kind.String(), e.ID, e.Amount.Cents, e.Date)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEntryEvent(ctx, amqp.NewEntryEvent(eventOp, e)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish entry event",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err,
			applog.FieldKind, e.Kind,
			applog.FieldEntryID, e.ID)
	}
}

func (s *Service) generation(ownerID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[ownerID]
}

// invalidate bumps the owner's generation before dropping cached rows, so a
// fetch already in flight cannot put its stale result back.
func (s *Service) invalidate(ownerID string) {
	s.genMu.Lock()
	s.generations[ownerID]++
	s.genMu.Unlock()

	if s.summaries != nil {
		s.summaries.DeletePrefix(ownerID + "|")
	}
	if s.reports != nil {
		s.reports.DeletePrefix(ownerID + "|")
	}
}

func checkPeriod(year, month int) error {
	if year < 1 || year > 9999 {
		return &core.ValidationError{Field: "year", Err: ErrInvalidPeriod}
	}
	if month < 1 || month > 12 {
		return &core.ValidationError{Field: "month", Err: ErrInvalidPeriod}
	}
	return nil
}
