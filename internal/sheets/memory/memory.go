// Package memory is an in-process spreadsheet mirror for tests and for
// running the worker without Google credentials.
package memory

import (
	"context"
	"sync"

	"revenue/internal/core"
	"revenue/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows map[core.Kind]map[string]core.Entry
	seq  map[core.Kind][]string
}

var _ sheets.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{
		rows: map[core.Kind]map[string]core.Entry{
			core.Income:  {},
			core.Expense: {},
		},
		seq: make(map[core.Kind][]string),
	}
}

func (m *Mirror) Upsert(_ context.Context, e core.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.rows[e.Kind]
	if !ok {
		return core.ErrInvalidKind
	}
	if _, exists := tab[e.ID]; !exists {
		m.seq[e.Kind] = append(m.seq[e.Kind], e.ID)
	}
	e.Date = core.NormalizeDate(e.Date)
	tab[e.ID] = e
	return nil
}

func (m *Mirror) Remove(_ context.Context, kind core.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.rows[kind]
	if !ok {
		return core.ErrInvalidKind
	}
	if _, exists := tab[id]; !exists {
		return nil
	}
	delete(tab, id)

	ids := m.seq[kind]
	for i, v := range ids {
		if v == id {
			m.seq[kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Rows returns the mirrored entries of kind in the order they were first written.
func (m *Mirror) Rows(kind core.Kind) []core.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]core.Entry, 0, len(m.seq[kind]))
	for _, id := range m.seq[kind] {
		out = append(out, m.rows[kind][id])
	}
	return out
}
