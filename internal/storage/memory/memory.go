package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"revenue/internal/core"
	"revenue/internal/storage"
)

// Store keeps everything in process memory. Entries are kept in insertion
// order per collection.
type Store struct {
	mu      sync.Mutex
	entries map[core.Kind][]core.Entry
	users   map[string]core.User // by id
	revoked map[string]time.Time
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		entries: make(map[core.Kind][]core.Entry),
		users:   make(map[string]core.User),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *Store) Insert(_ context.Context, e core.Entry) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.entries[e.Kind] = append(s.entries[e.Kind], e)
	return e, nil
}

func (s *Store) FindByOwner(_ context.Context, kind core.Kind, ownerID string) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Entry, 0)
	for _, e := range s.entries[kind] {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, kind core.Kind, ownerID, id string) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(kind, ownerID, id)
	if i < 0 {
		return core.Entry{}, storage.ErrNotFound
	}
	return s.entries[kind][i], nil
}

func (s *Store) Replace(_ context.Context, e core.Entry) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(e.Kind, e.OwnerID, e.ID)
	if i < 0 {
		return core.Entry{}, storage.ErrNotFound
	}
	cur := s.entries[e.Kind][i].Apply(e.Input())
	cur.UpdatedAt = s.now().UTC()
	s.entries[e.Kind][i] = cur
	return cur, nil
}

func (s *Store) Delete(_ context.Context, kind core.Kind, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(kind, ownerID, id)
	if i < 0 {
		return storage.ErrNotFound
	}
	list := s.entries[kind]
	s.entries[kind] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (s *Store) indexOf(kind core.Kind, ownerID, id string) int {
	for i, e := range s.entries[kind] {
		if e.ID == id && e.OwnerID == ownerID {
			return i
		}
	}
	return -1
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return storage.ErrDuplicate
		}
	}
	if _, ok := s.users[u.ID]; ok {
		return storage.ErrDuplicate
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateUserName(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Name = name
	s.users[id] = u
	return nil
}

func (s *Store) RevokeToken(_ context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
	return nil
}

func (s *Store) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[tokenID]
	return ok, nil
}

func (s *Store) Close() error {
	return nil
}
