// Package storagetest holds a behavioural suite every storage backend must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"revenue/internal/core"
	"revenue/internal/storage"
)

// Run exercises the entry, user and token ports of s. Each subtest uses its
// own owner ids so the suite can share one store.
func Run(t *testing.T, s storage.Store) {
	t.Run("entries are owner scoped", func(t *testing.T) { entriesAreOwnerScoped(t, s) })
	t.Run("replace keeps identity", func(t *testing.T) { replaceKeepsIdentity(t, s) })
	t.Run("delete removes entry", func(t *testing.T) { deleteRemovesEntry(t, s) })
	t.Run("kinds are separate collections", func(t *testing.T) { kindsAreSeparate(t, s) })
	t.Run("users", func(t *testing.T) { users(t, s) })
	t.Run("revoked tokens", func(t *testing.T) { revokedTokens(t, s) })
}

func newEntry(kind core.Kind, owner string, cents int64, date string) core.Entry {
	return core.Entry{
		Kind:        kind,
		OwnerID:     owner,
		Amount:      core.Money{Cents: cents},
		Description: "entry " + date,
		Date:        date,
	}
}

func entriesAreOwnerScoped(t *testing.T, s storage.Store) {
	ctx := context.Background()

	mine, err := s.Insert(ctx, newEntry(core.Income, "scope-alice", 10000, "2024-01-05"))
	require.NoError(t, err)
	require.NotEmpty(t, mine.ID)
	require.Equal(t, "scope-alice", mine.OwnerID)

	theirs, err := s.Insert(ctx, newEntry(core.Income, "scope-bob", 5000, "2024-02-01"))
	require.NoError(t, err)
	require.NotEqual(t, mine.ID, theirs.ID)

	list, err := s.FindByOwner(ctx, core.Income, "scope-alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, mine.ID, list[0].ID)
	require.Equal(t, int64(10000), list[0].Amount.Cents)
	require.Equal(t, "2024-01-05", list[0].Date)

	_, err = s.Get(ctx, core.Income, "scope-alice", theirs.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	empty, err := s.FindByOwner(ctx, core.Income, "scope-nobody")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func replaceKeepsIdentity(t *testing.T, s storage.Store) {
	ctx := context.Background()

	e, err := s.Insert(ctx, newEntry(core.Expense, "replace-alice", 1200, "2024-03-01"))
	require.NoError(t, err)

	upd := e.Apply(core.EntryInput{Amount: core.Money{Cents: 4500}, Description: "groceries", Date: "2024-03-09"})
	got, err := s.Replace(ctx, upd)
	require.NoError(t, err)
	require.Equal(t, e.ID, got.ID)
	require.Equal(t, "replace-alice", got.OwnerID)
	require.Equal(t, int64(4500), got.Amount.Cents)

	stored, err := s.Get(ctx, core.Expense, "replace-alice", e.ID)
	require.NoError(t, err)
	require.Equal(t, "groceries", stored.Description)
	require.Equal(t, "2024-03-09", stored.Date)
	require.Equal(t, "replace-alice", stored.OwnerID)

	foreign := upd
	foreign.OwnerID = "replace-mallory"
	_, err = s.Replace(ctx, foreign)
	require.ErrorIs(t, err, storage.ErrNotFound)

	stored, err = s.Get(ctx, core.Expense, "replace-alice", e.ID)
	require.NoError(t, err)
	require.Equal(t, "groceries", stored.Description)
}

func deleteRemovesEntry(t *testing.T, s storage.Store) {
	ctx := context.Background()

	e, err := s.Insert(ctx, newEntry(core.Expense, "delete-alice", 300, "2024-04-01"))
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete(ctx, core.Expense, "delete-bob", e.ID), storage.ErrNotFound)
	require.NoError(t, s.Delete(ctx, core.Expense, "delete-alice", e.ID))

	list, err := s.FindByOwner(ctx, core.Expense, "delete-alice")
	require.NoError(t, err)
	require.Empty(t, list)

	require.ErrorIs(t, s.Delete(ctx, core.Expense, "delete-alice", e.ID), storage.ErrNotFound)
}

func kindsAreSeparate(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.Insert(ctx, newEntry(core.Income, "kinds-alice", 100, "2024-05-01"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, newEntry(core.Expense, "kinds-alice", 200, "2024-05-02"))
	require.NoError(t, err)

	incomes, err := s.FindByOwner(ctx, core.Income, "kinds-alice")
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	require.Equal(t, core.Income, incomes[0].Kind)

	expenses, err := s.FindByOwner(ctx, core.Expense, "kinds-alice")
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	require.Equal(t, core.Expense, expenses[0].Kind)
}

func users(t *testing.T, s storage.Store) {
	ctx := context.Background()

	u := core.User{
		ID:           "user-" + time.Now().Format("150405.000000000"),
		Email:        "carol@example.com",
		Name:         "Carol",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateUser(ctx, u))

	dup := u
	dup.ID = u.ID + "-2"
	require.ErrorIs(t, s.CreateUser(ctx, dup), storage.ErrDuplicate)

	byEmail, err := s.UserByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)
	require.Equal(t, "hash", byEmail.PasswordHash)

	require.NoError(t, s.UpdateUserName(ctx, u.ID, "Caroline"))
	byID, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Caroline", byID.Name)
	require.Equal(t, "carol@example.com", byID.Email)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.UserByID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, s.UpdateUserName(ctx, "missing", "x"), storage.ErrNotFound)
}

func revokedTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()

	revoked, err := s.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "token-1", time.Now().Add(time.Hour)))
	revoked, err = s.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	require.True(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "token-1", time.Now().Add(time.Hour)))
}
