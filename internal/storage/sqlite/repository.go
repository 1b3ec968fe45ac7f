package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"revenue/internal/core"
	"revenue/internal/storage"
)

const timeLayout = time.RFC3339Nano

type Repository struct {
	db *sql.DB
}

var _ storage.Store = (*Repository)(nil)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func table(kind core.Kind) (string, error) {
	if !kind.Valid() {
		return "", core.ErrInvalidKind
	}
	return kind.Collection(), nil
}

func (r *Repository) Insert(ctx context.Context, e core.Entry) (core.Entry, error) {
	tbl, err := table(e.Kind)
	if err != nil {
		return core.Entry{}, err
	}

	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO `+tbl+` (id, owner_id, amount_cents, description, date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Amount.Cents, e.Description, e.Date,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return core.Entry{}, fmt.Errorf("insert %s: %w", e.Kind, err)
	}

	slog.DebugContext(ctx, "Entry saved to SQLite",
		"id", e.ID,
		"kind", e.Kind,
		"amount_cents", e.Amount.Cents)

	return e, nil
}

func (r *Repository) FindByOwner(ctx context.Context, kind core.Kind, ownerID string) ([]core.Entry, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, amount_cents, description, date, created_at, updated_at
		 FROM `+tbl+` WHERE owner_id = ? ORDER BY seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find %s by owner: %w", kind, err)
	}
	defer rows.Close()

	entries := make([]core.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows, kind)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return entries, nil
}

func (r *Repository) Get(ctx context.Context, kind core.Kind, ownerID, id string) (core.Entry, error) {
	tbl, err := table(kind)
	if err != nil {
		return core.Entry{}, err
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, amount_cents, description, date, created_at, updated_at
		 FROM `+tbl+` WHERE id = ? AND owner_id = ?`, id, ownerID)
	e, err := scanEntry(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, storage.ErrNotFound
	}
	return e, err
}

func (r *Repository) Replace(ctx context.Context, e core.Entry) (core.Entry, error) {
	tbl, err := table(e.Kind)
	if err != nil {
		return core.Entry{}, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+tbl+` SET amount_cents = ?, description = ?, date = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		e.Amount.Cents, e.Description, e.Date, now.Format(timeLayout), e.ID, e.OwnerID)
	if err != nil {
		return core.Entry{}, fmt.Errorf("update %s: %w", e.Kind, err)
	}
	if err := expectOne(res); err != nil {
		return core.Entry{}, err
	}
	return r.Get(ctx, e.Kind, e.OwnerID, e.ID)
}

func (r *Repository) Delete(ctx context.Context, kind core.Kind, ownerID, id string) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM `+tbl+` WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner, kind core.Kind) (core.Entry, error) {
	var (
		e                    core.Entry
		createdAt, updatedAt string
	)
	if err := s.Scan(&e.ID, &e.OwnerID, &e.Amount.Cents, &e.Description, &e.Date, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Entry{}, err
		}
		return core.Entry{}, fmt.Errorf("scan %s: %w", kind, err)
	}
	e.Kind = kind
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return e, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.user(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *Repository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.user(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *Repository) user(ctx context.Context, query string, arg string) (core.User, error) {
	var (
		u         core.User
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, storage.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return u, nil
}

func (r *Repository) UpdateUserName(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return expectOne(res)
}

func (r *Repository) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	now := time.Now().UTC().Format(timeLayout)
	if _, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now); err != nil {
		slog.WarnContext(ctx, "Failed to purge expired revoked tokens", "error", err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO revoked_tokens (token_id, expires_at) VALUES (?, ?)`,
		tokenID, expiresAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *Repository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE token_id = ?`, tokenID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
