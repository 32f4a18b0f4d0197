package auth

import (
	"context"
	"database/sql"
	"errors"
)

type Account struct {
	ID           string
	PasswordHash string
	Role         string
	IsDisabled   bool
}

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore { return &Store{db: db} }

// GetByID returns (nil, nil) for an unknown id so the service can decide
// between "authentication failed" and "already exists" without leaking.
func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT id, password_hash, role, is_disabled
FROM auth_accounts
WHERE id = ?
LIMIT 1
`
	var a Account
	var disabled int
	err := s.db.QueryRowContext(ctx, q, id).Scan(&a.ID, &a.PasswordHash, &a.Role, &disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsDisabled = disabled != 0
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO auth_accounts (id, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, 0, NOW(6))
`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.PasswordHash, a.Role)
	return err
}
