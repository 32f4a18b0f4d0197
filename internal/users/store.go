package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	mysql "github.com/go-sql-driver/mysql"

	"smart-library-backend/internal/platform/apperr"
)

type Store struct {
	db *sql.DB
}

func NewStore(sqldb *sql.DB) *Store { return &Store{db: sqldb} }

func (s *Store) Insert(ctx context.Context, u *User) (int64, error) {
	const q = `INSERT INTO users (name, email, role) VALUES (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, u.Name, u.Email, u.Role)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, apperr.ErrConflict("email already exists")
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT id, name, email, role FROM users WHERE id = ?`
	var u User
	err := s.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	const q = `SELECT 1 FROM users WHERE id = ?`
	var one int
	err := s.db.QueryRowContext(ctx, q, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Update(ctx context.Context, id int64, in UpdateUserRequest) (int64, error) {
	var sets []string
	var args []any
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *in.Email)
	}
	if in.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, *in.Role)
	}
	if len(sets) == 0 {
		return 0, apperr.ErrInvalid("no updatable fields given")
	}
	q := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, apperr.ErrConflict("email already exists")
		}
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM users`
	var n int64
	err := s.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

func (s *Store) CountByRole(ctx context.Context) (map[string]int64, error) {
	const q = `SELECT role, COUNT(*) FROM users GROUP BY role`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var role string
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[role] = n
	}
	return out, rows.Err()
}

func (s *Store) ListTop(ctx context.Context, limit int) ([]User, error) {
	const q = `SELECT id, name, email, role FROM users ORDER BY id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
