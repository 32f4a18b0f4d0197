package books

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"

	"smart-library-backend/internal/platform/apperr"
	"smart-library-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(sqldb *sql.DB) *Store { return &Store{db: sqldb} }

func (s *Store) Insert(ctx context.Context, b *Book) (int64, error) {
	const q = `
INSERT INTO books (title, author, isbn, copies, available_copies)
VALUES (?, ?, ?, ?, ?)
`
	res, err := s.db.ExecContext(ctx, q, b.Title, b.Author, b.ISBN, b.Copies, b.AvailableCopies)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, apperr.ErrConflict("isbn already exists")
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Book, error) {
	const q = `
SELECT id, title, author, isbn, copies, available_copies
FROM books
WHERE id = ?
`
	var b Book
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Copies, &b.AvailableCopies,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("book not found")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Update touches only the descriptive columns. Copy counters have their
// own paths (AddCopies and the reservation ledger).
func (s *Store) Update(ctx context.Context, id int64, in UpdateBookRequest) (int64, error) {
	var sb strings.Builder
	sb.WriteString("UPDATE books SET ")
	var sets []string
	var args []any
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Author != nil {
		sets = append(sets, "author = ?")
		args = append(args, *in.Author)
	}
	if in.ISBN != nil {
		sets = append(sets, "isbn = ?")
		args = append(args, *in.ISBN)
	}
	if len(sets) == 0 {
		return 0, apperr.ErrInvalid("no updatable fields given")
	}
	sb.WriteString(strings.Join(sets, ", "))
	sb.WriteString(" WHERE id = ?")
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, apperr.ErrConflict("isbn already exists")
		}
		return 0, err
	}
	return res.RowsAffected()
}

// AddCopies grows both counters by the same amount in one statement.
func (s *Store) AddCopies(ctx context.Context, id int64, n int) (int64, error) {
	const q = `
UPDATE books
SET copies = copies + ?, available_copies = available_copies + ?
WHERE id = ?
`
	res, err := s.db.ExecContext(ctx, q, n, n, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	const q = `DELETE FROM books WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Search(ctx context.Context, query string) ([]Book, error) {
	const q = `
SELECT id, title, author, isbn, copies, available_copies
FROM books
WHERE title LIKE ? OR author LIKE ? OR isbn LIKE ?
ORDER BY id
`
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, q, pattern, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Copies, &b.AvailableCopies); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ExecReserve is the ledger's forward operation: lock the row, check a
// copy is free, decrement, and record the token, all in one transaction.
// Concurrent reserves for the last copy serialize on the row lock and
// exactly one of them sees available_copies >= 1.
func (s *Store) ExecReserve(ctx context.Context, bookID int64, token string, now time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const lockQ = `SELECT available_copies FROM books WHERE id = ? FOR UPDATE`
		var available int
		if err := tx.QueryRowContext(ctx, lockQ, bookID).Scan(&available); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrNotFound("book not found")
			}
			return err
		}
		if available < 1 {
			return apperr.ErrBookUnavailable("no copies available")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET available_copies = available_copies - 1 WHERE id = ?`, bookID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO book_reservations (token, book_id, status, created_at) VALUES (?, ?, ?, ?)`,
			token, bookID, reservationHeld, now)
		return err
	})
}

// ExecRelease gives a copy back. With a token it is idempotent: the token
// flips HELD -> RELEASED in the same transaction as the increment, so a
// replayed release finds it already RELEASED and changes nothing. Without
// a token only the bounded increment runs.
func (s *Store) ExecRelease(ctx context.Context, bookID int64, token string, now time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if token != "" {
			res, err := tx.ExecContext(ctx,
				`UPDATE book_reservations SET status = ?, released_at = ? WHERE token = ? AND book_id = ? AND status = ?`,
				reservationReleased, now, token, bookID, reservationHeld)
			if err != nil {
				return err
			}
			aff, _ := res.RowsAffected()
			if aff == 0 {
				var status string
				err := tx.QueryRowContext(ctx,
					`SELECT status FROM book_reservations WHERE token = ? AND book_id = ?`,
					token, bookID).Scan(&status)
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.ErrNotFound("reservation not found")
				}
				if err != nil {
					return err
				}
				// Already released earlier; the copy is back, nothing to do.
				return nil
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE books SET available_copies = available_copies + 1 WHERE id = ? AND available_copies < copies`,
			bookID)
		if err != nil {
			return err
		}
		aff, _ := res.RowsAffected()
		if aff == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id = ?`, bookID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrNotFound("book not found")
			}
			if err != nil {
				return err
			}
			return apperr.ErrInconsistent("release would exceed total copies", nil)
		}
		return nil
	})
}

// ExecReReserve reverses a release: flips the token back to HELD and takes
// the copy again. Used by the return saga when marking the loan returned
// fails after the copy was already given back.
func (s *Store) ExecReReserve(ctx context.Context, bookID int64, token string) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if token != "" {
			res, err := tx.ExecContext(ctx,
				`UPDATE book_reservations SET status = ?, released_at = NULL WHERE token = ? AND book_id = ? AND status = ?`,
				reservationHeld, token, bookID, reservationReleased)
			if err != nil {
				return err
			}
			aff, _ := res.RowsAffected()
			if aff == 0 {
				var status string
				err := tx.QueryRowContext(ctx,
					`SELECT status FROM book_reservations WHERE token = ? AND book_id = ?`,
					token, bookID).Scan(&status)
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.ErrNotFound("reservation not found")
				}
				if err != nil {
					return err
				}
				// Already HELD again; retry of a completed re-reserve.
				return nil
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE books SET available_copies = available_copies - 1 WHERE id = ? AND available_copies >= 1`,
			bookID)
		if err != nil {
			return err
		}
		aff, _ := res.RowsAffected()
		if aff == 0 {
			return apperr.ErrBookUnavailable("no copies available to re-reserve")
		}
		return nil
	})
}

func (s *Store) Stats(ctx context.Context) (LedgerStats, error) {
	const q = `
SELECT COUNT(*), COALESCE(SUM(copies), 0), COALESCE(SUM(available_copies), 0)
FROM books
`
	var st LedgerStats
	err := s.db.QueryRowContext(ctx, q).Scan(&st.TotalBooks, &st.TotalCopies, &st.AvailableCopies)
	return st, err
}

func (s *Store) ListTop(ctx context.Context, limit int) ([]Book, error) {
	const q = `
SELECT id, title, author, isbn, copies, available_copies
FROM books
ORDER BY id
LIMIT ?
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Copies, &b.AvailableCopies); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
