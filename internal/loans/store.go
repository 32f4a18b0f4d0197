package loans

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"smart-library-backend/internal/platform/apperr"
)

type Store struct {
	db *sql.DB
}

func NewStore(sqldb *sql.DB) *Store { return &Store{db: sqldb} }

const loanColumns = `id, user_id, book_id, reservation_token, issue_date, due_date, return_date, status, extensions_count`

func scanLoan(row interface{ Scan(dest ...any) error }) (*Loan, error) {
	var l Loan
	var returned sql.NullTime
	err := row.Scan(
		&l.ID, &l.UserID, &l.BookID, &l.ReservationToken,
		&l.IssueDate, &l.DueDate, &returned, &l.Status, &l.ExtensionsCount,
	)
	if err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		l.ReturnDate = &t
	}
	return &l, nil
}

func (s *Store) Create(ctx context.Context, l *Loan) (int64, error) {
	const q = `
INSERT INTO loans (user_id, book_id, reservation_token, issue_date, due_date, status, extensions_count)
VALUES (?, ?, ?, ?, ?, ?, 0)
`
	res, err := s.db.ExecContext(ctx, q,
		l.UserID, l.BookID, l.ReservationToken, l.IssueDate, l.DueDate, l.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE id = ?`
	l, err := scanLoan(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("loan not found")
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// MarkReturned is the only ACTIVE -> RETURNED transition. The status
// guard in the WHERE clause makes a double return lose atomically.
func (s *Store) MarkReturned(ctx context.Context, id int64, at time.Time) error {
	const q = `
UPDATE loans SET status = ?, return_date = ?
WHERE id = ? AND status = ?
`
	res, err := s.db.ExecContext(ctx, q, StatusReturned, at, id, StatusActive)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 1 {
		return nil
	}

	l, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l.Status == StatusReturned {
		return apperr.ErrAlreadyReturned("loan already returned")
	}
	return apperr.ErrInternal("failed to mark loan returned")
}

// Extend advances due_date and bumps extensions_count in one guarded
// statement so concurrent extends cannot push past the cap.
func (s *Store) Extend(ctx context.Context, id int64, days int) error {
	const q = `
UPDATE loans
SET due_date = DATE_ADD(due_date, INTERVAL ? DAY), extensions_count = extensions_count + 1
WHERE id = ? AND status = ? AND extensions_count < ?
`
	res, err := s.db.ExecContext(ctx, q, days, id, StatusActive, maxExtensions)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 1 {
		return nil
	}

	l, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l.Status != StatusActive {
		return apperr.ErrNotActive("loan is not active")
	}
	return apperr.ErrMaxExtensions("maximum extensions reached")
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ? ORDER BY issue_date DESC`
	return s.list(ctx, q, userID)
}

// ListActive returns the open loans, optionally narrowed to one book.
// Handy for checking a book's counter against its outstanding loans.
func (s *Store) ListActive(ctx context.Context, bookID int64) ([]Loan, error) {
	if bookID > 0 {
		q := `SELECT ` + loanColumns + ` FROM loans WHERE status = ? AND book_id = ? ORDER BY issue_date`
		return s.list(ctx, q, StatusActive, bookID)
	}
	q := `SELECT ` + loanColumns + ` FROM loans WHERE status = ? ORDER BY issue_date`
	return s.list(ctx, q, StatusActive)
}

func (s *Store) ListOverdue(ctx context.Context, asOf time.Time) ([]Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE status = ? AND due_date < ? ORDER BY due_date`
	return s.list(ctx, q, StatusActive, asOf)
}

func (s *Store) list(ctx context.Context, q string, args ...any) ([]Loan, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	const q = `SELECT status, COUNT(*) FROM loans GROUP BY status`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *Store) CountOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE status = ? AND due_date < ?`
	var n int64
	err := s.db.QueryRowContext(ctx, q, StatusActive, asOf).Scan(&n)
	return n, err
}

// CountBorrowed returns all-time borrow counts per book id.
func (s *Store) CountBorrowed(ctx context.Context, bookIDs []int64) (map[int64]int64, error) {
	if len(bookIDs) == 0 {
		return map[int64]int64{}, nil
	}
	q := `SELECT book_id, COUNT(*) FROM loans WHERE book_id IN (` + placeholders(len(bookIDs)) + `) GROUP BY book_id`
	rows, err := s.db.QueryContext(ctx, q, int64Args(bookIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]int64{}
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// CountBorrowedByUser returns per-user all-time and currently-active
// borrow counts as two id-keyed maps.
func (s *Store) CountBorrowedByUser(ctx context.Context, userIDs []int64) (map[int64]int64, map[int64]int64, error) {
	if len(userIDs) == 0 {
		return map[int64]int64{}, map[int64]int64{}, nil
	}
	q := `
SELECT user_id, COUNT(*), COUNT(CASE WHEN status = '` + StatusActive + `' THEN 1 END)
FROM loans
WHERE user_id IN (` + placeholders(len(userIDs)) + `)
GROUP BY user_id
`
	rows, err := s.db.QueryContext(ctx, q, int64Args(userIDs)...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	totals := map[int64]int64{}
	active := map[int64]int64{}
	for rows.Next() {
		var id, total, act int64
		if err := rows.Scan(&id, &total, &act); err != nil {
			return nil, nil, err
		}
		totals[id] = total
		active[id] = act
	}
	return totals, active, rows.Err()
}

func (s *Store) CountIssuedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE issue_date >= ? AND issue_date < ?`
	var n int64
	err := s.db.QueryRowContext(ctx, q, from, to).Scan(&n)
	return n, err
}

func (s *Store) CountReturnedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE return_date >= ? AND return_date < ?`
	var n int64
	err := s.db.QueryRowContext(ctx, q, from, to).Scan(&n)
	return n, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
