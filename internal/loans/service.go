package loans

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"smart-library-backend/internal/platform/apperr"
)

// LoanRecords is the loan table contract; *Store is the real thing.
type LoanRecords interface {
	Create(ctx context.Context, l *Loan) (int64, error)
	GetByID(ctx context.Context, id int64) (*Loan, error)
	MarkReturned(ctx context.Context, id int64, at time.Time) error
	Extend(ctx context.Context, id int64, days int) error
	ListByUser(ctx context.Context, userID int64) ([]Loan, error)
	ListActive(ctx context.Context, bookID int64) ([]Loan, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Loan, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountOverdue(ctx context.Context, asOf time.Time) (int64, error)
	CountBorrowed(ctx context.Context, bookIDs []int64) (map[int64]int64, error)
	CountBorrowedByUser(ctx context.Context, userIDs []int64) (map[int64]int64, map[int64]int64, error)
	CountIssuedBetween(ctx context.Context, from, to time.Time) (int64, error)
	CountReturnedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// InventoryLedger is the book owner as the coordinator sees it: the only
// party allowed to move available_copies, one token per movement.
type InventoryLedger interface {
	Reserve(ctx context.Context, bookID int64) (token string, err error)
	Release(ctx context.Context, bookID int64, token string) error
	ReReserve(ctx context.Context, bookID int64, token string) error
	GetBook(ctx context.Context, bookID int64) (*BookRef, error)
	Stats(ctx context.Context) (*LedgerStats, error)
}

// BorrowerDirectory is the user owner; pure reads, so the coordinator
// never needs to compensate anything here.
type BorrowerDirectory interface {
	GetUser(ctx context.Context, userID int64) (*UserRef, error)
	Stats(ctx context.Context) (*DirectoryStats, error)
}

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	records LoanRecords
	ledger  InventoryLedger
	users   BorrowerDirectory
	clock   Clock
	log     *slog.Logger
}

// NewService wires the coordinator once, at startup. Collaborators are
// constructor-supplied and never rebound afterwards.
func NewService(records LoanRecords, ledger InventoryLedger, users BorrowerDirectory, log *slog.Logger) *Service {
	return &Service{
		records: records,
		ledger:  ledger,
		users:   users,
		clock:   realClock{},
		log:     log,
	}
}

// IssueLoan runs the issue saga: reserve a copy, verify the borrower,
// persist the loan, compensating the reservation on any late failure.
func (s *Service) IssueLoan(ctx context.Context, in IssueLoanRequest) (*LoanResponse, error) {
	if in.UserID <= 0 || in.BookID <= 0 {
		return nil, apperr.ErrInvalid("user_id and book_id must be > 0")
	}
	due, err := time.Parse("2006-01-02", in.DueDate)
	if err != nil {
		return nil, apperr.ErrInvalid("due_date must be YYYY-MM-DD")
	}

	sg := &issueSaga{svc: s, userID: in.UserID, bookID: in.BookID, due: due}
	l, err := sg.run(detach(ctx))
	if err != nil {
		return nil, err
	}
	resp := toResponse(l)
	return &resp, nil
}

// ReturnBook runs the return saga: give the copy back to the ledger,
// then flip the loan to RETURNED, re-reserving on late failure so the
// ledger never advertises a copy the records still consider lent out.
func (s *Service) ReturnBook(ctx context.Context, loanID int64) (*LoanResponse, error) {
	if loanID <= 0 {
		return nil, apperr.ErrInvalid("loan id must be > 0")
	}
	ctx = detach(ctx)

	l, err := s.records.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.Status == StatusReturned {
		return nil, apperr.ErrAlreadyReturned("loan already returned")
	}

	l, err = s.runReturnSaga(ctx, l)
	if err != nil {
		return nil, err
	}
	resp := toResponse(l)
	return &resp, nil
}

// ExtendLoan is single-owner: only the loan table changes, so there is
// no saga and no compensation.
func (s *Service) ExtendLoan(ctx context.Context, loanID int64, in ExtendLoanRequest) (*LoanResponse, error) {
	if loanID <= 0 {
		return nil, apperr.ErrInvalid("loan id must be > 0")
	}
	days := defaultExtensionDays
	if in.ExtensionDays != nil {
		days = *in.ExtensionDays
	}
	if days <= 0 {
		return nil, apperr.ErrInvalid("extension_days must be > 0")
	}

	l, err := s.records.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.Status != StatusActive {
		return nil, apperr.ErrNotActive("loan is not active")
	}
	if l.ExtensionsCount >= maxExtensions {
		return nil, apperr.ErrMaxExtensions("maximum extensions reached")
	}

	if err := s.records.Extend(ctx, loanID, days); err != nil {
		return nil, err
	}
	l, err = s.records.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(l)
	return &resp, nil
}

// GetUserLoans lists a borrower's loans enriched with book snippets; a
// dead book owner degrades the snippet, never the listing.
func (s *Service) GetUserLoans(ctx context.Context, userID int64) ([]UserLoanResponse, error) {
	if userID <= 0 {
		return nil, apperr.ErrInvalid("user id must be > 0")
	}
	list, err := s.records.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]UserLoanResponse, 0, len(list))
	for i := range list {
		item := UserLoanResponse{LoanResponse: toResponse(&list[i])}
		if b, err := s.ledger.GetBook(ctx, list[i].BookID); err != nil {
			s.log.Warn("book lookup failed for loan enrichment", "loan_id", list[i].ID, "err", err)
		} else {
			item.Book = &BookSnippet{ID: b.ID, Title: b.Title, Author: b.Author}
		}
		out = append(out, item)
	}
	return out, nil
}

// GetActiveLoans lists open loans, optionally for a single book. bookID 0
// means all books.
func (s *Service) GetActiveLoans(ctx context.Context, bookID int64) ([]LoanResponse, error) {
	list, err := s.records.ListActive(ctx, bookID)
	if err != nil {
		return nil, err
	}
	out := make([]LoanResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	return out, nil
}

func (s *Service) GetOverdueLoans(ctx context.Context) ([]OverdueLoanResponse, error) {
	now := s.clock.Now()
	list, err := s.records.ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]OverdueLoanResponse, 0, len(list))
	for i := range list {
		item := OverdueLoanResponse{
			LoanResponse: toResponse(&list[i]),
			DaysOverdue:  int(now.Sub(list[i].DueDate).Hours() / 24),
		}
		if u, err := s.users.GetUser(ctx, list[i].UserID); err != nil {
			s.log.Warn("user lookup failed for overdue enrichment", "loan_id", list[i].ID, "err", err)
		} else {
			item.User = &UserSnippet{ID: u.ID, Name: u.Name, Email: u.Email}
		}
		if b, err := s.ledger.GetBook(ctx, list[i].BookID); err != nil {
			s.log.Warn("book lookup failed for overdue enrichment", "loan_id", list[i].ID, "err", err)
		} else {
			item.Book = &BookSnippet{ID: b.ID, Title: b.Title, Author: b.Author}
		}
		out = append(out, item)
	}
	return out, nil
}

// CountBorrowed serves the book owner's popularity ranking.
func (s *Service) CountBorrowed(ctx context.Context, bookIDs []int64) (map[int64]int64, error) {
	return s.records.CountBorrowed(ctx, bookIDs)
}

// CountBorrowedByUser serves the user owner's activity ranking.
func (s *Service) CountBorrowedByUser(ctx context.Context, userIDs []int64) (map[int64]int64, map[int64]int64, error) {
	return s.records.CountBorrowedByUser(ctx, userIDs)
}

func (s *Service) LoanStats(ctx context.Context) (*LoanStatsResponse, error) {
	now := s.clock.Now()
	dayStart, dayEnd := dayWindow(now)

	byStatus, err := s.records.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.records.CountOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	issued, err := s.records.CountIssuedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	returned, err := s.records.CountReturnedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return &LoanStatsResponse{
		ByStatus:     byStatus,
		Overdue:      overdue,
		LoansToday:   issued,
		ReturnsToday: returned,
	}, nil
}

// GetSystemOverview fans out to all three owners in parallel. A dead
// owner zeroes its own fields; the dashboard read never fails outright.
func (s *Service) GetSystemOverview(ctx context.Context) *OverviewResponse {
	now := s.clock.Now()
	dayStart, dayEnd := dayWindow(now)

	out := &OverviewResponse{}
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		st, err := s.ledger.Stats(ctx)
		if err != nil {
			s.log.Warn("overview: book stats unavailable", "err", err)
			return
		}
		out.TotalBooks = st.TotalBooks
		out.BooksAvailable = st.AvailableCopies
	}()

	go func() {
		defer wg.Done()
		st, err := s.users.Stats(ctx)
		if err != nil {
			s.log.Warn("overview: user stats unavailable", "err", err)
			return
		}
		out.TotalUsers = st.TotalUsers
	}()

	go func() {
		defer wg.Done()
		if byStatus, err := s.records.CountByStatus(ctx); err != nil {
			s.log.Warn("overview: loan status counts unavailable", "err", err)
		} else {
			out.BooksBorrowed = byStatus[StatusActive]
		}
		if n, err := s.records.CountOverdue(ctx, now); err != nil {
			s.log.Warn("overview: overdue count unavailable", "err", err)
		} else {
			out.OverdueLoans = n
		}
		if n, err := s.records.CountIssuedBetween(ctx, dayStart, dayEnd); err != nil {
			s.log.Warn("overview: today's loan count unavailable", "err", err)
		} else {
			out.LoansToday = n
		}
		if n, err := s.records.CountReturnedBetween(ctx, dayStart, dayEnd); err != nil {
			s.log.Warn("overview: today's return count unavailable", "err", err)
		} else {
			out.ReturnsToday = n
		}
	}()

	wg.Wait()
	return out
}

func dayWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.Add(24 * time.Hour)
}

func toResponse(l *Loan) LoanResponse {
	return LoanResponse{
		ID:              l.ID,
		UserID:          l.UserID,
		BookID:          l.BookID,
		IssueDate:       l.IssueDate,
		DueDate:         l.DueDate,
		ReturnDate:      l.ReturnDate,
		Status:          l.Status,
		ExtensionsCount: l.ExtensionsCount,
	}
}
