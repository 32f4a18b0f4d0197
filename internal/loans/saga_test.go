package loans

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smart-library-backend/internal/platform/apperr"
)

type fakeRecords struct {
	createFn       func(ctx context.Context, l *Loan) (int64, error)
	getFn          func(ctx context.Context, id int64) (*Loan, error)
	markReturnedFn func(ctx context.Context, id int64, at time.Time) error
	extendFn       func(ctx context.Context, id int64, days int) error
}

var _ LoanRecords = (*fakeRecords)(nil)

func (f *fakeRecords) Create(ctx context.Context, l *Loan) (int64, error) {
	if f.createFn == nil {
		return 1, nil
	}
	return f.createFn(ctx, l)
}

func (f *fakeRecords) GetByID(ctx context.Context, id int64) (*Loan, error) {
	if f.getFn == nil {
		return nil, apperr.ErrNotFound("loan not found")
	}
	return f.getFn(ctx, id)
}

func (f *fakeRecords) MarkReturned(ctx context.Context, id int64, at time.Time) error {
	if f.markReturnedFn == nil {
		return nil
	}
	return f.markReturnedFn(ctx, id, at)
}

func (f *fakeRecords) Extend(ctx context.Context, id int64, days int) error {
	if f.extendFn == nil {
		return nil
	}
	return f.extendFn(ctx, id, days)
}

func (f *fakeRecords) ListByUser(ctx context.Context, userID int64) ([]Loan, error) {
	return nil, nil
}

func (f *fakeRecords) ListActive(ctx context.Context, bookID int64) ([]Loan, error) {
	return nil, nil
}

func (f *fakeRecords) ListOverdue(ctx context.Context, asOf time.Time) ([]Loan, error) {
	return nil, nil
}

func (f *fakeRecords) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (f *fakeRecords) CountOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRecords) CountBorrowed(ctx context.Context, bookIDs []int64) (map[int64]int64, error) {
	return map[int64]int64{}, nil
}

func (f *fakeRecords) CountBorrowedByUser(ctx context.Context, userIDs []int64) (map[int64]int64, map[int64]int64, error) {
	return map[int64]int64{}, map[int64]int64{}, nil
}

func (f *fakeRecords) CountIssuedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRecords) CountReturnedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return 0, nil
}

type fakeLedger struct {
	mu           sync.Mutex
	reserveFn    func(ctx context.Context, bookID int64) (string, error)
	releaseFn    func(ctx context.Context, bookID int64, token string) error
	reReserveFn  func(ctx context.Context, bookID int64, token string) error
	statsFn      func(ctx context.Context) (*LedgerStats, error)
	reserveCalls int
	releaseCalls int
	reReserves   int
}

var _ InventoryLedger = (*fakeLedger)(nil)

func (f *fakeLedger) Reserve(ctx context.Context, bookID int64) (string, error) {
	f.mu.Lock()
	f.reserveCalls++
	f.mu.Unlock()
	if f.reserveFn == nil {
		return "tok-1", nil
	}
	return f.reserveFn(ctx, bookID)
}

func (f *fakeLedger) Release(ctx context.Context, bookID int64, token string) error {
	f.mu.Lock()
	f.releaseCalls++
	f.mu.Unlock()
	if f.releaseFn == nil {
		return nil
	}
	return f.releaseFn(ctx, bookID, token)
}

func (f *fakeLedger) ReReserve(ctx context.Context, bookID int64, token string) error {
	f.mu.Lock()
	f.reReserves++
	f.mu.Unlock()
	if f.reReserveFn == nil {
		return nil
	}
	return f.reReserveFn(ctx, bookID, token)
}

func (f *fakeLedger) GetBook(ctx context.Context, bookID int64) (*BookRef, error) {
	return &BookRef{ID: bookID, Title: "t", Author: "a"}, nil
}

func (f *fakeLedger) Stats(ctx context.Context) (*LedgerStats, error) {
	if f.statsFn == nil {
		return &LedgerStats{}, nil
	}
	return f.statsFn(ctx)
}

type fakeDirectory struct {
	getUserFn func(ctx context.Context, userID int64) (*UserRef, error)
	statsFn   func(ctx context.Context) (*DirectoryStats, error)
}

var _ BorrowerDirectory = (*fakeDirectory)(nil)

func (f *fakeDirectory) GetUser(ctx context.Context, userID int64) (*UserRef, error) {
	if f.getUserFn == nil {
		return &UserRef{ID: userID, Name: "n", Email: "e@example.com"}, nil
	}
	return f.getUserFn(ctx, userID)
}

func (f *fakeDirectory) Stats(ctx context.Context) (*DirectoryStats, error) {
	if f.statsFn == nil {
		return &DirectoryStats{}, nil
	}
	return f.statsFn(ctx)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestService(records LoanRecords, ledger InventoryLedger, dir BorrowerDirectory) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(records, ledger, dir, log)
	svc.clock = fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return svc
}

// --- issue saga ---

func TestIssueLoan_Success(t *testing.T) {
	var created *Loan
	records := &fakeRecords{
		createFn: func(ctx context.Context, l *Loan) (int64, error) {
			created = l
			return 42, nil
		},
	}
	ledger := &fakeLedger{}
	svc := newTestService(records, ledger, &fakeDirectory{})

	res, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 7, BookID: 3, DueDate: "2025-06-15",
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), res.ID)
	require.Equal(t, StatusActive, res.Status)
	require.Equal(t, "tok-1", created.ReservationToken)
	require.Equal(t, 1, ledger.reserveCalls)
	require.Equal(t, 0, ledger.releaseCalls)
}

func TestIssueLoan_BadDueDate(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newTestService(&fakeRecords{}, ledger, &fakeDirectory{})

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 7, BookID: 3, DueDate: "15-06-2025",
	})
	require.Error(t, err)
	require.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	require.Equal(t, 0, ledger.reserveCalls)
}

func TestIssueLoan_BookUnavailable(t *testing.T) {
	ledger := &fakeLedger{
		reserveFn: func(ctx context.Context, bookID int64) (string, error) {
			return "", apperr.ErrBookUnavailable("no copies available")
		},
	}
	svc := newTestService(&fakeRecords{}, ledger, &fakeDirectory{})

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 7, BookID: 3, DueDate: "2025-06-15",
	})
	require.Error(t, err)
	require.Equal(t, apperr.CodeBookUnavailable, apperr.CodeOf(err))
	// Nothing was reserved, so nothing to give back.
	require.Equal(t, 0, ledger.releaseCalls)
}

func TestIssueLoan_UserNotFound_CompensatesReservation(t *testing.T) {
	var releasedToken string
	ledger := &fakeLedger{
		releaseFn: func(ctx context.Context, bookID int64, token string) error {
			releasedToken = token
			return nil
		},
	}
	dir := &fakeDirectory{
		getUserFn: func(ctx context.Context, userID int64) (*UserRef, error) {
			return nil, apperr.ErrNotFound("user not found")
		},
	}
	svc := newTestService(&fakeRecords{}, ledger, dir)

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 999, BookID: 3, DueDate: "2025-06-15",
	})
	require.Error(t, err)
	require.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	require.Equal(t, 1, ledger.releaseCalls)
	require.Equal(t, "tok-1", releasedToken)
}

func TestIssueLoan_CreateFails_CompensatesReservation(t *testing.T) {
	records := &fakeRecords{
		createFn: func(ctx context.Context, l *Loan) (int64, error) {
			return 0, apperr.ErrInternal("insert failed")
		},
	}
	ledger := &fakeLedger{}
	svc := newTestService(records, ledger, &fakeDirectory{})

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 7, BookID: 3, DueDate: "2025-06-15",
	})
	require.Error(t, err)
	require.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	require.Equal(t, 1, ledger.releaseCalls)
}

func TestIssueLoan_CompensationFails(t *testing.T) {
	releaseErr := apperr.ErrInternal("release failed")
	ledger := &fakeLedger{
		releaseFn: func(ctx context.Context, bookID int64, token string) error {
			return releaseErr
		},
	}
	dir := &fakeDirectory{
		getUserFn: func(ctx context.Context, userID int64) (*UserRef, error) {
			return nil, apperr.ErrNotFound("user not found")
		},
	}
	svc := newTestService(&fakeRecords{}, ledger, dir)

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 999, BookID: 3, DueDate: "2025-06-15",
	})
	require.Error(t, err)
	require.Equal(t, apperr.CodeCompensationFailed, apperr.CodeOf(err))
	require.ErrorIs(t, err, releaseErr)
}

func TestIssueLoan_RetriesReserveOnceOnUpstream(t *testing.T) {
	calls := 0
	ledger := &fakeLedger{
		reserveFn: func(ctx context.Context, bookID int64) (string, error) {
			calls++
			if calls == 1 {
				return "", apperr.ErrUpstream("book service down", errors.New("dial tcp"))
			}
			return "tok-2", nil
		},
	}
	svc := newTestService(&fakeRecords{}, ledger, &fakeDirectory{})

	res, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 7, BookID: 3, DueDate: "2025-06-15",
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 2, calls)
}

func TestIssueLoan_NoRetryOnDomainError(t *testing.T) {
	ledger := &fakeLedger{
		reserveFn: func(ctx context.Context, bookID int64) (string, error) {
			return "", apperr.ErrBookUnavailable("no copies available")
		},
	}
	svc := newTestService(&fakeRecords{}, ledger, &fakeDirectory{})

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		UserID: 7, BookID: 3, DueDate: "2025-06-15",
	})
	require.Error(t, err)
	require.Equal(t, 1, ledger.reserveCalls)
}

// Two borrowers race for the last copy; the ledger hands out exactly one
// token and the loser sees BOOK_UNAVAILABLE.
func TestIssueLoan_LastCopyExactlyOneWins(t *testing.T) {
	var mu sync.Mutex
	available := 1
	ledger := &fakeLedger{}
	ledger.reserveFn = func(ctx context.Context, bookID int64) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if available < 1 {
			return "", apperr.ErrBookUnavailable("no copies available")
		}
		available--
		return "tok-last", nil
	}

	var ids int64
	records := &fakeRecords{
		createFn: func(ctx context.Context, l *Loan) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			ids++
			return ids, nil
		},
	}
	svc := newTestService(records, ledger, &fakeDirectory{})

	type result struct {
		res *LoanResponse
		err error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
				UserID: 7, BookID: 3, DueDate: "2025-06-15",
			})
			results <- result{res, err}
		}()
	}
	wg.Wait()
	close(results)

	var wins, unavailable int
	for r := range results {
		if r.err == nil {
			wins++
			continue
		}
		if apperr.CodeOf(r.err) == apperr.CodeBookUnavailable {
			unavailable++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, unavailable)
	require.Equal(t, 0, available)
}

// --- return saga ---

func activeLoan() *Loan {
	return &Loan{
		ID:               5,
		UserID:           7,
		BookID:           3,
		ReservationToken: "tok-5",
		IssueDate:        time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC),
		DueDate:          time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Status:           StatusActive,
	}
}

func TestReturnBook_Success(t *testing.T) {
	var releasedToken string
	ledger := &fakeLedger{
		releaseFn: func(ctx context.Context, bookID int64, token string) error {
			releasedToken = token
			return nil
		},
	}
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			return activeLoan(), nil
		},
	}
	svc := newTestService(records, ledger, &fakeDirectory{})

	res, err := svc.ReturnBook(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, StatusReturned, res.Status)
	require.NotNil(t, res.ReturnDate)
	require.Equal(t, "tok-5", releasedToken)
}

func TestReturnBook_AlreadyReturned(t *testing.T) {
	ledger := &fakeLedger{}
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			l := activeLoan()
			l.Status = StatusReturned
			return l, nil
		},
	}
	svc := newTestService(records, ledger, &fakeDirectory{})

	_, err := svc.ReturnBook(context.Background(), 5)
	require.Error(t, err)
	require.Equal(t, apperr.CodeAlreadyReturned, apperr.CodeOf(err))
	require.Equal(t, 0, ledger.releaseCalls)
}

// A concurrent return flipped the row between our pre-check and the
// update. Its release was the idempotent no-op, so the loser must not
// re-reserve.
func TestReturnBook_ConcurrentReturnLosesWithoutReReserve(t *testing.T) {
	ledger := &fakeLedger{}
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			return activeLoan(), nil
		},
		markReturnedFn: func(ctx context.Context, id int64, at time.Time) error {
			return apperr.ErrAlreadyReturned("loan already returned")
		},
	}
	svc := newTestService(records, ledger, &fakeDirectory{})

	_, err := svc.ReturnBook(context.Background(), 5)
	require.Error(t, err)
	require.Equal(t, apperr.CodeAlreadyReturned, apperr.CodeOf(err))
	require.Equal(t, 1, ledger.releaseCalls)
	require.Equal(t, 0, ledger.reReserves)
}

func TestReturnBook_MarkFails_ReReservesCopy(t *testing.T) {
	var reReservedToken string
	ledger := &fakeLedger{
		reReserveFn: func(ctx context.Context, bookID int64, token string) error {
			reReservedToken = token
			return nil
		},
	}
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			return activeLoan(), nil
		},
		markReturnedFn: func(ctx context.Context, id int64, at time.Time) error {
			return apperr.ErrInternal("update failed")
		},
	}
	svc := newTestService(records, ledger, &fakeDirectory{})

	_, err := svc.ReturnBook(context.Background(), 5)
	require.Error(t, err)
	require.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	require.Equal(t, 1, ledger.reReserves)
	require.Equal(t, "tok-5", reReservedToken)
}

func TestReturnBook_ReReserveFails_ReportsInconsistency(t *testing.T) {
	ledger := &fakeLedger{
		reReserveFn: func(ctx context.Context, bookID int64, token string) error {
			return apperr.ErrInternal("re-reserve failed")
		},
	}
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			return activeLoan(), nil
		},
		markReturnedFn: func(ctx context.Context, id int64, at time.Time) error {
			return apperr.ErrInternal("update failed")
		},
	}
	svc := newTestService(records, ledger, &fakeDirectory{})

	_, err := svc.ReturnBook(context.Background(), 5)
	require.Error(t, err)
	require.Equal(t, apperr.CodeInconsistentState, apperr.CodeOf(err))
}

// --- extend ---

func TestExtendLoan_DefaultsToSevenDays(t *testing.T) {
	var gotDays int
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			return activeLoan(), nil
		},
		extendFn: func(ctx context.Context, id int64, days int) error {
			gotDays = days
			return nil
		},
	}
	svc := newTestService(records, &fakeLedger{}, &fakeDirectory{})

	_, err := svc.ExtendLoan(context.Background(), 5, ExtendLoanRequest{})
	require.NoError(t, err)
	require.Equal(t, defaultExtensionDays, gotDays)
}

func TestExtendLoan_CapReached(t *testing.T) {
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			l := activeLoan()
			l.ExtensionsCount = maxExtensions
			return l, nil
		},
	}
	svc := newTestService(records, &fakeLedger{}, &fakeDirectory{})

	_, err := svc.ExtendLoan(context.Background(), 5, ExtendLoanRequest{})
	require.Error(t, err)
	require.Equal(t, apperr.CodeMaxExtensionsReached, apperr.CodeOf(err))
}

func TestExtendLoan_NotActive(t *testing.T) {
	records := &fakeRecords{
		getFn: func(ctx context.Context, id int64) (*Loan, error) {
			l := activeLoan()
			l.Status = StatusReturned
			return l, nil
		},
	}
	svc := newTestService(records, &fakeLedger{}, &fakeDirectory{})

	_, err := svc.ExtendLoan(context.Background(), 5, ExtendLoanRequest{})
	require.Error(t, err)
	require.Equal(t, apperr.CodeNotActive, apperr.CodeOf(err))
}

// --- overview ---

func TestGetSystemOverview_DegradesPerOwner(t *testing.T) {
	ledger := &fakeLedger{
		statsFn: func(ctx context.Context) (*LedgerStats, error) {
			return nil, apperr.ErrUpstream("book service down", nil)
		},
	}
	dir := &fakeDirectory{
		statsFn: func(ctx context.Context) (*DirectoryStats, error) {
			return &DirectoryStats{TotalUsers: 11}, nil
		},
	}
	svc := newTestService(&fakeRecords{}, ledger, dir)

	out := svc.GetSystemOverview(context.Background())
	require.Equal(t, int64(0), out.TotalBooks)
	require.Equal(t, int64(0), out.BooksAvailable)
	require.Equal(t, int64(11), out.TotalUsers)
}
