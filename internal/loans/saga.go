package loans

import (
	"context"
	"errors"
	"time"

	"smart-library-backend/internal/platform/apperr"
)

// A saga that stops halfway is worse than one that outlives its caller,
// so saga steps run on a context detached from the caller's cancellation
// with their own overall deadline.
const sagaTimeout = 30 * time.Second

func detach(ctx context.Context) context.Context {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sagaTimeout)
	_ = cancel // deadline reclaims resources; sagas are never cancelled early
	return ctx
}

func isUpstream(err error) bool {
	return err != nil && apperr.CodeOf(err) == apperr.CodeUpstreamUnavailable
}

// issueSaga is the three-step issue flow. Ordering is deliberate and
// mirrors the observed behavior: reserve the copy FIRST, verify the
// borrower second. A bad user id therefore costs a reserve/release round
// trip, but the copy counter can never be handed out past zero.
type issueSaga struct {
	svc    *Service
	userID int64
	bookID int64
	due    time.Time

	token       string
	compensated bool
}

func (sg *issueSaga) run(ctx context.Context) (*Loan, error) {
	// Step 1: reserve a copy. Failure here means nothing was mutated,
	// so the error propagates with no compensation.
	token, err := sg.svc.ledger.Reserve(ctx, sg.bookID)
	if isUpstream(err) {
		token, err = sg.svc.ledger.Reserve(ctx, sg.bookID)
	}
	if err != nil {
		return nil, err
	}
	sg.token = token

	// Step 2: verify the borrower exists. From here on a failure leaves
	// a consumed copy behind, which compensation must give back.
	_, err = sg.svc.users.GetUser(ctx, sg.userID)
	if isUpstream(err) {
		_, err = sg.svc.users.GetUser(ctx, sg.userID)
	}
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			err = apperr.ErrNotFound("user not found")
		}
		return nil, sg.compensate(ctx, err)
	}

	// Step 3: persist the loan record, carrying the reservation token so
	// the future return saga can address this exact reservation.
	l := &Loan{
		UserID:           sg.userID,
		BookID:           sg.bookID,
		ReservationToken: sg.token,
		IssueDate:        sg.svc.clock.Now(),
		DueDate:          sg.due,
		Status:           StatusActive,
	}
	id, err := sg.svc.records.Create(ctx, l)
	if err != nil {
		return nil, sg.compensate(ctx, err)
	}
	l.ID = id
	return l, nil
}

// compensate releases the reservation at most once and decides what the
// caller sees: the original cause when the release lands, or a
// CompensationFailed wrapping both errors when it does not. The token
// makes a retried release safe on the ledger side, but this guard keeps
// the saga itself from ever issuing two.
func (sg *issueSaga) compensate(ctx context.Context, cause error) error {
	if sg.compensated {
		return cause
	}
	sg.compensated = true

	err := sg.svc.ledger.Release(ctx, sg.bookID, sg.token)
	if isUpstream(err) {
		err = sg.svc.ledger.Release(ctx, sg.bookID, sg.token)
	}
	if err != nil {
		sg.svc.log.Error("issue saga: compensating release failed, reservation leaked",
			"book_id", sg.bookID, "token", sg.token, "cause", cause, "err", err)
		return apperr.ErrCompensationFailed(cause, err)
	}
	return cause
}

// runReturnSaga performs steps 2 and 3 of the return flow; the caller
// has already loaded the loan and rejected double returns.
func (s *Service) runReturnSaga(ctx context.Context, l *Loan) (*Loan, error) {
	// Step 2: hand the copy back. The stored token makes a replay of
	// this step a no-op, and the ledger caps the increment at copies.
	err := s.ledger.Release(ctx, l.BookID, l.ReservationToken)
	if isUpstream(err) {
		err = s.ledger.Release(ctx, l.BookID, l.ReservationToken)
	}
	if err != nil {
		return nil, err
	}

	// Step 3: record the return.
	now := s.clock.Now()
	err = s.records.MarkReturned(ctx, l.ID, now)
	if err == nil {
		l.Status = StatusReturned
		l.ReturnDate = &now
		return l, nil
	}

	// A concurrent return beat us to step 3; its own release was the
	// no-op, the book is genuinely back, nothing to reverse.
	if apperr.CodeOf(err) == apperr.CodeAlreadyReturned {
		return nil, err
	}

	// The copy is advertised as available but the loan is still ACTIVE.
	// Reverse step 2 by re-reserving, or report the inconsistency.
	rerr := s.ledger.ReReserve(ctx, l.BookID, l.ReservationToken)
	if isUpstream(rerr) {
		rerr = s.ledger.ReReserve(ctx, l.BookID, l.ReservationToken)
	}
	if rerr != nil {
		s.log.Error("return saga: re-reserve failed, phantom availability",
			"loan_id", l.ID, "book_id", l.BookID, "token", l.ReservationToken,
			"cause", err, "err", rerr)
		return nil, apperr.ErrInconsistent("copy released but loan still active", errors.Join(err, rerr))
	}
	return nil, err
}
