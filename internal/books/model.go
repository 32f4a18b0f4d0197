package books

import "time"

// Book is one row of the books table. available_copies is only ever
// changed by the reservation ledger (reserve/release/re-reserve) or by
// AddCopies; plain updates never touch it.
type Book struct {
	ID              int64
	Title           string
	Author          string
	ISBN            string
	Copies          int
	AvailableCopies int
}

// Reservation is one row of the book_reservations table. A token is the
// idempotency key for exactly one decrement of available_copies.
type Reservation struct {
	Token      string
	BookID     int64
	Status     string // HELD | RELEASED
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

const (
	reservationHeld     = "HELD"
	reservationReleased = "RELEASED"
)

type LedgerStats struct {
	TotalBooks      int64
	TotalCopies     int64
	AvailableCopies int64
}
