package loans

import "time"

const (
	StatusActive   = "ACTIVE"
	StatusReturned = "RETURNED"
)

// A loan can be extended twice, ever. The third attempt is rejected and
// leaves due_date untouched.
const maxExtensions = 2

const defaultExtensionDays = 7

// Loan is one row of the loans table. ReservationToken is the ledger
// token minted by the issue saga; the return saga releases exactly that
// token, which is what makes a replayed return safe. Loans are never
// deleted, history feeds the statistics endpoints.
type Loan struct {
	ID               int64
	UserID           int64
	BookID           int64
	ReservationToken string
	IssueDate        time.Time
	DueDate          time.Time
	ReturnDate       *time.Time
	Status           string
	ExtensionsCount  int
}

// BookRef is the slice of a book the loan service needs for enrichment.
type BookRef struct {
	ID     int64
	Title  string
	Author string
}

type UserRef struct {
	ID    int64
	Name  string
	Email string
}

type LedgerStats struct {
	TotalBooks      int64
	TotalCopies     int64
	AvailableCopies int64
}

type DirectoryStats struct {
	TotalUsers int64
}
