package loans

import "time"

type IssueLoanRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	BookID  int64  `json:"book_id" binding:"required"`
	DueDate string `json:"due_date" binding:"required"` // YYYY-MM-DD
}

type ExtendLoanRequest struct {
	ExtensionDays *int `json:"extension_days,omitempty"` // defaults to 7
}

type LoanResponse struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	BookID          int64      `json:"book_id"`
	IssueDate       time.Time  `json:"issue_date"`
	DueDate         time.Time  `json:"due_date"`
	ReturnDate      *time.Time `json:"return_date,omitempty"`
	Status          string     `json:"status"`
	ExtensionsCount int        `json:"extensions_count"`
}

type BookSnippet struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type UserSnippet struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UserLoanResponse struct {
	LoanResponse
	Book *BookSnippet `json:"book,omitempty"`
}

type OverdueLoanResponse struct {
	LoanResponse
	DaysOverdue int          `json:"days_overdue"`
	User        *UserSnippet `json:"user,omitempty"`
	Book        *BookSnippet `json:"book,omitempty"`
}

type OverviewResponse struct {
	TotalBooks     int64 `json:"total_books"`
	TotalUsers     int64 `json:"total_users"`
	BooksAvailable int64 `json:"books_available"`
	BooksBorrowed  int64 `json:"books_borrowed"`
	OverdueLoans   int64 `json:"overdue_loans"`
	LoansToday     int64 `json:"loans_today"`
	ReturnsToday   int64 `json:"returns_today"`
}

type LoanStatsResponse struct {
	ByStatus     map[string]int64 `json:"by_status"`
	Overdue      int64            `json:"overdue"`
	LoansToday   int64            `json:"loans_today"`
	ReturnsToday int64            `json:"returns_today"`
}

type UserBorrowStats struct {
	BooksBorrowed  int64 `json:"books_borrowed"`
	CurrentBorrows int64 `json:"current_borrows"`
}
