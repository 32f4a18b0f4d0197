package loans

import (
	"context"

	"smart-library-backend/internal/books"
	"smart-library-backend/internal/users"
)

// LocalLedger adapts the in-process book service to the coordinator's
// ledger interface for the all-in-one deployment.
type LocalLedger struct {
	Books *books.Service
}

func (l LocalLedger) Reserve(ctx context.Context, bookID int64) (string, error) {
	r, err := l.Books.Reserve(ctx, bookID)
	if err != nil {
		return "", err
	}
	return r.Token, nil
}

func (l LocalLedger) Release(ctx context.Context, bookID int64, token string) error {
	return l.Books.Release(ctx, bookID, token)
}

func (l LocalLedger) ReReserve(ctx context.Context, bookID int64, token string) error {
	return l.Books.ReReserve(ctx, bookID, token)
}

func (l LocalLedger) GetBook(ctx context.Context, bookID int64) (*BookRef, error) {
	b, err := l.Books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return &BookRef{ID: b.ID, Title: b.Title, Author: b.Author}, nil
}

func (l LocalLedger) Stats(ctx context.Context) (*LedgerStats, error) {
	st, err := l.Books.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &LedgerStats{TotalBooks: st.Total, TotalCopies: st.TotalCopies, AvailableCopies: st.Available}, nil
}

// LocalDirectory adapts the in-process user service to the coordinator's
// directory interface.
type LocalDirectory struct {
	Users *users.Service
}

func (d LocalDirectory) GetUser(ctx context.Context, userID int64) (*UserRef, error) {
	u, err := d.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserRef{ID: u.ID, Name: u.Name, Email: u.Email}, nil
}

func (d LocalDirectory) Stats(ctx context.Context) (*DirectoryStats, error) {
	st, err := d.Users.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &DirectoryStats{TotalUsers: st.Total}, nil
}
