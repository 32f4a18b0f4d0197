package books

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sort"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"smart-library-backend/internal/platform/apperr"
)

// Repo is what the service needs from persistence.
type Repo interface {
	Insert(ctx context.Context, b *Book) (int64, error)
	GetByID(ctx context.Context, id int64) (*Book, error)
	Update(ctx context.Context, id int64, in UpdateBookRequest) (int64, error)
	AddCopies(ctx context.Context, id int64, n int) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Search(ctx context.Context, query string) ([]Book, error)
	ExecReserve(ctx context.Context, bookID int64, token string, now time.Time) error
	ExecRelease(ctx context.Context, bookID int64, token string, now time.Time) error
	ExecReReserve(ctx context.Context, bookID int64, token string) error
	Stats(ctx context.Context) (LedgerStats, error)
	ListTop(ctx context.Context, limit int) ([]Book, error)
}

// BorrowCounts is owned by the loan service; popularity rankings degrade
// to zero counts when it is unreachable.
type BorrowCounts interface {
	CountBorrowed(ctx context.Context, bookIDs []int64) (map[int64]int64, error)
}

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

const popularLimit = 10

type Service struct {
	store  Repo
	counts BorrowCounts
	clock  Clock
	id     IDGen
	log    *slog.Logger
}

func NewService(store Repo, counts BorrowCounts, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		counts: counts,
		clock:  realClock{},
		id:     ulidGen{},
		log:    log,
	}
}

func (s *Service) Create(ctx context.Context, in CreateBookRequest) (*BookResponse, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperr.ErrInvalid("title is required")
	}
	if strings.TrimSpace(in.Author) == "" {
		return nil, apperr.ErrInvalid("author is required")
	}
	if strings.TrimSpace(in.ISBN) == "" {
		return nil, apperr.ErrInvalid("isbn is required")
	}
	if in.Copies < 0 {
		return nil, apperr.ErrInvalid("copies must be >= 0")
	}

	b := &Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Copies:          in.Copies,
		AvailableCopies: in.Copies,
	}
	id, err := s.store.Insert(ctx, b)
	if err != nil {
		return nil, err
	}
	b.ID = id
	resp := toResponse(b)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*BookResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(b)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateBookRequest) (*BookResponse, error) {
	if _, err := s.store.Update(ctx, id, in); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) AddCopies(ctx context.Context, id int64, n int) (*BookResponse, error) {
	if n <= 0 {
		return nil, apperr.ErrInvalid("count must be > 0")
	}
	aff, err := s.store.AddCopies(ctx, id, n)
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, apperr.ErrNotFound("book not found")
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	aff, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if aff == 0 {
		return apperr.ErrNotFound("book not found")
	}
	return nil
}

func (s *Service) Search(ctx context.Context, query string) ([]BookResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.ErrInvalid("query is required")
	}
	list, err := s.store.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]BookResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	return out, nil
}

// Reserve consumes one available copy and hands back the token that
// addresses this exact decrement for a later release.
func (s *Service) Reserve(ctx context.Context, bookID int64) (*ReserveResponse, error) {
	if bookID <= 0 {
		return nil, apperr.ErrInvalid("book id must be > 0")
	}
	now := s.clock.Now()
	token := s.id.NewULID(now)
	if err := s.store.ExecReserve(ctx, bookID, token, now); err != nil {
		return nil, err
	}
	return &ReserveResponse{BookID: bookID, Token: token}, nil
}

func (s *Service) Release(ctx context.Context, bookID int64, token string) error {
	if bookID <= 0 {
		return apperr.ErrInvalid("book id must be > 0")
	}
	return s.store.ExecRelease(ctx, bookID, token, s.clock.Now())
}

func (s *Service) ReReserve(ctx context.Context, bookID int64, token string) error {
	if bookID <= 0 {
		return apperr.ErrInvalid("book id must be > 0")
	}
	return s.store.ExecReReserve(ctx, bookID, token)
}

func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsResponse{
		Total:       st.TotalBooks,
		TotalCopies: st.TotalCopies,
		Available:   st.AvailableCopies,
	}, nil
}

// PopularBooks ranks by all-time borrow count. When the loan service is
// unreachable the ranking degrades to zero counts instead of failing.
func (s *Service) PopularBooks(ctx context.Context) ([]PopularBookResponse, error) {
	list, err := s.store.ListTop(ctx, popularLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(list))
	for i := range list {
		ids = append(ids, list[i].ID)
	}

	counts := map[int64]int64{}
	if len(ids) > 0 {
		got, err := s.counts.CountBorrowed(ctx, ids)
		if err != nil {
			s.log.Warn("borrow counts unavailable, ranking with zero counts", "err", err)
		} else {
			counts = got
		}
	}

	out := make([]PopularBookResponse, 0, len(list))
	for i := range list {
		out = append(out, PopularBookResponse{
			ID:              list[i].ID,
			Title:           list[i].Title,
			Author:          list[i].Author,
			AvailableCopies: list[i].AvailableCopies,
			BorrowCount:     counts[list[i].ID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BorrowCount > out[j].BorrowCount })
	return out, nil
}

func toResponse(b *Book) BookResponse {
	return BookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		Copies:          b.Copies,
		AvailableCopies: b.AvailableCopies,
	}
}
