package users

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"smart-library-backend/internal/platform/apperr"
)

type Repo interface {
	Insert(ctx context.Context, u *User) (int64, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Update(ctx context.Context, id int64, in UpdateUserRequest) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountByRole(ctx context.Context) (map[string]int64, error)
	ListTop(ctx context.Context, limit int) ([]User, error)
}

// BorrowStats is owned by the loan service. Primitive map results so the
// loan store satisfies this directly in single-process mode.
type BorrowStats interface {
	CountBorrowedByUser(ctx context.Context, userIDs []int64) (totals map[int64]int64, active map[int64]int64, err error)
}

const activeLimit = 10

type Service struct {
	store Repo
	stats BorrowStats
	log   *slog.Logger
}

func NewService(store Repo, stats BorrowStats, log *slog.Logger) *Service {
	return &Service{store: store, stats: stats, log: log}
}

func (s *Service) Create(ctx context.Context, in CreateUserRequest) (*UserResponse, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.ErrInvalid("name is required")
	}
	if strings.TrimSpace(in.Email) == "" || !strings.Contains(in.Email, "@") {
		return nil, apperr.ErrInvalid("a valid email is required")
	}
	role := in.Role
	if role == "" {
		role = defaultRole
	}

	u := &User{Name: in.Name, Email: in.Email, Role: role}
	id, err := s.store.Insert(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id
	resp := toResponse(u)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*UserResponse, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(u)
	return &resp, nil
}

func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.store.Exists(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateUserRequest) (*UserResponse, error) {
	if in.Email != nil && !strings.Contains(*in.Email, "@") {
		return nil, apperr.ErrInvalid("a valid email is required")
	}
	if _, err := s.store.Update(ctx, id, in); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	byRole, err := s.store.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsResponse{Total: total, ByRole: byRole}, nil
}

// MostActiveUsers ranks by all-time borrows, degrading to zero counts
// when the loan service cannot answer.
func (s *Service) MostActiveUsers(ctx context.Context) ([]ActiveUserResponse, error) {
	list, err := s.store.ListTop(ctx, activeLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(list))
	for i := range list {
		ids = append(ids, list[i].ID)
	}

	totals := map[int64]int64{}
	active := map[int64]int64{}
	if len(ids) > 0 {
		t, a, err := s.stats.CountBorrowedByUser(ctx, ids)
		if err != nil {
			s.log.Warn("borrow stats unavailable, ranking with zero counts", "err", err)
		} else {
			totals, active = t, a
		}
	}

	out := make([]ActiveUserResponse, 0, len(list))
	for i := range list {
		out = append(out, ActiveUserResponse{
			ID:             list[i].ID,
			Name:           list[i].Name,
			Email:          list[i].Email,
			Role:           list[i].Role,
			BooksBorrowed:  totals[list[i].ID],
			CurrentBorrows: active[list[i].ID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BooksBorrowed > out[j].BooksBorrowed })
	return out, nil
}

func toResponse(u *User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
