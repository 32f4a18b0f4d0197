package users

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smart-library-backend/internal/platform/apperr"
)

// LoanStatsClient implements BorrowStats against a remote loan service.
type LoanStatsClient struct {
	base string
	hc   *http.Client
}

func NewLoanStatsClient(baseURL string, timeout time.Duration) *LoanStatsClient {
	return &LoanStatsClient{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

func (c *LoanStatsClient) CountBorrowedByUser(ctx context.Context, userIDs []int64) (map[int64]int64, map[int64]int64, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	url := fmt.Sprintf("%s/api/loans/stats/users?ids=%s", c.base, strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, nil, apperr.ErrUpstream("loan service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var p apperr.Payload
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return nil, nil, apperr.ErrUpstream("loan service returned "+resp.Status, nil)
		}
		return nil, nil, apperr.FromWire(p)
	}

	var raw map[string]struct {
		BooksBorrowed  int64 `json:"books_borrowed"`
		CurrentBorrows int64 `json:"current_borrows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, nil, apperr.ErrUpstream("decode borrow stats", err)
	}

	totals := make(map[int64]int64, len(raw))
	active := make(map[int64]int64, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		totals[id] = v.BooksBorrowed
		active[id] = v.CurrentBorrows
	}
	return totals, active, nil
}
