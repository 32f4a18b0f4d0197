package books

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

// LoanCountsClient implements BorrowCounts against a remote loan service.
type LoanCountsClient struct {
	base string
	hc   *http.Client
}

func NewLoanCountsClient(baseURL string, timeout time.Duration) *LoanCountsClient {
	return &LoanCountsClient{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

func (c *LoanCountsClient) CountBorrowed(ctx context.Context, bookIDs []int64) (map[int64]int64, error) {
	ids := make([]string, 0, len(bookIDs))
	for _, id := range bookIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	url := fmt.Sprintf("%s/api/loans/stats/books?ids=%s", c.base, strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, apperr.ErrUpstream("loan service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var p apperr.Payload
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return nil, apperr.ErrUpstream("loan service returned "+resp.Status, nil)
		}
		return nil, apperr.FromWire(p)
	}

	// JSON object keys are strings; convert back to ids.
	var raw map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperr.ErrUpstream("decode borrow counts", err)
	}
	out := make(map[int64]int64, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, nil
}
