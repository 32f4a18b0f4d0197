package loans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"smart-library-backend/internal/platform/apperr"
)

// restClient is the shared JSON plumbing for the owner clients. Transport
// failures and timeouts surface as UPSTREAM_UNAVAILABLE; error payloads
// from a live peer are rehydrated into the code the peer raised.
type restClient struct {
	base string
	hc   *http.Client
}

func newRESTClient(baseURL string, timeout time.Duration) restClient {
	return restClient{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

func (c restClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return apperr.ErrUpstream("call "+path+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var p apperr.Payload
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return apperr.ErrUpstream(fmt.Sprintf("call %s returned %s", path, resp.Status), nil)
		}
		return apperr.FromWire(p)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.ErrUpstream("decode response from "+path, err)
	}
	return nil
}

// BookServiceClient implements InventoryLedger against a remote book
// service.
type BookServiceClient struct {
	restClient
}

func NewBookServiceClient(baseURL string, timeout time.Duration) *BookServiceClient {
	return &BookServiceClient{restClient: newRESTClient(baseURL, timeout)}
}

func (c *BookServiceClient) Reserve(ctx context.Context, bookID int64) (string, error) {
	var out struct {
		BookID int64  `json:"book_id"`
		Token  string `json:"token"`
	}
	path := fmt.Sprintf("/api/books/%d/reserve", bookID)
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *BookServiceClient) Release(ctx context.Context, bookID int64, token string) error {
	path := fmt.Sprintf("/api/books/%d/release", bookID)
	return c.doJSON(ctx, http.MethodPost, path, map[string]string{"token": token}, nil)
}

func (c *BookServiceClient) ReReserve(ctx context.Context, bookID int64, token string) error {
	path := fmt.Sprintf("/api/books/%d/re-reserve", bookID)
	return c.doJSON(ctx, http.MethodPost, path, map[string]string{"token": token}, nil)
}

func (c *BookServiceClient) GetBook(ctx context.Context, bookID int64) (*BookRef, error) {
	var out struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Author string `json:"author"`
	}
	path := fmt.Sprintf("/api/books/%d", bookID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &BookRef{ID: out.ID, Title: out.Title, Author: out.Author}, nil
}

func (c *BookServiceClient) Stats(ctx context.Context) (*LedgerStats, error) {
	var out struct {
		Total       int64 `json:"total"`
		TotalCopies int64 `json:"total_copies"`
		Available   int64 `json:"available"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/books/stats", nil, &out); err != nil {
		return nil, err
	}
	return &LedgerStats{TotalBooks: out.Total, TotalCopies: out.TotalCopies, AvailableCopies: out.Available}, nil
}

// UserServiceClient implements BorrowerDirectory against a remote user
// service.
type UserServiceClient struct {
	restClient
}

func NewUserServiceClient(baseURL string, timeout time.Duration) *UserServiceClient {
	return &UserServiceClient{restClient: newRESTClient(baseURL, timeout)}
}

func (c *UserServiceClient) GetUser(ctx context.Context, userID int64) (*UserRef, error) {
	var out struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	path := fmt.Sprintf("/api/users/%d", userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &UserRef{ID: out.ID, Name: out.Name, Email: out.Email}, nil
}

func (c *UserServiceClient) Stats(ctx context.Context) (*DirectoryStats, error) {
	var out struct {
		Total int64 `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/stats", nil, &out); err != nil {
		return nil, err
	}
	return &DirectoryStats{TotalUsers: out.Total}, nil
}
