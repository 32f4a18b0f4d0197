package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"smart-library-backend/internal/platform/apperr"
)

type fakeStore struct {
	byIDFn   func(ctx context.Context, id string) (*Account, error)
	createFn func(ctx context.Context, a *Account) error
}

var _ AccountStore = (*fakeStore)(nil)

func (f *fakeStore) GetByID(ctx context.Context, id string) (*Account, error) {
	if f.byIDFn == nil {
		return nil, nil
	}
	return f.byIDFn(ctx, id)
}

func (f *fakeStore) Create(ctx context.Context, a *Account) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, a)
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

var testSecret = []byte("test-secret")

func TestLogin_Success(t *testing.T) {
	hashed := mustHash(t, "supersecret")
	store := &fakeStore{
		byIDFn: func(ctx context.Context, id string) (*Account, error) {
			return &Account{ID: id, PasswordHash: hashed, Role: "librarian"}, nil
		},
	}
	svc := &Service{store: store, secret: testSecret}

	token, err := svc.Login(context.Background(), "alice", "supersecret")
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestLogin_WrongPassword(t *testing.T) {
	hashed := mustHash(t, "correct")
	store := &fakeStore{
		byIDFn: func(ctx context.Context, id string) (*Account, error) {
			return &Account{ID: id, PasswordHash: hashed, Role: "librarian"}, nil
		},
	}
	svc := &Service{store: store, secret: testSecret}

	_, err := svc.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	require.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
}

func TestLogin_UnknownOrDisabledAccount(t *testing.T) {
	svc := &Service{store: &fakeStore{}, secret: testSecret}
	_, err := svc.Login(context.Background(), "nobody", "x")
	require.Error(t, err)
	require.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))

	hashed := mustHash(t, "supersecret")
	svc = &Service{store: &fakeStore{
		byIDFn: func(ctx context.Context, id string) (*Account, error) {
			return &Account{ID: id, PasswordHash: hashed, IsDisabled: true}, nil
		},
	}, secret: testSecret}
	_, err = svc.Login(context.Background(), "alice", "supersecret")
	require.Error(t, err)
	require.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
}

func TestRegister_DuplicateID(t *testing.T) {
	store := &fakeStore{
		byIDFn: func(ctx context.Context, id string) (*Account, error) {
			return &Account{ID: id}, nil
		},
	}
	svc := &Service{store: store, secret: testSecret}

	err := svc.Register(context.Background(), "alice", "pw", "librarian")
	require.Error(t, err)
	require.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

// A token minted by Login must pass RequireAuth and land the subject and
// role on the request context.
func TestTokenRoundTripThroughMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hashed := mustHash(t, "supersecret")
	store := &fakeStore{
		byIDFn: func(ctx context.Context, id string) (*Account, error) {
			return &Account{ID: id, PasswordHash: hashed, Role: "librarian"}, nil
		},
	}
	svc := &Service{store: store, secret: testSecret}

	token, err := svc.Login(context.Background(), "alice", "supersecret")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/probe", RequireAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"account": c.GetString(CtxAccountIDKey),
			"role":    c.GetString(CtxRoleKey),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"account":"alice"`)
	require.Contains(t, w.Body.String(), `"role":"librarian"`)
}

func TestRequireAuth_RejectsBadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/probe", RequireAuth(testSecret), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, header := range []string{"", "Bearer garbage", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/probe", func(c *gin.Context) {
		c.Set(CtxRoleKey, "member")
		c.Next()
	}, RequireRole("librarian"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
