package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"smart-library-backend/internal/platform/apperr"
)

const tokenTTL = 24 * time.Hour

type Service struct {
	store  AccountStore
	secret []byte
}

func NewService(db *sql.DB, secret []byte) *Service {
	return &Service{store: NewStore(db), secret: secret}
}

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		return "", apperr.ErrUnauthorized("authentication failed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", apperr.ErrUnauthorized("authentication failed")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: acct.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.ErrInternal("sign token: " + err.Error())
	}
	return signed, nil
}

func (s *Service) Register(ctx context.Context, id, password, role string) error {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.ErrConflict("account id already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.ErrInternal("hash password: " + err.Error())
	}

	return s.store.Create(ctx, &Account{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
	})
}
