package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store  *Store
	secret []byte
}

func NewService(store *Store, secret string) *Service {
	return &Service{
		store:  store,
		secret: []byte(secret),
	}
}

var ErrInvalidCredentials = errors.New("invalid credentials")

func (s *Service) Authenticate(ctx context.Context, username, password string) (*Operator, string, error) {
	op, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(op)
	if err != nil {
		return nil, "", err
	}
	return op, token, nil
}

type Claims struct {
	OperatorID int64  `json:"uid"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	jwt.RegisteredClaims
}

func (s *Service) issueToken(op *Operator) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		OperatorID: op.ID,
		Username:   op.Username,
		Role:       op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

func (s *Service) ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
