package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// CustomClaims is what a session token carries.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), duration: duration, now: time.Now}
}

// Duration is how long a freshly issued token stays valid.
func (i *TokenIssuer) Duration() time.Duration {
	return i.duration
}

// GenerateToken creates a signed token for the principal.
func (i *TokenIssuer) GenerateToken(principal domain.Principal) (string, error) {
	now := i.now()
	claims := &CustomClaims{
		UserID:   principal.UserID,
		Username: principal.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm, issuer and expiry, and returns
// the principal the token was issued for.
func (i *TokenIssuer) ValidateToken(tokenString string) (domain.Principal, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", errors.ErrAuthentication, err)
	}
	if !token.Valid || claims.UserID == "" {
		return domain.Principal{}, fmt.Errorf("%w: invalid token", errors.ErrAuthentication)
	}
	return domain.Principal{UserID: claims.UserID, DisplayName: claims.Username}, nil
}
