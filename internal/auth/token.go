// Package auth validates bearer tokens and maps them to ledger principals.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/fitledger/internal/domain"
)

// Config holds the HS256 secret and the issuer every accepted token must name.
type Config struct {
	Secret string
	Issuer string
	Leeway time.Duration // tolerated clock skew on exp and iat
}

// Claims is the verified part of a bearer token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Principal is the ledger identity the token speaks for.
func (c *Claims) Principal() domain.Principal {
	return domain.Principal(c.Subject)
}

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every signature, issuer, expiry or subject failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Parse verifies token against cfg. Tokens must carry an expiry and a non-empty subject.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &registered, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if registered.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	return &Claims{Subject: registered.Subject, ExpiresAt: registered.ExpiresAt.Time}, nil
}

// Sign mints an HS256 token for subject valid for ttl. ledgerctl uses it to hand out
// development tokens.
func Sign(subject string, ttl time.Duration, cfg Config) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
