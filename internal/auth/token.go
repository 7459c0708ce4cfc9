package auth

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

// Claims is the JWT payload. Subject carries the username.
type Claims struct {
	Role Role `json:"role"`
	jwtlib.RegisteredClaims
}

// Username returns the authenticated user, which is also the tenant id.
func (c *Claims) Username() string { return c.Subject }

// IsAdmin reports whether the token grants write access.
func (c *Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. secret must be non-empty.
func NewTokens(secret []byte, ttl time.Duration) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, apperr.NotConfigured("JWT secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for u and returns it with its expiry.
func (t *Tokens) Issue(u *User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a token. Every failure wraps apperr.ErrUnauthorized.
func (t *Tokens) Parse(token string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(tok *jwtlib.Token) (any, error) {
		if tok.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwtlib.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: token carries unknown role %q", apperr.ErrUnauthorized, claims.Role)
	}
	return claims, nil
}
