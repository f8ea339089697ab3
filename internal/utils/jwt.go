// Package utils holds small helpers shared by the command line tools.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed HS256 JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs a token carrying sub and role, the two claims the
// API's JWTAuth middleware requires. Tokens are normally minted by the
// identity service; this is used by cmd/devtoken and tests.
func NewAccessToken(secret, sub, role string, ttl time.Duration, now time.Time) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("jwt secret is empty")
	}
	if sub == "" || role == "" {
		return AccessToken{}, errors.New("sub and role are required")
	}
	if ttl <= 0 {
		return AccessToken{}, errors.New("ttl must be positive")
	}
	now = now.UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
