package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is what the device reads from the session token. The signature
// is checked by the member service, not here.
type TokenClaims struct {
	Subject   string
	ExpiresAt *time.Time
}

// ReadTokenClaims parses token without verifying it.
func ReadTokenClaims(token string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("failed to parse session token: %w", err)
	}

	var out TokenClaims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}
	return out, nil
}

// Expired reports whether the claims carry an expiry at or before now.
func (c TokenClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

var errOpaqueToken = errors.New("session token is not a JWT")

// tokenSubject returns the subject of a JWT session token.
func tokenSubject(token string) (string, error) {
	if token == "" {
		return "", errOpaqueToken
	}
	claims, err := ReadTokenClaims(token)
	if err != nil {
		return "", errors.Join(errOpaqueToken, err)
	}
	return claims.Subject, nil
}
