package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoExpiry = errors.New("token carries no exp claim")

var parser = jwt.NewParser()

// AccessTokenExpiry reads the exp claim of a JWT access token without
// verifying its signature. The agent never holds the signing key; the result
// only decides whether a validation round-trip is worth making.
func AccessTokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// ExpiredAt reports whether token is a JWT whose exp claim is at or before
// now, allowing leeway for clock skew. Opaque tokens are never reported expired.
func ExpiredAt(token string, now time.Time, leeway time.Duration) bool {
	exp, err := AccessTokenExpiry(token)
	if err != nil {
		return false
	}
	return !now.Before(exp.Add(-leeway))
}
