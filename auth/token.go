// Package auth inspects the bearer credentials handed out by the platform.
//
// Tokens are decoded without signature verification: the client never holds
// the signing key, it only needs to know when a token should be refreshed.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMargin is subtracted from a token's expiry before comparing it with now.
const ExpiryMargin = 60 * time.Second

var (
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrNoExpiry       = errors.New("auth: token has no exp claim")
)

var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// ExpiresAt returns the exp claim of token. Only the claims segment is
// decoded; the header and signature are ignored.
func ExpiresAt(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, ErrMalformedToken
	}
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, errors.Join(ErrMalformedToken, err)
	}
	claims := jwt.MapClaims{}
	if err := sonic.ConfigStd.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, errors.Join(ErrMalformedToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Join(ErrMalformedToken, err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// IsExpired reports whether token must be refreshed. Anything that cannot be
// decoded, or that carries no exp claim, counts as expired.
func IsExpired(token string) bool {
	return IsExpiredAt(token, time.Now())
}

// IsExpiredAt is IsExpired against an explicit clock.
func IsExpiredAt(token string, now time.Time) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return !exp.Add(-ExpiryMargin).After(now)
}
