// Package token decodes JWT bearer credentials without verifying them.
//
// The decoded claims are advisory only, used to extract the user id for
// profile lookups. The server is the sole authority on token validity; a
// token that decodes fine here can still be rejected remotely.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed indicates the credential could not be decoded: wrong segment
// count, invalid base64, invalid JSON, or a missing id claim. Callers treat a
// malformed stored token the same as no token at all.
var ErrMalformed = errors.New("token: malformed credential")

// Claims is the decoded JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	UserID   int    `json:"id"`
}

// Decode parses the payload segment of a compact JWT without checking its
// signature. A missing id claim is treated as a decode failure.
func Decode(credential string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing id claim", ErrMalformed)
	}
	return claims, nil
}

// ExpiresBefore reports whether the claims carry an expiry earlier than t.
// Claims without an exp field never report as expired; the server decides.
func (c *Claims) ExpiresBefore(t time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(t)
}
