package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are read from the credential without verifying its signature. They
// are for display only; the server decides what the credential is worth.
type Claims struct {
	Subject     string
	Role        Role
	Permissions []string
	ExpiresAt   time.Time
}

// Expired reports whether the credential carries an expiry that has passed.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

type tokenClaims struct {
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the payload of a JWT credential. Opaque credentials
// return false.
func ParseClaims(token string) (Claims, bool) {
	if token == "" {
		return Claims{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &tokenClaims{})
	if err != nil {
		return Claims{}, false
	}
	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return Claims{}, false
	}
	out := Claims{
		Subject:     tc.Subject,
		Role:        Role(tc.Role),
		Permissions: tc.Permissions,
	}
	if tc.ExpiresAt != nil {
		out.ExpiresAt = tc.ExpiresAt.Time
	}
	return out, true
}
