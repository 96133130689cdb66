package supabase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token fields the client reads locally
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseClaims reads an access token's claims without verifying its signature.
// The token came from the provider over TLS; only the provider can verify it.
func ParseClaims(token string) (Claims, error) {
	var c accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Claims{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	out := Claims{Subject: c.Subject, Email: c.Email}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
