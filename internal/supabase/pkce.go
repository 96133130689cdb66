package supabase

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// PKCE holds a code verifier and its S256 challenge
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh verifier (64 hex chars) and its challenge
func NewPKCE() PKCE {
	verifier := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return PKCE{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
	}
}

// Challenge derives the S256 code challenge for verifier
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
