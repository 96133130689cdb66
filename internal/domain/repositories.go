package domain

import (
	"context"
)

// CatalogRepository provides access to the hosted photo catalog
type CatalogRepository interface {
	// ListPhotos returns the default editorial feed
	ListPhotos(ctx context.Context, perPage int) ([]Photo, error)

	// SearchPhotos returns photos matching the query
	SearchPhotos(ctx context.Context, query string, perPage int) ([]Photo, error)

	// IssueDownload hits a download_location endpoint and returns the one-time direct URL
	IssueDownload(ctx context.Context, downloadLocation string) (string, error)
}

// IdentityProvider is the hosted authentication backend
type IdentityProvider interface {
	// SignInWithPassword exchanges email and password for a session
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignUp registers an account with a username stored in user metadata.
	// The returned session is nil when the provider requires email confirmation.
	SignUp(ctx context.Context, email, password, username string) (*Session, error)

	// SignOut revokes the session's refresh token
	SignOut(ctx context.Context, session *Session) error

	// Refresh exchanges a refresh token for a new session
	Refresh(ctx context.Context, refreshToken string) (*Session, error)

	// GetUser returns the account behind an access token
	GetUser(ctx context.Context, accessToken string) (*User, error)

	// UpdateUsername sets user_metadata.username
	UpdateUsername(ctx context.Context, accessToken, username string) (*User, error)
}

// AuthResult contains the result of a successful interactive authentication
type AuthResult struct {
	Session *Session
	// Pending is true when sign-up succeeded but the account awaits email confirmation
	Pending bool
}

// AuthFlow is an interactive authentication flow run from the command line.
// - Password: prompts for email and hidden password
// - OAuth: opens the provider's consent page and waits for the loopback callback
type AuthFlow interface {
	Run(ctx context.Context) (*AuthResult, error)
}
