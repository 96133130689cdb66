package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrCatalogUnavailable indicates the photo catalog could not be reached
	ErrCatalogUnavailable = errors.New("photo catalog is unreachable")

	// ErrUnauthorized indicates the catalog rejected the access key
	ErrUnauthorized = errors.New("catalog access key is invalid")

	// ErrRateLimited indicates the catalog's hourly request quota is exhausted
	ErrRateLimited = errors.New("catalog rate limit exceeded")

	// ErrUpstream indicates the catalog answered with an unexpected status
	ErrUpstream = errors.New("catalog returned an error")

	// ErrEmptyQuery indicates a search was attempted with a blank term
	ErrEmptyQuery = errors.New("search term is empty")

	// ErrDownloadFailed indicates a download URL could not be issued or materialized
	ErrDownloadFailed = errors.New("failed to download image")

	// ErrInvalidCredentials indicates the identity provider rejected the credentials
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrNotSignedIn indicates an operation needs a session and none exists
	ErrNotSignedIn = errors.New("not signed in")

	// ErrSessionExpired indicates the refresh token was rejected
	ErrSessionExpired = errors.New("session expired, please sign in again")

	// ErrIdentityUnavailable indicates the identity provider could not be reached
	ErrIdentityUnavailable = errors.New("identity provider is unreachable")
)
