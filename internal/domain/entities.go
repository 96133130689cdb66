package domain

import (
	"fmt"
	"strings"
	"time"
)

// Photo is a catalog record as returned by a single fetch.
// It is never persisted; favorites copy what they need out of it.
type Photo struct {
	ID          string
	Description string // alt_description or description, whichever is set
	Width       int
	Height      int
	Color       string // dominant color hex, e.g. "#0c2626"
	Likes       int
	CreatedAt   time.Time

	// Image URLs by resolution
	ThumbURL   string
	SmallURL   string
	RegularURL string
	FullURL    string

	// Creator
	AuthorName     string
	AuthorUsername string

	// Links
	DownloadLocation string // issuance endpoint, must be hit before a download
	PageURL          string // public page on the catalog site
}

// GetID returns the catalog identifier
func (p Photo) GetID() string { return p.ID }

// GetTitle returns a display title for list rendering
func (p Photo) GetTitle() string {
	if p.Description != "" {
		return p.Description
	}
	return "Photo by " + p.AuthorName
}

// Handle returns the creator's username prefixed with @
func (p Photo) Handle() string {
	if p.AuthorUsername == "" {
		return ""
	}
	return "@" + p.AuthorUsername
}

// Dimensions returns "W×H" or empty when unknown
func (p Photo) Dimensions() string {
	if p.Width == 0 || p.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%d×%d", p.Width, p.Height)
}

// Favorite is a snapshot of a photo taken when the user favorited it.
// JSON names match the web client's localStorage layout so exports are interchangeable.
type Favorite struct {
	ID                string    `json:"id"`
	ThumbnailURL      string    `json:"url"`
	FullURL           string    `json:"fullUrl"`
	AttributionName   string    `json:"photographer"`
	AttributionHandle string    `json:"username"`
	DownloadEndpoint  string    `json:"downloadLocation"`
	AddedAt           time.Time `json:"addedAt,omitzero"`
}

// FavoriteFromPhoto copies the fields a favorite keeps out of a catalog photo.
func FavoriteFromPhoto(p Photo) Favorite {
	return Favorite{
		ID:                p.ID,
		ThumbnailURL:      p.SmallURL,
		FullURL:           p.RegularURL,
		AttributionName:   p.AuthorName,
		AttributionHandle: p.AuthorUsername,
		DownloadEndpoint:  p.DownloadLocation,
		AddedAt:           time.Now().UTC(),
	}
}

// GetID returns the catalog identifier
func (f Favorite) GetID() string { return f.ID }

// GetTitle returns the display title used for filtering and lists
func (f Favorite) GetTitle() string {
	if f.AttributionHandle != "" {
		return f.AttributionName + " @" + f.AttributionHandle
	}
	return f.AttributionName
}

// AnnotatedPhoto pairs a catalog photo with its favorite status for rendering
type AnnotatedPhoto struct {
	Photo
	Favorited bool
}

// User is the signed-in account as reported by the identity provider
type User struct {
	ID        string
	Email     string
	Username  string // user_metadata.username
	AvatarURL string // user_metadata.avatar_url
	Provider  string // app_metadata.provider ("email", "google")
}

// DisplayName returns the username, falling back to the email's local part
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return "Pixora User"
}

// Session holds the tokens of an authenticated session
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// Expired reports whether the access token is past its expiry (with a small skew)
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(30 * time.Second).Before(s.ExpiresAt)
}

// Valid reports whether the session carries tokens at all
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}
