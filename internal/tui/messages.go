package tui

import (
	"github.com/mmcdole/pixora/internal/catalog"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/download"
	"github.com/mmcdole/pixora/internal/preview"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// PhotosLoadedMsg carries the completion of a catalog fetch
type PhotosLoadedMsg struct {
	Result catalog.Result
}

// FavoriteToggledMsg reports the outcome of toggling a photo
type FavoriteToggledMsg struct {
	ID        string
	Title     string
	Favorited bool
	Err       error
}

// FavoriteRemovedMsg reports the outcome of removing a favorite
type FavoriteRemovedMsg struct {
	ID  string
	Err error
}

// FavoritesChangedMsg forwards a favorites store event onto the event loop
type FavoritesChangedMsg struct {
	Event domain.FavoritesEvent
}

// SessionChangedMsg forwards a session event onto the event loop
type SessionChangedMsg struct {
	Event domain.SessionEvent
}

// DownloadDoneMsg reports a finished download
type DownloadDoneMsg struct {
	ID      string
	Outcome download.Outcome
	Err     error
}

// LinkCopiedMsg reports a copied download link
type LinkCopiedMsg struct {
	URL string
	Err error
}

// PreviewReadyMsg carries a rendered preview
type PreviewReadyMsg struct {
	Request preview.Request
	Art     string
	Err     error
}

// UsernameUpdatedMsg reports the outcome of a username edit
type UsernameUpdatedMsg struct {
	User *domain.User
	Err  error
}

// SignedOutMsg reports the outcome of signing out
type SignedOutMsg struct {
	Err error
}

// ClearStatusMsg clears the status bar message if it is still the one with Seq
type ClearStatusMsg struct {
	Seq int
}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}
