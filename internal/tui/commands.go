package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/download"
	"github.com/mmcdole/pixora/internal/preview"
)

// Command factories for async operations.
// The catalog view model applies its own timeout; everything else gets one here.

// FetchDefaultCmd loads the default feed
func FetchDefaultCmd(vm catalogModel) tea.Cmd {
	return func() tea.Msg {
		return PhotosLoadedMsg{Result: vm.FetchDefault(context.Background())}
	}
}

// SearchCmd runs a catalog search
func SearchCmd(vm catalogModel, term string) tea.Cmd {
	return func() tea.Msg {
		return PhotosLoadedMsg{Result: vm.Search(context.Background(), term)}
	}
}

// RefreshCmd repeats the last fetch
func RefreshCmd(vm catalogModel) tea.Cmd {
	return func() tea.Msg {
		return PhotosLoadedMsg{Result: vm.Refresh(context.Background())}
	}
}

// ToggleFavoriteCmd flips a photo's favorite state
func ToggleFavoriteCmd(favs favoritesModel, photo domain.Photo) tea.Cmd {
	return func() tea.Msg {
		favorited, err := favs.Toggle(photo)
		return FavoriteToggledMsg{ID: photo.ID, Title: photo.GetTitle(), Favorited: favorited, Err: err}
	}
}

// RemoveFavoriteCmd removes a favorite by id
func RemoveFavoriteCmd(favs favoritesModel, id string) tea.Cmd {
	return func() tea.Msg {
		return FavoriteRemovedMsg{ID: id, Err: favs.Remove(id)}
	}
}

// DownloadCmd issues and materializes a download
func DownloadCmd(svc downloader, t download.Target) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		outcome, err := svc.Download(ctx, t)
		return DownloadDoneMsg{ID: t.ID, Outcome: outcome, Err: err}
	}
}

// CopyLinkCmd issues a download and copies the direct link
func CopyLinkCmd(svc downloader, t download.Target) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		url, err := svc.CopyLink(ctx, t)
		return LinkCopiedMsg{URL: url, Err: err}
	}
}

// RenderPreviewCmd renders a single preview
func RenderPreviewCmd(p previewer, req preview.Request) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		art, err := p.Render(ctx, req)
		return PreviewReadyMsg{Request: req, Art: art, Err: err}
	}
}

// PrefetchCmd warms the preview cache for reqs in the background
func PrefetchCmd(p previewer, reqs []preview.Request) tea.Cmd {
	return func() tea.Msg {
		p.Prefetch(context.Background(), reqs, nil)
		return nil
	}
}

// UpdateUsernameCmd changes the signed-in user's username
func UpdateUsernameCmd(s sessionModel, username string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		user, err := s.UpdateUsername(ctx, username)
		return UsernameUpdatedMsg{User: user, Err: err}
	}
}

// SignOutCmd ends the session
func SignOutCmd(s sessionModel) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return SignedOutMsg{Err: s.SignOut(ctx)}
	}
}

// ListenCmd waits for the next event forwarded from a store or the session
func ListenCmd(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(seq int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{Seq: seq}
	})
}
