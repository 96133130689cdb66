package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/pixora/internal/catalog"
	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/download"
	"github.com/mmcdole/pixora/internal/favorites"
	"github.com/mmcdole/pixora/internal/preview"
	"github.com/mmcdole/pixora/internal/tui/components"
	"github.com/mmcdole/pixora/internal/tui/styles"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateBrowsing ApplicationState = iota
	StateSearching
	StateFiltering
	StateDetail
	StateHelp
	StateEditUsername
	StateConfirmSignOut
)

// View is one of the top-level screens
type View int

const (
	ViewHome View = iota
	ViewFavorites
	ViewProfile
)

func (v View) String() string {
	switch v {
	case ViewFavorites:
		return "Favorites"
	case ViewProfile:
		return "Profile"
	default:
		return "Discover"
	}
}

const (
	// Header and footer lines
	ChromeHeight = 2

	DefaultGridColumns = 4
	statusDuration     = 4 * time.Second
)

// Consumer-defined interfaces for the collaborators the model drives

type catalogModel interface {
	FetchDefault(ctx context.Context) catalog.Result
	Search(ctx context.Context, term string) catalog.Result
	Refresh(ctx context.Context) catalog.Result
	Snapshot() catalog.Snapshot
	Cancel()
}

type favoritesModel interface {
	List() []domain.Favorite
	Count() int
	IsFavorited(id string) bool
	Toggle(photo domain.Photo) (bool, error)
	Remove(id string) error
	Subscribe(fn func(domain.FavoritesEvent)) func()
}

type downloader interface {
	Download(ctx context.Context, t download.Target) (download.Outcome, error)
	CopyLink(ctx context.Context, t download.Target) (string, error)
	Mode() config.DownloadMode
}

type previewer interface {
	Render(ctx context.Context, req preview.Request) (string, error)
	Cached(req preview.Request) (string, bool)
	Prefetch(ctx context.Context, reqs []preview.Request, done func(preview.Request))
}

type sessionModel interface {
	User() *domain.User
	SignedIn() bool
	IdentityConfigured() bool
	UpdateUsername(ctx context.Context, username string) (*domain.User, error)
	SignOut(ctx context.Context) error
	Subscribe(fn func(domain.SessionEvent)) func()
}

// Options tunes presentation
type Options struct {
	GridColumns int
}

// Model is the main Bubble Tea model for the application
type Model struct {
	// Application state
	State  ApplicationState
	Screen View
	Ready  bool

	// Services
	Catalog   catalogModel
	Favorites favoritesModel
	Downloads downloader
	Previews  previewer    // nil disables previews
	Session   sessionModel // nil when running without identity

	// UI Components
	SearchInput   components.InputModal
	FilterInput   components.InputModal
	UsernameInput components.InputModal
	Spinner       spinner.Model

	// Data
	snapshot  catalog.Snapshot
	filter    string // narrows the catalog page
	favFilter string // narrows the favorites list
	cursor    int
	favCursor int
	detail    *domain.Photo
	detailArt string
	detailErr error

	// Dimensions
	Width       int
	Height      int
	gridColumns int

	// UI state
	StatusMsg   string
	StatusIsErr bool
	statusSeq   int
	Loading     bool

	observer     *ChannelObserver
	unsubscribes []func()
	logger       *slog.Logger
}

// NewModel creates a new application model and subscribes it to store and session events
func NewModel(
	vm catalogModel,
	favs favoritesModel,
	downloads downloader,
	previews previewer,
	session sessionModel,
	opts Options,
	logger *slog.Logger,
) Model {
	if logger == nil {
		logger = slog.Default()
	}
	cols := opts.GridColumns
	if cols <= 0 {
		cols = DefaultGridColumns
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.SpinnerStyle

	m := Model{
		State:         StateBrowsing,
		Screen:        ViewHome,
		Catalog:       vm,
		Favorites:     favs,
		Downloads:     downloads,
		Previews:      previews,
		Session:       session,
		SearchInput:   components.NewInputModal("mountains at dusk", 100),
		FilterInput:   components.NewInputModal("narrow this page", 60),
		UsernameInput: components.NewInputModal("new username", 40),
		Spinner:       sp,
		Loading:       true,
		gridColumns:   cols,
		observer:      NewChannelObserver(64),
		logger:        logger,
	}

	m.unsubscribes = append(m.unsubscribes, favs.Subscribe(m.observer.OnFavorites))
	if session != nil {
		m.unsubscribes = append(m.unsubscribes, session.Subscribe(m.observer.OnSession))
	}
	return m
}

// Close detaches the model from its collaborators and aborts any in-flight fetch
func (m Model) Close() {
	for _, unsub := range m.unsubscribes {
		unsub()
	}
	m.Catalog.Cancel()
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		FetchDefaultCmd(m.Catalog),
		ListenCmd(m.observer.Events()),
		m.Spinner.Tick,
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case PhotosLoadedMsg:
		return m.handlePhotosLoaded(msg.Result)

	case FavoriteToggledMsg:
		m.snapshot = m.Catalog.Snapshot()
		if msg.Err != nil {
			return m, m.setStatus("Could not save favorite: "+msg.Err.Error(), true)
		}
		if msg.Favorited {
			return m, m.setStatus("Added to favorites", false)
		}
		return m, m.setStatus("Removed from favorites", false)

	case FavoriteRemovedMsg:
		m.clampCursors()
		if msg.Err != nil {
			return m, m.setStatus("Could not remove favorite: "+msg.Err.Error(), true)
		}
		return m, m.setStatus("Removed from favorites", false)

	case FavoritesChangedMsg:
		// A sign-in or sign-out may have switched the collection
		m.snapshot = m.Catalog.Snapshot()
		m.clampCursors()
		return m, ListenCmd(m.observer.Events())

	case SessionChangedMsg:
		cmds := []tea.Cmd{ListenCmd(m.observer.Events())}
		switch msg.Event.Kind {
		case domain.SessionSignedIn:
			if s := msg.Event.Session; s != nil {
				cmds = append(cmds, m.setStatus("Signed in as "+s.User.DisplayName(), false))
			}
		case domain.SessionSignedOut:
			if m.State == StateEditUsername {
				m.UsernameInput.Hide()
				m.State = StateBrowsing
			}
		}
		return m, tea.Batch(cmds...)

	case DownloadDoneMsg:
		if msg.Err != nil {
			return m, m.setStatus(msg.Err.Error(), true)
		}
		if msg.Outcome.Path != "" {
			return m, m.setStatus("Saved to "+msg.Outcome.Path, false)
		}
		return m, m.setStatus("Opened download in browser", false)

	case LinkCopiedMsg:
		if msg.Err != nil {
			if msg.URL != "" {
				return m, m.setStatus("Clipboard unavailable: "+msg.URL, true)
			}
			return m, m.setStatus(msg.Err.Error(), true)
		}
		return m, m.setStatus("Download link copied", false)

	case PreviewReadyMsg:
		if m.detail != nil && msg.Request == m.previewRequest(*m.detail) {
			m.detailArt = msg.Art
			m.detailErr = msg.Err
		}
		return m, nil

	case UsernameUpdatedMsg:
		if msg.Err != nil {
			return m, m.setStatus("Could not update username: "+msg.Err.Error(), true)
		}
		return m, m.setStatus("Username set to "+msg.User.Username, false)

	case SignedOutMsg:
		if msg.Err != nil {
			return m, m.setStatus("Signed out locally: "+msg.Err.Error(), true)
		}
		return m, m.setStatus("Signed out", false)

	case StatusMsg:
		return m, m.setStatus(msg.Message, msg.IsError)

	case ErrMsg:
		return m, m.setStatus(msg.Error(), true)

	case ClearStatusMsg:
		if msg.Seq == m.statusSeq {
			m.StatusMsg = ""
			m.StatusIsErr = false
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handlePhotosLoaded(res catalog.Result) (tea.Model, tea.Cmd) {
	if res.Superseded {
		// A newer fetch owns the loading state
		return m, nil
	}
	m.snapshot = m.Catalog.Snapshot()
	m.Loading = m.snapshot.Loading

	if res.Err != nil {
		if errors.Is(res.Err, domain.ErrEmptyQuery) {
			return m, m.setStatus("Type something to search for", true)
		}
		m.logger.Warn("catalog fetch failed", "query", res.Query, "error", res.Err)
		return m, m.setStatus(res.Err.Error(), true)
	}

	m.cursor = 0
	m.filter = ""
	var cmds []tea.Cmd
	if res.Query != "" {
		cmds = append(cmds, m.setStatus(fmt.Sprintf("%d photos for %q", len(res.Photos), res.Query), false))
	}
	if m.Previews != nil && len(res.Photos) > 0 {
		reqs := make([]preview.Request, 0, len(res.Photos))
		for _, p := range res.Photos {
			reqs = append(reqs, m.previewRequest(p))
		}
		cmds = append(cmds, PrefetchCmd(m.Previews, reqs))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle state-specific keys
	switch m.State {
	case StateHelp:
		m.State = StateBrowsing
		return m, nil

	case StateConfirmSignOut:
		switch {
		case key.Matches(msg, Keys.Confirm):
			m.State = StateBrowsing
			return m, SignOutCmd(m.Session)
		case key.Matches(msg, Keys.Deny):
			m.State = StateBrowsing
		}
		return m, nil

	case StateSearching:
		var cmd tea.Cmd
		var submitted bool
		m.SearchInput, cmd, submitted = m.SearchInput.Update(msg)
		if submitted {
			term := m.SearchInput.Value()
			m.SearchInput.Hide()
			m.State = StateBrowsing
			if strings.TrimSpace(term) != "" {
				m.Loading = true
			}
			return m, SearchCmd(m.Catalog, term)
		}
		if !m.SearchInput.IsVisible() {
			m.State = StateBrowsing
		}
		return m, cmd

	case StateFiltering:
		var cmd tea.Cmd
		var submitted bool
		m.FilterInput, cmd, submitted = m.FilterInput.Update(msg)
		switch {
		case submitted:
			m.FilterInput.Hide()
			m.State = StateBrowsing
		case !m.FilterInput.IsVisible():
			m.State = StateBrowsing
			m.setFilter("")
		default:
			m.setFilter(m.FilterInput.Value())
		}
		return m, cmd

	case StateEditUsername:
		var cmd tea.Cmd
		var submitted bool
		m.UsernameInput, cmd, submitted = m.UsernameInput.Update(msg)
		if submitted {
			name := strings.TrimSpace(m.UsernameInput.Value())
			if name == "" {
				return m, m.setStatus("Username cannot be empty", true)
			}
			m.UsernameInput.Hide()
			m.State = StateBrowsing
			return m, UpdateUsernameCmd(m.Session, name)
		}
		if !m.UsernameInput.IsVisible() {
			m.State = StateBrowsing
		}
		return m, cmd

	case StateDetail:
		return m.handleDetailKey(msg)
	}

	// Global keys
	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, Keys.Help):
		m.State = StateHelp
		return m, nil
	case key.Matches(msg, Keys.Tab):
		m.Screen = (m.Screen + 1) % 3
		return m, nil
	case key.Matches(msg, Keys.HomeView):
		m.Screen = ViewHome
		return m, nil
	case key.Matches(msg, Keys.FavoritesView):
		m.Screen = ViewFavorites
		m.clampCursors()
		return m, nil
	case key.Matches(msg, Keys.ProfileView):
		m.Screen = ViewProfile
		return m, nil
	}

	switch m.Screen {
	case ViewFavorites:
		return m.handleFavoritesKey(msg)
	case ViewProfile:
		return m.handleProfileKey(msg)
	default:
		return m.handleHomeKey(msg)
	}
}

func (m Model) handleHomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	photos := m.visiblePhotos()

	switch {
	case key.Matches(msg, Keys.Left):
		m.cursor = clamp(m.cursor-1, len(photos))
	case key.Matches(msg, Keys.Right):
		m.cursor = clamp(m.cursor+1, len(photos))
	case key.Matches(msg, Keys.Up):
		if m.cursor-m.gridColumns >= 0 {
			m.cursor -= m.gridColumns
		}
	case key.Matches(msg, Keys.Down):
		if m.cursor+m.gridColumns < len(photos) {
			m.cursor += m.gridColumns
		}
	case key.Matches(msg, Keys.Home):
		m.cursor = 0
	case key.Matches(msg, Keys.End):
		m.cursor = clamp(len(photos)-1, len(photos))

	case key.Matches(msg, Keys.Search):
		m.State = StateSearching
		return m, m.SearchInput.Show("Search", m.snapshot.Query)
	case key.Matches(msg, Keys.Filter):
		m.State = StateFiltering
		return m, m.FilterInput.Show("Filter", m.filter)
	case key.Matches(msg, Keys.Escape):
		m.setFilter("")
	case key.Matches(msg, Keys.Refresh):
		m.Loading = true
		return m, RefreshCmd(m.Catalog)

	case key.Matches(msg, Keys.Enter):
		if p, ok := m.selectedPhoto(); ok {
			return m.openDetail(p)
		}
	case key.Matches(msg, Keys.Favorite):
		if p, ok := m.selectedPhoto(); ok {
			return m, ToggleFavoriteCmd(m.Favorites, p)
		}
	case key.Matches(msg, Keys.Download):
		if p, ok := m.selectedPhoto(); ok {
			return m, m.startDownload(download.TargetFromPhoto(p))
		}
	case key.Matches(msg, Keys.CopyLink):
		if p, ok := m.selectedPhoto(); ok {
			return m, CopyLinkCmd(m.Downloads, download.TargetFromPhoto(p))
		}
	}
	return m, nil
}

func (m Model) handleFavoritesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.visibleFavorites()

	switch {
	case key.Matches(msg, Keys.Up):
		m.favCursor = clamp(m.favCursor-1, len(items))
	case key.Matches(msg, Keys.Down):
		m.favCursor = clamp(m.favCursor+1, len(items))
	case key.Matches(msg, Keys.Home):
		m.favCursor = 0
	case key.Matches(msg, Keys.End):
		m.favCursor = clamp(len(items)-1, len(items))

	case key.Matches(msg, Keys.Filter):
		m.State = StateFiltering
		return m, m.FilterInput.Show("Filter", m.favFilter)
	case key.Matches(msg, Keys.Escape):
		m.setFilter("")

	case key.Matches(msg, Keys.Enter):
		if f, ok := m.selectedFavorite(); ok {
			return m.openDetail(photoFromFavorite(f))
		}
	case key.Matches(msg, Keys.Remove), key.Matches(msg, Keys.Favorite):
		if f, ok := m.selectedFavorite(); ok {
			return m, RemoveFavoriteCmd(m.Favorites, f.ID)
		}
	case key.Matches(msg, Keys.Download):
		if f, ok := m.selectedFavorite(); ok {
			return m, m.startDownload(download.TargetFromFavorite(f))
		}
	case key.Matches(msg, Keys.CopyLink):
		if f, ok := m.selectedFavorite(); ok {
			return m, CopyLinkCmd(m.Downloads, download.TargetFromFavorite(f))
		}
	}
	return m, nil
}

func (m Model) handleProfileKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Edit):
		if m.Session == nil || !m.Session.SignedIn() {
			return m, m.setStatus("Sign in with `pixora login` to edit your profile", true)
		}
		m.State = StateEditUsername
		return m, m.UsernameInput.Show("Username", m.Session.User().Username)
	case key.Matches(msg, Keys.SignOut):
		if m.Session == nil || !m.Session.SignedIn() {
			return m, m.setStatus("Not signed in", true)
		}
		m.State = StateConfirmSignOut
	}
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := *m.detail
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, Keys.Escape), key.Matches(msg, Keys.Enter), msg.String() == "q", msg.String() == "backspace":
		m.closeDetail()
	case key.Matches(msg, Keys.Favorite):
		return m, ToggleFavoriteCmd(m.Favorites, p)
	case key.Matches(msg, Keys.Download):
		return m, m.startDownload(download.TargetFromPhoto(p))
	case key.Matches(msg, Keys.CopyLink):
		return m, CopyLinkCmd(m.Downloads, download.TargetFromPhoto(p))
	}
	return m, nil
}

func (m Model) openDetail(p domain.Photo) (tea.Model, tea.Cmd) {
	m.State = StateDetail
	m.detail = &p
	m.detailArt = ""
	m.detailErr = nil

	if m.Previews == nil || p.SmallURL == "" {
		return m, nil
	}
	req := m.previewRequest(p)
	if art, ok := m.Previews.Cached(req); ok {
		m.detailArt = art
		return m, nil
	}
	return m, RenderPreviewCmd(m.Previews, req)
}

func (m *Model) closeDetail() {
	m.State = StateBrowsing
	m.detail = nil
	m.detailArt = ""
	m.detailErr = nil
}

func (m *Model) startDownload(t download.Target) tea.Cmd {
	verb := "Opening"
	if m.Downloads.Mode() == config.DownloadSave {
		verb = "Saving"
	}
	return tea.Batch(
		m.setStatus(verb+" download...", false),
		DownloadCmd(m.Downloads, t),
	)
}

// setStatus shows a transient status message and schedules its removal
func (m *Model) setStatus(msg string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.StatusMsg = msg
	m.StatusIsErr = isErr
	return ClearStatusCmd(m.statusSeq, statusDuration)
}

func (m *Model) setFilter(term string) {
	if m.Screen == ViewFavorites {
		m.favFilter = term
	} else {
		m.filter = term
	}
	m.clampCursors()
}

func (m *Model) clampCursors() {
	m.cursor = clamp(m.cursor, len(m.visiblePhotos()))
	m.favCursor = clamp(m.favCursor, len(m.visibleFavorites()))
}

func (m Model) visiblePhotos() []domain.AnnotatedPhoto {
	return catalog.Filter(m.snapshot.Photos, m.filter)
}

func (m Model) visibleFavorites() []domain.Favorite {
	return favorites.Filter(m.Favorites.List(), m.favFilter)
}

func (m Model) selectedPhoto() (domain.Photo, bool) {
	photos := m.visiblePhotos()
	if m.cursor < 0 || m.cursor >= len(photos) {
		return domain.Photo{}, false
	}
	return photos[m.cursor].Photo, true
}

func (m Model) selectedFavorite() (domain.Favorite, bool) {
	items := m.visibleFavorites()
	if m.favCursor < 0 || m.favCursor >= len(items) {
		return domain.Favorite{}, false
	}
	return items[m.favCursor], true
}

// previewRequest sizes a preview to the detail overlay for the current terminal
func (m Model) previewRequest(p domain.Photo) preview.Request {
	cols := min(max(m.Width/2, 16), 64)
	rows := min(max(m.Height-14, 6), 24)
	return preview.Request{ID: p.ID, URL: p.SmallURL, Cols: cols, Rows: rows}
}

// photoFromFavorite rebuilds enough of a catalog photo from a saved snapshot to show
// details, preview and toggle it again
func photoFromFavorite(f domain.Favorite) domain.Photo {
	return domain.Photo{
		ID:               f.ID,
		SmallURL:         f.ThumbnailURL,
		RegularURL:       f.FullURL,
		AuthorName:       f.AttributionName,
		AuthorUsername:   f.AttributionHandle,
		DownloadLocation: f.DownloadEndpoint,
	}
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
