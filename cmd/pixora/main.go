package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/pixora/internal/catalog"
	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/download"
	"github.com/mmcdole/pixora/internal/favorites"
	"github.com/mmcdole/pixora/internal/log"
	"github.com/mmcdole/pixora/internal/preview"
	"github.com/mmcdole/pixora/internal/session"
	"github.com/mmcdole/pixora/internal/store"
	"github.com/mmcdole/pixora/internal/supabase"
	"github.com/mmcdole/pixora/internal/tui"
	"github.com/mmcdole/pixora/internal/unsplash"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usage = `Usage: pixora [flags] [command]

Commands:
  (none)                      browse photos in the terminal
  login [--oauth]             sign in with email and password, or with the OAuth provider
  signup                      create an account
  logout                      sign out
  whoami                      show the signed-in account
  favorites list              print saved favorites
  favorites export <file>     write favorites as JSON ("-" for stdout)
  favorites import <file>     merge favorites from a JSON export

Flags:
  -v, --version               print version
`

func main() {
	// Handle version flag
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if showVersion {
		fmt.Printf("pixora %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting pixora", "version", Version)

	// Check if configured
	if !cfg.IsConfigured() {
		return runSetupFlow(cfg, logger)
	}

	if _, err := config.EnsureProfileID(cfg); err != nil {
		logger.Warn("failed to persist profile id", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		return a.runTUI(ctx)
	}
	return a.runCommand(ctx, args)
}

// app holds the wired components shared by the TUI and the subcommands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	kv       domain.KeyValueStore
	favs     *favorites.Store
	catalog  *unsplash.Client
	identity *supabase.Client // nil when accounts are not configured
	session  *session.Manager
	browser  *download.Browser
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	kv, err := store.Open(cfg.Favorites)
	if err != nil {
		return nil, fmt.Errorf("failed to open favorites store: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		kv:     kv,
		favs:   favorites.NewStore(kv, favorites.KeyFor(cfg.Favorites.Scope, cfg.Profile.ID, nil), logger),
		catalog: unsplash.NewClient(unsplash.Options{
			BaseURL:         cfg.Catalog.BaseURL,
			AccessKey:       cfg.Catalog.AccessKey,
			Timeout:         cfg.Catalog.Timeout,
			RequestsPerHour: cfg.Catalog.RequestsPerHour,
		}, logger),
		browser: download.NewBrowser(cfg.Download.Browser, logger),
	}

	// The manager treats a nil identity as "accounts not configured"; keep the
	// interface value untyped nil in that case
	if cfg.HasIdentity() {
		a.identity = supabase.NewClient(cfg.Identity.URL, cfg.Identity.AnonKey, logger)
		a.session = session.NewManager(a.identity, session.ConfigTokens{}, a.favs, cfg.Favorites.Scope, cfg.Profile.ID, logger)
	} else {
		a.session = session.NewManager(nil, session.ConfigTokens{}, a.favs, cfg.Favorites.Scope, cfg.Profile.ID, logger)
	}

	return a, nil
}

// Close releases the session subscription and the favorites store
func (a *app) Close() {
	a.session.Close()
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("failed to close favorites store", "error", err)
	}
}

// startSession restores the persisted session. Failures leave the app signed out
// and are reported but never fatal.
func (a *app) startSession(ctx context.Context, quiet bool) {
	err := a.session.Start(ctx, a.cfg.Session)
	if err == nil || quiet {
		return
	}
	switch {
	case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrNotSignedIn):
		fmt.Fprintln(os.Stderr, "Your session has expired. Run `pixora login` to sign in again.")
	case errors.Is(err, domain.ErrIdentityUnavailable):
		fmt.Fprintln(os.Stderr, "Could not reach the account service; using this device's favorites.")
	default:
		fmt.Fprintf(os.Stderr, "Could not restore session: %v\n", err)
	}
}

func (a *app) runTUI(ctx context.Context) error {
	a.startSession(ctx, true)

	vm := catalog.NewViewModel(a.catalog, a.favs, a.cfg.Catalog.PerPage, a.cfg.Catalog.Timeout, a.logger)
	downloads := download.NewService(a.catalog, a.browser, download.Clipboard{}, a.cfg.Download, a.logger)

	model := tui.NewModel(vm, a.favs, downloads, nil, a.session, tui.Options{GridColumns: a.cfg.UI.GridColumns}, a.logger)
	defer model.Close()

	if a.cfg.UI.Previews {
		renderer, err := preview.NewRenderer(ctx, a.cfg.UI.PreviewWorkers, a.cfg.UI.PreviewCache, a.logger)
		if err != nil {
			a.logger.Warn("previews disabled", "error", err)
		} else {
			defer renderer.Close()
			model.Previews = renderer
		}
	}

	// Run the TUI
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	a.logger.Info("starting TUI")

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		a.logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	a.logger.Info("shutting down")
	return nil
}
