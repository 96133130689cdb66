package catalog

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/pixora/internal/domain"
)

const (
	DefaultPerPage = 30
	DefaultTimeout = 15 * time.Second
)

// annotator marks photos that are in the favorites collection (consumer-defined interface)
type annotator interface {
	Annotate(photos []domain.Photo) []domain.AnnotatedPhoto
}

// Result is the completion of a single fetch
type Result struct {
	Gen    uint64
	Query  string // empty for the default feed
	Photos []domain.Photo
	Err    error
	// Superseded is set when a newer fetch started before this one finished;
	// such a result was not applied.
	Superseded bool
}

// Snapshot is what the presentation layer renders
type Snapshot struct {
	Photos  []domain.AnnotatedPhoto
	Query   string
	Loading bool
	Err     error
}

// ViewModel holds the current page of catalog photos.
// Each fetch replaces the list wholesale; the newest fetch always wins.
type ViewModel struct {
	repo    domain.CatalogRepository
	favs    annotator
	perPage int
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	photos  []domain.Photo
	query   string
	loading bool
	lastErr error
	gen     uint64
	cancel  context.CancelFunc
}

// NewViewModel creates a catalog view model
func NewViewModel(repo domain.CatalogRepository, favs annotator, perPage int, timeout time.Duration, logger *slog.Logger) *ViewModel {
	if logger == nil {
		logger = slog.Default()
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ViewModel{
		repo:    repo,
		favs:    favs,
		perPage: perPage,
		timeout: timeout,
		logger:  logger,
	}
}

// FetchDefault loads the default editorial feed
func (vm *ViewModel) FetchDefault(ctx context.Context) Result {
	return vm.fetch(ctx, "", func(ctx context.Context) ([]domain.Photo, error) {
		return vm.repo.ListPhotos(ctx, vm.perPage)
	})
}

// Search loads photos matching term. A blank term returns ErrEmptyQuery
// without touching the catalog or the current list.
func (vm *ViewModel) Search(ctx context.Context, term string) Result {
	term = strings.TrimSpace(term)
	if term == "" {
		return Result{Err: domain.ErrEmptyQuery}
	}
	return vm.fetch(ctx, term, func(ctx context.Context) ([]domain.Photo, error) {
		return vm.repo.SearchPhotos(ctx, term, vm.perPage)
	})
}

// Refresh repeats the most recent fetch
func (vm *ViewModel) Refresh(ctx context.Context) Result {
	vm.mu.Lock()
	query := vm.query
	vm.mu.Unlock()

	if query == "" {
		return vm.FetchDefault(ctx)
	}
	return vm.Search(ctx, query)
}

func (vm *ViewModel) fetch(ctx context.Context, query string, do func(context.Context) ([]domain.Photo, error)) Result {
	ctx, cancel := context.WithTimeout(ctx, vm.timeout)
	defer cancel()

	vm.mu.Lock()
	if vm.cancel != nil {
		vm.cancel()
	}
	vm.gen++
	gen := vm.gen
	vm.cancel = cancel
	vm.loading = true
	vm.mu.Unlock()

	vm.logger.Debug("catalog fetch started", "gen", gen, "query", query)
	photos, err := do(ctx)

	vm.mu.Lock()
	defer vm.mu.Unlock()

	if gen != vm.gen {
		vm.logger.Debug("catalog fetch superseded", "gen", gen, "current", vm.gen)
		return Result{Gen: gen, Query: query, Superseded: true}
	}

	vm.loading = false
	vm.cancel = nil
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrCatalogUnavailable
		}
		vm.lastErr = err
		vm.logger.Warn("catalog fetch failed", "gen", gen, "query", query, "error", err)
		return Result{Gen: gen, Query: query, Err: err}
	}

	vm.photos = photos
	vm.query = query
	vm.lastErr = nil
	vm.logger.Info("catalog fetch complete", "gen", gen, "query", query, "count", len(photos))
	return Result{Gen: gen, Query: query, Photos: slices.Clone(photos)}
}

// Cancel aborts the in-flight fetch, if any
func (vm *ViewModel) Cancel() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.cancel != nil {
		vm.cancel()
		vm.cancel = nil
		vm.gen++
		vm.loading = false
	}
}

// Photos returns the current list
func (vm *ViewModel) Photos() []domain.Photo {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return slices.Clone(vm.photos)
}

// Loading reports whether a fetch is in flight
func (vm *ViewModel) Loading() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.loading
}

// LastErr returns the error of the most recent failed fetch, cleared by the next success
func (vm *ViewModel) LastErr() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.lastErr
}

// Query returns the search term behind the current list; empty for the default feed
func (vm *ViewModel) Query() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.query
}

// Snapshot returns the current list annotated with favorite status.
// Favorites are read fresh on every call.
func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.Lock()
	photos := slices.Clone(vm.photos)
	snap := Snapshot{Query: vm.query, Loading: vm.loading, Err: vm.lastErr}
	vm.mu.Unlock()

	snap.Photos = Annotate(vm.favs, photos)
	return snap
}

// Annotate marks favorites on photos; a nil annotator marks nothing
func Annotate(favs annotator, photos []domain.Photo) []domain.AnnotatedPhoto {
	if favs != nil {
		return favs.Annotate(photos)
	}
	out := make([]domain.AnnotatedPhoto, len(photos))
	for i, p := range photos {
		out[i] = domain.AnnotatedPhoto{Photo: p}
	}
	return out
}

// Filter narrows photos to those whose description or creator fuzzy-matches
// term, keeping their order. It never touches the catalog.
func Filter(photos []domain.AnnotatedPhoto, term string) []domain.AnnotatedPhoto {
	term = strings.TrimSpace(term)
	if term == "" {
		return photos
	}
	out := make([]domain.AnnotatedPhoto, 0, len(photos))
	for _, p := range photos {
		target := p.Description + " " + p.AuthorName + " " + p.AuthorUsername
		if fuzzy.MatchNormalizedFold(term, target) {
			out = append(out, p)
		}
	}
	return out
}
