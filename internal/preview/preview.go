package preview

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/charmbracelet/lipgloss"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nfnt/resize"
)

const (
	maxImageBytes  = 8 << 20
	defaultWorkers = 4
	defaultCache   = 64
)

// Request identifies a preview: an image URL rendered into a box of terminal cells
type Request struct {
	ID   string
	URL  string
	Cols int
	Rows int
}

func (r Request) key() string {
	return fmt.Sprintf("%s@%dx%d", r.ID, r.Cols, r.Rows)
}

// Renderer fetches thumbnails and renders them as half-block terminal art.
// Rendered previews are kept in an LRU cache; Prefetch warms it in the background.
type Renderer struct {
	httpClient *http.Client
	cache      *lru.Cache[string, string]
	pool       pond.Pool
	logger     *slog.Logger
}

// NewRenderer creates a renderer with a bounded prefetch pool
func NewRenderer(ctx context.Context, workers, cacheSize int, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if cacheSize <= 0 {
		cacheSize = defaultCache
	}

	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview cache: %w", err)
	}

	return &Renderer{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		cache:      cache,
		pool:       pond.NewPool(workers, pond.WithContext(ctx)),
		logger:     logger,
	}, nil
}

// Cached returns a previously rendered preview
func (r *Renderer) Cached(req Request) (string, bool) {
	return r.cache.Get(req.key())
}

// Render returns the preview for req, fetching and rendering it on a cache miss
func (r *Renderer) Render(ctx context.Context, req Request) (string, error) {
	if art, ok := r.cache.Get(req.key()); ok {
		return art, nil
	}

	img, err := r.fetch(ctx, req.URL)
	if err != nil {
		return "", err
	}
	art := HalfBlocks(img, req.Cols, req.Rows)
	r.cache.Add(req.key(), art)
	return art, nil
}

// Prefetch renders reqs in the background, skipping those already cached.
// done, if non-nil, is called from a worker goroutine after each successful render.
func (r *Renderer) Prefetch(ctx context.Context, reqs []Request, done func(Request)) {
	for _, req := range reqs {
		if req.URL == "" || r.cache.Contains(req.key()) {
			continue
		}
		r.pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			if _, err := r.Render(ctx, req); err != nil {
				r.logger.Debug("preview prefetch failed", "id", req.ID, "error", err)
				return
			}
			if done != nil {
				done(req)
			}
		})
	}
}

// Close stops the prefetch pool and waits for running renders
func (r *Renderer) Close() {
	_ = r.pool.Stop().Wait()
}

func (r *Renderer) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview host returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	return img, nil
}

// Fit returns the largest width and height (in pixels) with the image's aspect
// ratio that fits a box of cols by rows cells. Each cell holds two vertical pixels.
func Fit(srcW, srcH, cols, rows int) (int, int) {
	if srcW <= 0 || srcH <= 0 || cols <= 0 || rows <= 0 {
		return 0, 0
	}
	maxW, maxH := cols, rows*2

	w := maxW
	h := srcH * maxW / srcW
	if h > maxH {
		h = maxH
		w = srcW * maxH / srcH
	}
	// Keep an even height so every cell has both halves
	h -= h % 2
	if w < 1 {
		w = 1
	}
	if h < 2 {
		h = 2
	}
	return w, h
}

// HalfBlocks renders img into at most cols by rows cells using upper half blocks:
// the foreground is the top pixel and the background the bottom one.
func HalfBlocks(img image.Image, cols, rows int) string {
	b := img.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), cols, rows)
	if w == 0 {
		return ""
	}

	scaled := resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
	sb := scaled.Bounds()

	var out strings.Builder
	for y := sb.Min.Y; y+1 < sb.Max.Y; y += 2 {
		if y > sb.Min.Y {
			out.WriteByte('\n')
		}
		for x := sb.Min.X; x < sb.Max.X; x++ {
			style := lipgloss.NewStyle().
				Foreground(hex(scaled.At(x, y))).
				Background(hex(scaled.At(x, y+1)))
			out.WriteString(style.Render("▀"))
		}
	}
	return out.String()
}

type rgba interface {
	RGBA() (r, g, b, a uint32)
}

func hex(c rgba) lipgloss.Color {
	r, g, b, _ := c.RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}
