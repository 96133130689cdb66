package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
)

var errClipboardUnsupported = errors.New("clipboard is not available on this system")

// issuer resolves a download_location to a direct URL (consumer-defined interface)
type issuer interface {
	IssueDownload(ctx context.Context, downloadLocation string) (string, error)
}

type opener interface {
	Open(url string) error
}

type copier interface {
	Copy(text string) error
}

// Target identifies what to download. Both catalog photos and favorites convert to it.
type Target struct {
	ID               string
	DownloadLocation string
	AuthorName       string
}

// TargetFromPhoto builds a download target from a catalog photo
func TargetFromPhoto(p domain.Photo) Target {
	return Target{ID: p.ID, DownloadLocation: p.DownloadLocation, AuthorName: p.AuthorName}
}

// TargetFromFavorite builds a download target from a saved favorite
func TargetFromFavorite(f domain.Favorite) Target {
	return Target{ID: f.ID, DownloadLocation: f.DownloadEndpoint, AuthorName: f.AttributionName}
}

// Outcome reports what a download did
type Outcome struct {
	URL  string // issued direct URL
	Path string // file written, only in save mode
}

// Service turns a photo's issuance endpoint into an opened page or a saved file
type Service struct {
	issuer     issuer
	opener     opener
	copier     copier
	mode       config.DownloadMode
	dir        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewService creates a download service
func NewService(issuer issuer, opener opener, copier copier, cfg config.DownloadConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = config.DownloadOpen
	}
	return &Service{
		issuer:     issuer,
		opener:     opener,
		copier:     copier,
		mode:       mode,
		dir:        cfg.Dir,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
}

// Mode returns the configured download mode
func (s *Service) Mode() config.DownloadMode {
	return s.mode
}

// Resolve asks the catalog for the direct URL of t
func (s *Service) Resolve(ctx context.Context, t Target) (string, error) {
	url, err := s.issuer.IssueDownload(ctx, t.DownloadLocation)
	if err != nil {
		s.logger.Error("failed to issue download", "id", t.ID, "error", err)
		if errors.Is(err, domain.ErrDownloadFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
	return url, nil
}

// Download resolves t and then opens or saves it according to the configured mode.
// Nothing is opened or written when resolution fails.
func (s *Service) Download(ctx context.Context, t Target) (Outcome, error) {
	url, err := s.Resolve(ctx, t)
	if err != nil {
		return Outcome{}, err
	}

	if s.mode == config.DownloadSave {
		path, err := s.save(ctx, t, url)
		if err != nil {
			s.logger.Error("failed to save download", "id", t.ID, "error", err)
			return Outcome{URL: url}, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
		}
		s.logger.Info("download saved", "id", t.ID, "path", path)
		return Outcome{URL: url, Path: path}, nil
	}

	if err := s.opener.Open(url); err != nil {
		return Outcome{URL: url}, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
	s.logger.Info("download opened", "id", t.ID)
	return Outcome{URL: url}, nil
}

// CopyLink resolves t and places the direct URL on the clipboard
func (s *Service) CopyLink(ctx context.Context, t Target) (string, error) {
	url, err := s.Resolve(ctx, t)
	if err != nil {
		return "", err
	}
	if s.copier == nil {
		return url, errClipboardUnsupported
	}
	if err := s.copier.Copy(url); err != nil {
		return url, fmt.Errorf("failed to copy link: %w", err)
	}
	return url, nil
}

// save streams url into the download directory, writing through a temp file
func (s *Service) save(ctx context.Context, t Target, url string) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image host returned status %d", resp.StatusCode)
	}

	path := filepath.Join(s.dir, FileName(t, resp.Header.Get("Content-Type")))

	tmp, err := os.CreateTemp(s.dir, ".pixora-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// FileName names a saved image after its creator and id, e.g. "jane-doe-Xy1.jpg"
func FileName(t Target, contentType string) string {
	base := slug(strings.ToLower(t.AuthorName))
	if base == "" {
		base = "pixora-image"
	}
	if t.ID != "" {
		base += "-" + slug(t.ID)
	}
	return base + extension(contentType)
}

func extension(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	default:
		return ".jpg"
	}
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
