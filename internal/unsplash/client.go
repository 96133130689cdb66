package unsplash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/pixora/internal/domain"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.unsplash.com"
	defaultTimeout = 15 * time.Second
	defaultPerPage = 30
	maxPerPage     = 30
	apiVersion     = "v1"
)

// Client implements domain.CatalogRepository for the Unsplash API
type Client struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Options configures a Client
type Options struct {
	BaseURL   string
	AccessKey string
	Timeout   time.Duration
	// RequestsPerHour throttles outgoing requests; 0 disables throttling
	RequestsPerHour int
	HTTPClient      *http.Client
}

// NewClient creates a new Unsplash API client
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerHour > 0 {
		// Full hourly quota up front, refilled evenly across the hour
		limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(opts.RequestsPerHour)), opts.RequestsPerHour)
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		accessKey:  opts.AccessKey,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// ListPhotos returns the default editorial feed
func (c *Client) ListPhotos(ctx context.Context, perPage int) ([]domain.Photo, error) {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(clampPerPage(perPage)))

	body, err := c.doRequest(ctx, c.baseURL+"/photos", query)
	if err != nil {
		return nil, err
	}

	var dtos []PhotoDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("failed to decode photos: %w", err)
	}
	return MapPhotos(dtos), nil
}

// SearchPhotos returns photos matching the query
func (c *Client) SearchPhotos(ctx context.Context, q string, perPage int) ([]domain.Photo, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, domain.ErrEmptyQuery
	}

	query := url.Values{}
	query.Set("query", q)
	query.Set("per_page", strconv.Itoa(clampPerPage(perPage)))

	body, err := c.doRequest(ctx, c.baseURL+"/search/photos", query)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return MapPhotos(resp.Results), nil
}

// IssueDownload hits a download_location endpoint and returns the direct image URL.
// The catalog counts the download against the photo when this is called.
func (c *Client) IssueDownload(ctx context.Context, downloadLocation string) (string, error) {
	if downloadLocation == "" {
		return "", fmt.Errorf("%w: photo has no download location", domain.ErrDownloadFailed)
	}

	target := downloadLocation
	if strings.HasPrefix(target, "/") {
		target = c.baseURL + target
	}

	body, err := c.doRequest(ctx, target, nil)
	if err != nil {
		return "", err
	}

	var resp DownloadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode download response: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("%w: empty download url", domain.ErrUpstream)
	}
	return resp.URL, nil
}

// doRequest performs an authenticated GET against the catalog.
// Catalog requests are not retried; failures go straight back to the caller.
func (c *Client) doRequest(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	reqURL := rawURL
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL = reqURL + sep + query.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("catalog request throttled", "url", reqURL, "error", err)
		return nil, domain.ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Version", apiVersion)
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)

	c.logger.Debug("catalog request", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error("catalog request failed", "url", reqURL, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if remaining := resp.Header.Get("X-Ratelimit-Remaining"); remaining != "" {
		c.logger.Debug("catalog quota", "remaining", remaining)
	}

	if err := statusError(resp.StatusCode, body); err != nil {
		c.logger.Error("catalog request error", "url", reqURL, "status", resp.StatusCode, "error", err)
		return nil, err
	}
	return body, nil
}

// statusError maps a catalog response status to a domain sentinel
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := errorMessage(body)
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status == http.StatusForbidden:
		// Exhausted quota is reported as 403 with a plain-text body
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return domain.ErrRateLimited
		}
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, status, msg)
	}
}

func errorMessage(body []byte) string {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && len(resp.Errors) > 0 {
		return strings.Join(resp.Errors, "; ")
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func clampPerPage(n int) int {
	if n <= 0 {
		return defaultPerPage
	}
	if n > maxPerPage {
		return maxPerPage
	}
	return n
}

// IsAuthError reports whether err means the access key must be reconfigured
func IsAuthError(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized)
}
