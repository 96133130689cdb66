package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/pixora/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Client implements domain.IdentityProvider against the Supabase auth (GoTrue) API
type Client struct {
	baseURL    string // project URL, e.g. https://xyz.supabase.co
	anonKey    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	subs    map[int]func(domain.SessionEvent)
	nextSub int
}

// NewClient creates a new identity client
func NewClient(projectURL, anonKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(projectURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
		now:        time.Now,
		subs:       make(map[int]func(domain.SessionEvent)),
	}
}

// Subscribe registers fn for session events and returns a function that unregisters it
func (c *Client) Subscribe(fn func(domain.SessionEvent)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Client) emit(kind domain.SessionEventKind, s *domain.Session) {
	c.mu.Lock()
	fns := make([]func(domain.SessionEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	c.logger.Debug("session event", "kind", kind)
	for _, fn := range fns {
		fn(domain.SessionEvent{Kind: kind, Session: s})
	}
}

// SignInWithPassword exchanges email and password for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", passwordRequest{Email: email, Password: password}, &resp)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	s, err := c.mapSession(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Info("signed in", "user", s.User.ID, "provider", s.User.Provider)
	c.emit(domain.SessionSignedIn, s)
	return s, nil
}

// SignUp registers an account with username stored in user metadata.
// The session is nil when the project requires email confirmation.
func (c *Client) SignUp(ctx context.Context, email, password, username string) (*domain.Session, error) {
	req := signUpRequest{Email: email, Password: password}
	if username = strings.TrimSpace(username); username != "" {
		req.Data = map[string]any{"username": username}
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/signup", "", req, &raw); err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sign-up response: %w", err)
	}
	if resp.AccessToken == "" {
		// Confirmation pending: the body is the bare user record
		c.logger.Info("sign-up pending email confirmation", "email", email)
		return nil, nil
	}

	s, err := c.mapSession(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Info("signed up", "user", s.User.ID)
	c.emit(domain.SessionSignedIn, s)
	return s, nil
}

// SignOut revokes the session's refresh token. SIGNED_OUT is emitted even when
// the provider cannot be reached, since the local session is gone either way.
func (c *Client) SignOut(ctx context.Context, s *domain.Session) error {
	var err error
	if s != nil && s.AccessToken != "" {
		err = c.do(ctx, http.MethodPost, "/logout", s.AccessToken, nil, nil)
		if errors.Is(err, domain.ErrSessionExpired) {
			err = nil
		}
		if err != nil {
			c.logger.Warn("sign-out request failed", "error", err)
		}
	}
	c.emit(domain.SessionSignedOut, nil)
	return err
}

// Refresh exchanges a refresh token for a new session
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, domain.ErrNotSignedIn
	}

	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrSessionExpired, err)
		}
		return nil, err
	}

	s, err := c.mapSession(resp)
	if err != nil {
		return nil, err
	}
	c.emit(domain.SessionTokenRefreshed, s)
	return s, nil
}

// GetUser returns the account behind an access token
func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	if accessToken == "" {
		return nil, domain.ErrNotSignedIn
	}
	var u userDTO
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	user := mapUser(u)
	return &user, nil
}

// UpdateUsername sets user_metadata.username
func (c *Client) UpdateUsername(ctx context.Context, accessToken, username string) (*domain.User, error) {
	if accessToken == "" {
		return nil, domain.ErrNotSignedIn
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username cannot be empty")
	}

	var u userDTO
	req := updateUserRequest{Data: map[string]any{"username": username}}
	if err := c.do(ctx, http.MethodPut, "/user", accessToken, req, &u); err != nil {
		return nil, err
	}
	user := mapUser(u)
	c.emit(domain.SessionUserUpdated, &domain.Session{AccessToken: accessToken, User: user})
	return &user, nil
}

// OAuthURL builds the provider consent URL that redirects to redirectTo with a PKCE code
func (c *Client) OAuthURL(provider, redirectTo string, p PKCE) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", p.Challenge)
	q.Set("code_challenge_method", "s256")
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

// ExchangeCode trades an OAuth authorization code for a session
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*domain.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", pkceRequest{AuthCode: code, CodeVerifier: verifier}, &resp)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	s, err := c.mapSession(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Info("signed in", "user", s.User.ID, "provider", s.User.Provider)
	c.emit(domain.SessionSignedIn, s)
	return s, nil
}

// Restore rebuilds a session from persisted tokens. An expired access token is
// refreshed; otherwise the user is fetched with it.
func (c *Client) Restore(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, domain.ErrNotSignedIn
	}

	if accessToken != "" {
		claims, err := ParseClaims(accessToken)
		if err == nil && !(domain.Session{ExpiresAt: claims.ExpiresAt}).Expired(c.now()) {
			user, err := c.GetUser(ctx, accessToken)
			if err == nil {
				return &domain.Session{
					AccessToken:  accessToken,
					RefreshToken: refreshToken,
					ExpiresAt:    claims.ExpiresAt,
					User:         *user,
				}, nil
			}
			if !errors.Is(err, domain.ErrSessionExpired) {
				return nil, err
			}
		}
	}
	return c.Refresh(ctx, refreshToken)
}

// statusError is a non-2xx response
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider returned status %d", e.Status)
	}
	return e.Message
}

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && (se.Status == http.StatusBadRequest || se.Status == http.StatusUnauthorized)
}

// do performs a request against /auth/v1. bearer defaults to the anon key.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	if c.baseURL == "" || c.anonKey == "" {
		return fmt.Errorf("%w: identity provider is not configured", domain.ErrIdentityUnavailable)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	reqURL := c.baseURL + "/auth/v1" + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("identity request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("identity request failed", "path", path, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		se := &statusError{Status: resp.StatusCode, Message: er.text()}
		c.logger.Warn("identity request error", "path", path, "status", resp.StatusCode, "message", se.Message)

		switch {
		case resp.StatusCode == http.StatusUnauthorized && bearer != c.anonKey:
			return fmt.Errorf("%w: %w", domain.ErrSessionExpired, se)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %w", domain.ErrIdentityUnavailable, se)
		}
		return se
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) mapSession(r sessionResponse) (*domain.Session, error) {
	if r.AccessToken == "" || r.RefreshToken == "" {
		return nil, errors.New("identity provider returned an incomplete session")
	}

	s := &domain.Session{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(r.ExpiresIn) * time.Second)
	default:
		if claims, err := ParseClaims(r.AccessToken); err == nil {
			s.ExpiresAt = claims.ExpiresAt
		}
	}

	if r.User != nil {
		s.User = mapUser(*r.User)
	} else if claims, err := ParseClaims(r.AccessToken); err == nil {
		s.User = domain.User{ID: claims.Subject, Email: claims.Email}
	}
	return s, nil
}

func mapUser(u userDTO) domain.User {
	name := u.UserMetadata.Username
	return domain.User{
		ID:        u.ID,
		Email:     u.Email,
		Username:  name,
		AvatarURL: u.UserMetadata.AvatarURL,
		Provider:  u.AppMetadata.Provider,
	}
}
