package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/favorites"
)

// identity is the part of the identity client the manager drives (consumer-defined interface)
type identity interface {
	Restore(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, error)
	SignOut(ctx context.Context, s *domain.Session) error
	UpdateUsername(ctx context.Context, accessToken, username string) (*domain.User, error)
	Subscribe(fn func(domain.SessionEvent)) func()
}

// tokenStore persists session tokens between runs
type tokenStore interface {
	SaveSession(s config.SessionConfig) error
	ClearSession() error
}

// scoper switches the active favorites collection
type scoper interface {
	Use(key string) []domain.Favorite
}

// ConfigTokens persists tokens in the config file
type ConfigTokens struct{}

func (ConfigTokens) SaveSession(s config.SessionConfig) error { return config.SaveSession(s) }
func (ConfigTokens) ClearSession() error                      { return config.ClearSession() }

// Manager is the process-wide session. It is created at start, follows the
// identity client's events, and is closed at shutdown.
type Manager struct {
	identity  identity // nil when no identity provider is configured
	tokens    tokenStore
	favs      scoper
	scope     config.Scope
	profileID string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	session *domain.Session

	subMu   sync.Mutex
	subs    map[int]func(domain.SessionEvent)
	nextSub int

	unsubscribe func()
}

// NewManager creates the session manager and subscribes to identity events
func NewManager(id identity, tokens tokenStore, favs scoper, scope config.Scope, profileID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		identity:  id,
		tokens:    tokens,
		favs:      favs,
		scope:     scope,
		profileID: profileID,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[int]func(domain.SessionEvent)),
	}
	if id != nil {
		m.unsubscribe = id.Subscribe(m.handle)
	}
	return m
}

// Start restores persisted tokens. A rejected refresh token clears them; an
// unreachable provider keeps them for the next run. Either way the manager
// ends up in a usable state, signed out if restoration failed.
func (m *Manager) Start(ctx context.Context, persisted config.SessionConfig) error {
	if m.identity == nil || persisted.RefreshToken == "" {
		m.rescope(nil)
		return nil
	}

	s, err := m.identity.Restore(ctx, persisted.AccessToken, persisted.RefreshToken)
	if err != nil {
		m.rescope(nil)
		if errors.Is(err, domain.ErrSessionExpired) || errors.Is(err, domain.ErrNotSignedIn) {
			m.logger.Info("persisted session rejected, signing out", "error", err)
			if cerr := m.tokens.ClearSession(); cerr != nil {
				m.logger.Warn("failed to clear session", "error", cerr)
			}
			return err
		}
		m.logger.Warn("could not restore session", "error", err)
		return err
	}

	// A restore that refreshed was already adopted through TOKEN_REFRESHED
	if cur := m.Session(); cur == nil || cur.AccessToken != s.AccessToken {
		m.adopt(s, domain.SessionSignedIn)
	}
	return nil
}

// Close detaches from the identity client
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// User returns the signed-in account, or nil
func (m *Manager) User() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	u := m.session.User
	return &u
}

// Session returns a copy of the current session, or nil
func (m *Manager) Session() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// SignedIn reports whether a session is active
func (m *Manager) SignedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// IdentityConfigured reports whether sign-in is possible at all
func (m *Manager) IdentityConfigured() bool {
	return m.identity != nil
}

// AccessToken returns a current access token, refreshing it first when expired
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	s := m.Session()
	if s == nil {
		return "", domain.ErrNotSignedIn
	}
	if !s.Expired(m.now()) {
		return s.AccessToken, nil
	}

	// The refresh emits TOKEN_REFRESHED, which adopts the new session
	fresh, err := m.identity.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			m.clear()
		}
		return "", err
	}
	return fresh.AccessToken, nil
}

// UpdateUsername changes the signed-in user's username
func (m *Manager) UpdateUsername(ctx context.Context, username string) (*domain.User, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return m.identity.UpdateUsername(ctx, token, username)
}

// SignOut ends the session. Local state is cleared even if the provider is unreachable.
func (m *Manager) SignOut(ctx context.Context) error {
	s := m.Session()
	if s == nil {
		return domain.ErrNotSignedIn
	}
	err := m.identity.SignOut(ctx, s)
	// SIGNED_OUT has been handled by now; make sure of it if the event was lost
	if m.SignedIn() {
		m.clear()
	}
	return err
}

// Subscribe registers fn for session changes after the manager has applied them
func (m *Manager) Subscribe(fn func(domain.SessionEvent)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) handle(ev domain.SessionEvent) {
	switch ev.Kind {
	case domain.SessionSignedIn, domain.SessionTokenRefreshed:
		if ev.Session != nil {
			m.adopt(ev.Session, ev.Kind)
		}
	case domain.SessionUserUpdated:
		if ev.Session == nil {
			return
		}
		m.mu.Lock()
		if m.session != nil {
			m.session.User = ev.Session.User
		}
		m.mu.Unlock()
		m.logger.Info("profile updated", "user", ev.Session.User.ID)
		m.notify(ev.Kind)
	case domain.SessionSignedOut:
		m.clear()
	}
}

func (m *Manager) adopt(s *domain.Session, kind domain.SessionEventKind) {
	copied := *s
	m.mu.Lock()
	prev := m.session
	m.session = &copied
	m.mu.Unlock()

	err := m.tokens.SaveSession(config.SessionConfig{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    unix(s.ExpiresAt),
	})
	if err != nil {
		m.logger.Warn("failed to persist session", "error", err)
	}

	if prev == nil || prev.User.ID != s.User.ID {
		m.rescope(&copied.User)
		m.logger.Info("session active", "user", s.User.ID)
	}
	m.notify(kind)
}

func (m *Manager) clear() {
	m.mu.Lock()
	had := m.session != nil
	m.session = nil
	m.mu.Unlock()

	if err := m.tokens.ClearSession(); err != nil {
		m.logger.Warn("failed to clear session", "error", err)
	}
	m.rescope(nil)
	if had {
		m.logger.Info("signed out")
		m.notify(domain.SessionSignedOut)
	}
}

func (m *Manager) rescope(user *domain.User) {
	if m.favs == nil {
		return
	}
	m.favs.Use(favorites.KeyFor(m.scope, m.profileID, user))
}

func (m *Manager) notify(kind domain.SessionEventKind) {
	ev := domain.SessionEvent{Kind: kind, Session: m.Session()}

	m.subMu.Lock()
	fns := make([]func(domain.SessionEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
