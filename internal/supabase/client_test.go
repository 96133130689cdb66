package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/log"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func signedToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
		"role":  "authenticated",
	})
	s, err := tok.SignedString([]byte("test-secret"))
	assert.NilError(t, err)
	return s
}

func sessionBody(t *testing.T, access, refresh string) string {
	t.Helper()
	return fmt.Sprintf(`{
		"access_token": %q, "token_type": "bearer", "expires_in": 3600, "refresh_token": %q,
		"user": {"id": "u1", "email": "jane@example.com",
			"user_metadata": {"username": "jane"}, "app_metadata": {"provider": "email"}}
	}`, access, refresh)
}

type fakeGoTrue struct {
	t        *testing.T
	handlers map[string]http.HandlerFunc
	requests []*http.Request
	bodies   []map[string]any
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *Client) {
	f := &fakeGoTrue{t: t, handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.Header.Get("apikey"), "anon"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.requests = append(f.requests, r)
		f.bodies = append(f.bodies, body)

		key := r.Method + " " + r.URL.Path
		if gt := r.URL.Query().Get("grant_type"); gt != "" {
			key += "?" + gt
		}
		h, ok := f.handlers[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, NewClient(srv.URL, "anon", log.NullLogger())
}

func recordEvents(c *Client) *[]domain.SessionEvent {
	var events []domain.SessionEvent
	c.Subscribe(func(ev domain.SessionEvent) { events = append(events, ev) })
	return &events
}

func TestSignInWithPassword(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/token?password"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sessionBody(t, "access-1", "refresh-1"))
	}
	events := recordEvents(c)

	s, err := c.SignInWithPassword(context.Background(), "jane@example.com", "hunter22")
	assert.NilError(t, err)
	assert.Equal(t, s.AccessToken, "access-1")
	assert.Equal(t, s.RefreshToken, "refresh-1")
	assert.Equal(t, s.User.ID, "u1")
	assert.Equal(t, s.User.Username, "jane")
	assert.Equal(t, s.User.Provider, "email")
	assert.Check(t, s.ExpiresAt.After(time.Now().Add(59*time.Minute)))

	assert.Equal(t, f.bodies[0]["email"], "jane@example.com")
	assert.Equal(t, f.bodies[0]["password"], "hunter22")
	assert.Equal(t, f.requests[0].Header.Get("Authorization"), "Bearer anon")

	assert.Equal(t, len(*events), 1)
	assert.Equal(t, (*events)[0].Kind, domain.SessionSignedIn)
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/token?password"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`)
	}
	events := recordEvents(c)

	_, err := c.SignInWithPassword(context.Background(), "jane@example.com", "wrong")
	assert.Check(t, errors.Is(err, domain.ErrInvalidCredentials))
	assert.ErrorContains(t, err, "Invalid login credentials")
	assert.Equal(t, len(*events), 0)
}

func TestSignUp_PendingConfirmation(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/signup"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"u2","email":"new@example.com","user_metadata":{"username":"newbie"}}`)
	}

	s, err := c.SignUp(context.Background(), "new@example.com", "longpassword", " newbie ")
	assert.NilError(t, err)
	assert.Check(t, s == nil)

	data, ok := f.bodies[0]["data"].(map[string]any)
	assert.Check(t, ok)
	assert.Equal(t, data["username"], "newbie")
}

func TestSignUp_AutoConfirmed(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/signup"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sessionBody(t, "a", "r"))
	}
	events := recordEvents(c)

	s, err := c.SignUp(context.Background(), "jane@example.com", "longpassword", "jane")
	assert.NilError(t, err)
	assert.Equal(t, s.User.ID, "u1")
	assert.Equal(t, (*events)[0].Kind, domain.SessionSignedIn)
}

func TestSignUp_AlreadyRegistered(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/signup"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`)
	}

	_, err := c.SignUp(context.Background(), "jane@example.com", "longpassword", "jane")
	assert.ErrorContains(t, err, "User already registered")
}

func TestRefresh(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/token?refresh_token"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sessionBody(t, "access-2", "refresh-2"))
	}
	events := recordEvents(c)

	s, err := c.Refresh(context.Background(), "refresh-1")
	assert.NilError(t, err)
	assert.Equal(t, s.RefreshToken, "refresh-2")
	assert.Equal(t, f.bodies[0]["refresh_token"], "refresh-1")
	assert.Equal(t, (*events)[0].Kind, domain.SessionTokenRefreshed)
}

func TestRefresh_RevokedToken(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/token?refresh_token"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`)
	}

	_, err := c.Refresh(context.Background(), "stale")
	assert.Check(t, errors.Is(err, domain.ErrSessionExpired))

	_, err = c.Refresh(context.Background(), "")
	assert.Check(t, errors.Is(err, domain.ErrNotSignedIn))
}

func TestSignOut(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/logout"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	events := recordEvents(c)

	err := c.SignOut(context.Background(), &domain.Session{AccessToken: "access-1", RefreshToken: "r"})
	assert.NilError(t, err)
	assert.Equal(t, f.requests[0].Header.Get("Authorization"), "Bearer access-1")
	assert.Equal(t, (*events)[0].Kind, domain.SessionSignedOut)
	assert.Check(t, (*events)[0].Session == nil)
}

func TestSignOut_ExpiredTokenStillSignsOut(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/logout"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	events := recordEvents(c)

	assert.NilError(t, c.SignOut(context.Background(), &domain.Session{AccessToken: "old"}))
	assert.Equal(t, len(*events), 1)
}

func TestUpdateUsername(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["PUT /auth/v1/user"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"u1","email":"jane@example.com","user_metadata":{"username":"janed"}}`)
	}
	events := recordEvents(c)

	u, err := c.UpdateUsername(context.Background(), "access-1", "janed")
	assert.NilError(t, err)
	assert.Equal(t, u.Username, "janed")
	assert.Equal(t, f.requests[0].Header.Get("Authorization"), "Bearer access-1")
	assert.Equal(t, f.bodies[0]["data"].(map[string]any)["username"], "janed")
	assert.Equal(t, (*events)[0].Kind, domain.SessionUserUpdated)
	assert.Equal(t, (*events)[0].Session.User.Username, "janed")

	_, err = c.UpdateUsername(context.Background(), "", "x")
	assert.Check(t, errors.Is(err, domain.ErrNotSignedIn))
	_, err = c.UpdateUsername(context.Background(), "access-1", "  ")
	assert.ErrorContains(t, err, "empty")
}

func TestGetUser_ExpiredToken(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["GET /auth/v1/user"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"msg":"invalid JWT"}`)
	}

	_, err := c.GetUser(context.Background(), "access-1")
	assert.Check(t, errors.Is(err, domain.ErrSessionExpired))
}

func TestRestore_ValidTokenFetchesUser(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["GET /auth/v1/user"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"u1","email":"jane@example.com","user_metadata":{"username":"jane"}}`)
	}
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedToken(t, "u1", "jane@example.com", exp)

	s, err := c.Restore(context.Background(), access, "refresh-1")
	assert.NilError(t, err)
	assert.Equal(t, s.AccessToken, access)
	assert.Equal(t, s.User.Username, "jane")
	assert.Check(t, s.ExpiresAt.Equal(exp))
	assert.Equal(t, len(f.requests), 1)
}

func TestRestore_ExpiredTokenRefreshes(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/token?refresh_token"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sessionBody(t, "fresh", "refresh-2"))
	}
	access := signedToken(t, "u1", "jane@example.com", time.Now().Add(-time.Hour))

	s, err := c.Restore(context.Background(), access, "refresh-1")
	assert.NilError(t, err)
	assert.Equal(t, s.AccessToken, "fresh")
	assert.Equal(t, f.requests[0].URL.Query().Get("grant_type"), "refresh_token")
}

func TestOAuthURLAndExchange(t *testing.T) {
	f, c := newFakeGoTrue(t)
	f.handlers["POST /auth/v1/token?pkce"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sessionBody(t, "a", "r"))
	}
	p := NewPKCE()

	raw := c.OAuthURL("google", "http://127.0.0.1:54321/callback", p)
	u, err := url.Parse(raw)
	assert.NilError(t, err)
	assert.Equal(t, u.Path, "/auth/v1/authorize")
	assert.Equal(t, u.Query().Get("provider"), "google")
	assert.Equal(t, u.Query().Get("code_challenge"), Challenge(p.Verifier))
	assert.Equal(t, u.Query().Get("code_challenge_method"), "s256")

	s, err := c.ExchangeCode(context.Background(), "code-1", p.Verifier)
	assert.NilError(t, err)
	assert.Equal(t, s.AccessToken, "a")
	assert.Equal(t, f.bodies[0]["auth_code"], "code-1")
	assert.Equal(t, f.bodies[0]["code_verifier"], p.Verifier)
}

func TestPKCE(t *testing.T) {
	p := NewPKCE()
	assert.Equal(t, len(p.Verifier), 64)
	assert.Check(t, NewPKCE().Verifier != p.Verifier)
	// RFC 7636 appendix B
	assert.Equal(t, Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"), "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM")
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := ParseClaims(signedToken(t, "u1", "jane@example.com", exp))
	assert.NilError(t, err)
	assert.Equal(t, claims.Subject, "u1")
	assert.Equal(t, claims.Email, "jane@example.com")
	assert.Check(t, claims.ExpiresAt.Equal(exp))

	_, err = ParseClaims("not-a-jwt")
	assert.ErrorContains(t, err, "failed to parse access token")
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient("", "", log.NullLogger())
	_, err := c.SignInWithPassword(context.Background(), "a", "b")
	assert.Check(t, errors.Is(err, domain.ErrIdentityUnavailable))
}
