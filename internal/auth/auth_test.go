package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/log"
	"github.com/mmcdole/pixora/internal/supabase"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type fakeIdentity struct {
	signIns  [][2]string
	signUps  [][3]string
	pending  bool
	err      error
	verifier string
	code     string
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	f.signIns = append(f.signIns, [2]string{email, password})
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Session{AccessToken: "a", RefreshToken: "r", User: domain.User{ID: "u1", Email: email}}, nil
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password, username string) (*domain.Session, error) {
	f.signUps = append(f.signUps, [3]string{email, password, username})
	if f.err != nil {
		return nil, f.err
	}
	if f.pending {
		return nil, nil
	}
	return &domain.Session{AccessToken: "a", RefreshToken: "r", User: domain.User{ID: "u1", Username: username}}, nil
}

func (f *fakeIdentity) OAuthURL(provider, redirectTo string, p supabase.PKCE) string {
	f.verifier = p.Verifier
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	return "https://auth.example/authorize?" + q.Encode()
}

func (f *fakeIdentity) ExchangeCode(ctx context.Context, code, verifier string) (*domain.Session, error) {
	f.code = code
	if verifier != f.verifier {
		return nil, errors.New("verifier mismatch")
	}
	return &domain.Session{AccessToken: "oa", RefreshToken: "or", User: domain.User{ID: "u9", Provider: "google"}}, nil
}

func TestPasswordFlow_SignIn(t *testing.T) {
	id := &fakeIdentity{}
	var out bytes.Buffer
	flow := NewPasswordFlow(id, false, log.NullLogger()).
		WithIO(strings.NewReader("jane@example.com\nhunter22\n"), &out)

	res, err := flow.Run(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, res.Session.User.ID, "u1")
	assert.Check(t, !res.Pending)
	assert.DeepEqual(t, id.signIns, [][2]string{{"jane@example.com", "hunter22"}})
	assert.Check(t, is.Contains(out.String(), "Authentication successful!"))
}

func TestPasswordFlow_InvalidEmail(t *testing.T) {
	id := &fakeIdentity{}
	flow := NewPasswordFlow(id, false, log.NullLogger()).
		WithIO(strings.NewReader("not-an-email\npw\n"), &bytes.Buffer{})

	_, err := flow.Run(context.Background())
	assert.ErrorContains(t, err, "invalid email address")
	assert.Equal(t, len(id.signIns), 0)
}

func TestPasswordFlow_RejectedCredentials(t *testing.T) {
	id := &fakeIdentity{err: domain.ErrInvalidCredentials}
	flow := NewPasswordFlow(id, false, log.NullLogger()).
		WithIO(strings.NewReader("jane@example.com\nwrong\n"), &bytes.Buffer{})

	_, err := flow.Run(context.Background())
	assert.Check(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestPasswordFlow_SignUpPending(t *testing.T) {
	id := &fakeIdentity{pending: true}
	var out bytes.Buffer
	flow := NewPasswordFlow(id, true, log.NullLogger()).
		WithIO(strings.NewReader("new@example.com\nnewbie\nsecret123\nsecret123\n"), &out)

	res, err := flow.Run(context.Background())
	assert.NilError(t, err)
	assert.Check(t, res.Pending)
	assert.Check(t, res.Session == nil)
	assert.DeepEqual(t, id.signUps, [][3]string{{"new@example.com", "secret123", "newbie"}})
	assert.Check(t, is.Contains(out.String(), "confirm your email"))
}

func TestPasswordFlow_SignUpValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"mismatch", "a@example.com\nuser\nsecret123\nsecret124\n", "passwords do not match"},
		{"short", "a@example.com\nuser\nabc\n", "at least 6 characters"},
		{"no username", "a@example.com\n\n", "username is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := &fakeIdentity{}
			flow := NewPasswordFlow(id, true, log.NullLogger()).
				WithIO(strings.NewReader(tt.input), &bytes.Buffer{})

			_, err := flow.Run(context.Background())
			assert.ErrorContains(t, err, tt.want)
			assert.Equal(t, len(id.signUps), 0)
		})
	}
}

// browserFunc simulates the user's browser following the provider redirect
type browserFunc func(string) error

func (b browserFunc) Open(u string) error { return b(u) }

func followRedirect(t *testing.T, query string) browserFunc {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		callback := u.Query().Get("redirect_to") + "?" + query
		go func() {
			resp, err := http.Get(callback)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestOAuthFlow_ExchangesCode(t *testing.T) {
	id := &fakeIdentity{}
	flow := NewOAuthFlow(id, "google", 0, followRedirect(t, "code=abc123"), log.NullLogger()).
		WithOutput(&bytes.Buffer{})

	res, err := flow.Run(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, res.Session.User.ID, "u9")
	assert.Equal(t, id.code, "abc123")
}

func TestOAuthFlow_ProviderError(t *testing.T) {
	id := &fakeIdentity{}
	flow := NewOAuthFlow(id, "google", 0, followRedirect(t, "error=access_denied&error_description=User+cancelled"), log.NullLogger()).
		WithOutput(&bytes.Buffer{})

	_, err := flow.Run(context.Background())
	assert.Check(t, errors.Is(err, domain.ErrInvalidCredentials))
	assert.ErrorContains(t, err, "User cancelled")
	assert.Equal(t, id.code, "")
}

func TestOAuthFlow_Timeout(t *testing.T) {
	id := &fakeIdentity{}
	flow := NewOAuthFlow(id, "google", 0, nil, log.NullLogger()).WithOutput(&bytes.Buffer{})
	flow.timeout = 50 * time.Millisecond

	_, err := flow.Run(context.Background())
	assert.ErrorContains(t, err, "timed out")
}

func TestNewAuthFlow(t *testing.T) {
	id := &fakeIdentity{}
	for _, m := range []Method{MethodPassword, MethodSignUp, MethodOAuth} {
		flow, err := NewAuthFlow(m, id, Options{}, nil)
		assert.NilError(t, err)
		assert.Check(t, flow != nil)
	}
	_, err := NewAuthFlow("magic-link", id, Options{}, nil)
	assert.ErrorContains(t, err, "unknown auth method")
}
