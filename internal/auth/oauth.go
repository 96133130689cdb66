package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/supabase"
)

const (
	callbackPath = "/callback"
	oauthTimeout = 5 * time.Minute
)

type oauthClient interface {
	OAuthURL(provider, redirectTo string, p supabase.PKCE) string
	ExchangeCode(ctx context.Context, code, verifier string) (*domain.Session, error)
}

type opener interface {
	Open(url string) error
}

const callbackPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Pixora</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em">
<h2>%s</h2><p>You can close this window and return to the terminal.</p>
</body></html>`

// OAuthFlow implements domain.AuthFlow for provider sign-in with PKCE.
// The provider redirects back to a short-lived listener on the loopback interface.
type OAuthFlow struct {
	client   oauthClient
	provider string
	port     int // 0 picks a free port
	opener   opener
	out      io.Writer
	timeout  time.Duration
	logger   *slog.Logger
}

// NewOAuthFlow creates a new OAuth flow
func NewOAuthFlow(client oauthClient, provider string, port int, opener opener, logger *slog.Logger) *OAuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == "" {
		provider = "google"
	}
	return &OAuthFlow{
		client:   client,
		provider: provider,
		port:     port,
		opener:   opener,
		out:      os.Stdout,
		timeout:  oauthTimeout,
		logger:   logger,
	}
}

// WithOutput redirects progress messages
func (f *OAuthFlow) WithOutput(out io.Writer) *OAuthFlow {
	f.out = out
	return f
}

type callbackResult struct {
	code string
	err  error
}

// Run opens the consent page and waits for the provider to redirect back with a code
func (f *OAuthFlow) Run(ctx context.Context) (*domain.AuthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.port))
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}
	redirectTo := fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := callbackResult{code: q.Get("code")}
		if e := q.Get("error"); e != "" {
			res.err = fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, firstNonEmpty(q.Get("error_description"), e))
		} else if res.code == "" {
			res.err = errors.New("provider redirect carried no authorization code")
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, callbackPage, "Sign-in failed")
		} else {
			fmt.Fprintf(w, callbackPage, "Signed in to Pixora")
		}

		select {
		case results <- res:
		default: // a later duplicate request
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	pkce := supabase.NewPKCE()
	authURL := f.client.OAuthURL(f.provider, redirectTo, pkce)

	fmt.Fprintln(f.out)
	fmt.Fprintf(f.out, "Sign in with %s\n", f.provider)
	fmt.Fprintln(f.out, "━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(f.out, "Opening your browser. If it does not open, visit:")
	fmt.Fprintln(f.out, authURL)
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, "Waiting for authorization...")

	if f.opener != nil {
		if err := f.opener.Open(authURL); err != nil {
			f.logger.Warn("failed to open browser", "error", err)
		}
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.New("timed out waiting for sign-in")
		}
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	s, err := f.client.ExchangeCode(ctx, res.code, pkce.Verifier)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(f.out, "Authentication successful!")
	return &domain.AuthResult{Session: s}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
