package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/pixora/internal/domain"
)

// Method selects an interactive authentication flow
type Method string

const (
	MethodPassword Method = "password"
	MethodSignUp   Method = "signup"
	MethodOAuth    Method = "oauth"
)

// Options carries what the OAuth flow needs beyond the identity client
type Options struct {
	Provider     string // OAuth provider name, e.g. "google"
	CallbackPort int
	Opener       opener
}

// identityClient is the slice of the identity provider the flows use (consumer-defined interface)
type identityClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password, username string) (*domain.Session, error)
	oauthClient
}

// NewAuthFlow creates the appropriate AuthFlow for method.
// - Password: prompts for email and hidden password
// - SignUp: prompts for email, username and password twice
// - OAuth: opens the provider consent page and waits for the loopback callback
func NewAuthFlow(method Method, client identityClient, opts Options, logger *slog.Logger) (domain.AuthFlow, error) {
	switch method {
	case MethodPassword:
		return NewPasswordFlow(client, false, logger), nil

	case MethodSignUp:
		return NewPasswordFlow(client, true, logger), nil

	case MethodOAuth:
		return NewOAuthFlow(client, opts.Provider, opts.CallbackPort, opts.Opener, logger), nil

	default:
		return nil, fmt.Errorf("unknown auth method: %s", method)
	}
}
