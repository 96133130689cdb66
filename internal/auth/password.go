package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strings"

	"github.com/mmcdole/pixora/internal/domain"
	"golang.org/x/term"
)

const minPasswordLength = 6

type passwordClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password, username string) (*domain.Session, error)
}

// PasswordFlow implements domain.AuthFlow for email/password sign-in and sign-up
type PasswordFlow struct {
	client passwordClient
	signUp bool
	logger *slog.Logger

	in           *bufio.Reader
	out          io.Writer
	readPassword func() (string, error)
}

// NewPasswordFlow creates a flow on the process terminal
func NewPasswordFlow(client passwordClient, signUp bool, logger *slog.Logger) *PasswordFlow {
	if logger == nil {
		logger = slog.Default()
	}
	f := &PasswordFlow{
		client: client,
		signUp: signUp,
		logger: logger,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	f.readPassword = f.terminalPassword
	return f
}

// WithIO redirects prompts, for scripted input and tests. Passwords are read as plain lines.
func (f *PasswordFlow) WithIO(in io.Reader, out io.Writer) *PasswordFlow {
	f.in = bufio.NewReader(in)
	f.out = out
	f.readPassword = f.readLine
	return f
}

// Run prompts for credentials and authenticates against the identity provider
func (f *PasswordFlow) Run(ctx context.Context) (*domain.AuthResult, error) {
	title := "Sign in to Pixora"
	if f.signUp {
		title = "Create a Pixora account"
	}
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, title)
	fmt.Fprintln(f.out, "━━━━━━━━━━━━━━━━━━━━━━━━")

	email, err := f.prompt("Email: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email address %q", email)
	}

	var username string
	if f.signUp {
		username, err = f.prompt("Username: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read username: %w", err)
		}
		if username == "" {
			return nil, errors.New("username is required")
		}
	}

	fmt.Fprint(f.out, "Password: ")
	password, err := f.readPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	if f.signUp {
		if len(password) < minPasswordLength {
			return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
		}
		fmt.Fprint(f.out, "Confirm password: ")
		confirm, err := f.readPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		if confirm != password {
			return nil, errors.New("passwords do not match")
		}
	}

	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, "Authenticating...")

	if f.signUp {
		s, err := f.client.SignUp(ctx, email, password, username)
		if err != nil {
			return nil, err
		}
		if s == nil {
			fmt.Fprintln(f.out, "Check your inbox to confirm your email, then sign in.")
			return &domain.AuthResult{Pending: true}, nil
		}
		fmt.Fprintln(f.out, "Account created!")
		return &domain.AuthResult{Session: s}, nil
	}

	s, err := f.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(f.out, "Authentication successful!")
	return &domain.AuthResult{Session: s}, nil
}

func (f *PasswordFlow) prompt(label string) (string, error) {
	fmt.Fprint(f.out, label)
	return f.readLine()
}

func (f *PasswordFlow) readLine() (string, error) {
	line, err := f.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// terminalPassword reads without echo when stdin is a terminal
func (f *PasswordFlow) terminalPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return f.readLine()
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(f.out) // Add newline after hidden input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
