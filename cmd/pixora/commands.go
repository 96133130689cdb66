package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mmcdole/pixora/internal/auth"
	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
)

var errNoIdentity = errors.New("accounts are not configured: set identity.url and identity.anon_key")

func (a *app) runCommand(ctx context.Context, args []string) error {
	switch args[0] {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		oauth := fs.Bool("oauth", false, "sign in with "+a.cfg.Identity.OAuthProvider+" in the browser")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		method := auth.MethodPassword
		if *oauth {
			method = auth.MethodOAuth
		}
		return a.login(ctx, method)

	case "signup":
		return a.login(ctx, auth.MethodSignUp)

	case "logout":
		return a.logout(ctx)

	case "whoami":
		return a.whoami(ctx)

	case "favorites":
		if len(args) < 2 {
			return fmt.Errorf("usage: pixora favorites list|export <file>|import <file>")
		}
		a.startSession(ctx, false)
		switch args[1] {
		case "list":
			return a.listFavorites(os.Stdout)
		case "export":
			if len(args) < 3 {
				return fmt.Errorf("usage: pixora favorites export <file>")
			}
			return a.exportFavorites(args[2])
		case "import":
			if len(args) < 3 {
				return fmt.Errorf("usage: pixora favorites import <file>")
			}
			return a.importFavorites(args[2])
		}
		return fmt.Errorf("unknown favorites command %q", args[1])
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func (a *app) login(ctx context.Context, method auth.Method) error {
	if a.identity == nil {
		return fmt.Errorf("%w in %s", errNoIdentity, config.ConfigFile())
	}
	// An existing session is replaced; restoring first lets its favorites key go away cleanly
	a.startSession(ctx, true)

	flow, err := auth.NewAuthFlow(method, a.identity, auth.Options{
		Provider:     a.cfg.Identity.OAuthProvider,
		CallbackPort: a.cfg.Identity.CallbackPort,
		Opener:       a.browser,
	}, a.logger)
	if err != nil {
		return err
	}

	result, err := flow.Run(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if result.Pending {
		return nil
	}

	// The session manager has adopted and persisted the session through SIGNED_IN
	user := a.session.User()
	if user == nil {
		return fmt.Errorf("authentication failed: no session returned")
	}
	fmt.Printf("Signed in as %s. Favorites now follow your account (%d saved).\n", user.DisplayName(), a.favs.Count())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if a.identity == nil {
		return fmt.Errorf("%w in %s", errNoIdentity, config.ConfigFile())
	}
	a.startSession(ctx, true)

	err := a.session.SignOut(ctx)
	switch {
	case errors.Is(err, domain.ErrNotSignedIn):
		fmt.Println("Not signed in.")
		return nil
	case err != nil:
		fmt.Fprintf(os.Stderr, "Signed out on this device, but the account service reported: %v\n", err)
		return nil
	}
	fmt.Println("✓ Signed out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if a.identity == nil {
		fmt.Printf("Accounts are not configured. Device profile %s, %d favorites.\n", a.cfg.Profile.ID, a.favs.Count())
		return nil
	}
	a.startSession(ctx, false)

	user := a.session.User()
	if user == nil {
		fmt.Printf("Not signed in. Device profile %s, %d favorites.\n", a.cfg.Profile.ID, a.favs.Count())
		return nil
	}

	username := user.Username
	if username == "" {
		username = "(not set)"
	}
	fmt.Printf("Username:  %s\n", username)
	fmt.Printf("Email:     %s\n", user.Email)
	if user.Provider != "" {
		fmt.Printf("Sign-in:   %s\n", user.Provider)
	}
	fmt.Printf("User ID:   %s\n", user.ID)
	fmt.Printf("Favorites: %d\n", a.favs.Count())
	return nil
}

func (a *app) listFavorites(w io.Writer) error {
	items := a.favs.List()
	if len(items) == 0 {
		fmt.Fprintln(w, "No favorites yet.")
		return nil
	}
	for _, f := range items {
		added := ""
		if !f.AddedAt.IsZero() {
			added = f.AddedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(w, "%-14s %-40s %s\n", f.ID, f.GetTitle(), added)
	}
	return nil
}

func (a *app) exportFavorites(path string) error {
	if path == "-" {
		return a.favs.Export(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := a.favs.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Exported %d favorites to %s\n", a.favs.Count(), path)
	return nil
}

func (a *app) importFavorites(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	report, err := a.favs.Import(f)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Imported %d favorites (%d already saved)\n", report.Added, report.Skipped)
	return nil
}
