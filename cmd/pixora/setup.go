package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/tui/styles"
	"github.com/mmcdole/pixora/internal/unsplash"
)

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                    \r"

// runSetupFlow handles the initial setup when no access key is configured
func runSetupFlow(cfg *config.Config, logger *slog.Logger) error {
	fmt.Println()
	fmt.Println("Welcome to Pixora!")
	fmt.Println()
	fmt.Println("Pixora needs an Unsplash access key. Create an application at")
	fmt.Println("https://unsplash.com/oauth/applications and paste its Access Key.")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	// Loop until we get a key the catalog accepts
	for {
		key, err := prompt(reader, "Access key: ")
		if err != nil {
			return err
		}
		if key == "" {
			fmt.Println("Access key cannot be empty. Please try again.")
			continue
		}

		fmt.Println()
		if err := verifyKeyWithSpinner(cfg, key, logger); err != nil {
			fmt.Printf("\n✗ %v\n", err)
			if errors.Is(err, domain.ErrUnauthorized) {
				fmt.Println("Please check the key and try again.")
				fmt.Println()
				continue
			}
			fmt.Println("Saving the key anyway; check your connection before starting Pixora.")
		}

		cfg.Catalog.AccessKey = key
		break
	}

	fmt.Println()
	fmt.Println("Accounts are optional. Leave the project URL blank to keep favorites on this device only.")
	url, err := prompt(reader, "Supabase project URL: ")
	if err != nil {
		return err
	}
	if url != "" {
		anonKey, err := prompt(reader, "Supabase anon key: ")
		if err != nil {
			return err
		}
		cfg.Identity.URL = url
		cfg.Identity.AnonKey = anonKey
	}

	if _, err := config.EnsureProfileID(cfg); err != nil {
		logger.Warn("failed to persist profile id", "error", err)
	}
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved to " + config.ConfigFile())
	fmt.Println()
	if cfg.HasIdentity() {
		fmt.Println("Run `pixora login` to sign in, or `pixora` to start browsing.")
	} else {
		fmt.Println("Run pixora again to start the application.")
	}

	return nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// verifyKeyWithSpinner fetches a single photo with key, showing a spinner meanwhile
func verifyKeyWithSpinner(cfg *config.Config, key string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := unsplash.NewClient(unsplash.Options{
		BaseURL:   cfg.Catalog.BaseURL,
		AccessKey: key,
		Timeout:   cfg.Catalog.Timeout,
	}, logger)

	// Channel to receive result
	resultCh := make(chan error, 1)

	// Start verification in background
	go func() {
		_, err := client.ListPhotos(ctx, 1)
		resultCh <- err
	}()

	// Spinner animation
	frame := 0

	// Print initial spinner
	fmt.Printf("\r%s Checking access key...", styles.SpinnerFrames[frame])

	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-resultCh:
			// Clear spinner line
			fmt.Print(clearSpinnerLine)

			if err != nil {
				return err
			}
			fmt.Println("✓ Access key accepted")
			return nil

		case <-ticker.C:
			frame++
			fmt.Printf("\r%s Checking access key...", styles.SpinnerFrames[frame%len(styles.SpinnerFrames)])

		case <-ctx.Done():
			fmt.Print(clearSpinnerLine)
			return fmt.Errorf("%w: verification timed out", domain.ErrCatalogUnavailable)
		}
	}
}
