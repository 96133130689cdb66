package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func useTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	useTempConfigDir(t)

	cfg, err := LoadConfig()
	assert.NilError(t, err)

	assert.Equal(t, cfg.Catalog.BaseURL, "https://api.unsplash.com")
	assert.Equal(t, cfg.Catalog.PerPage, 30)
	assert.Equal(t, cfg.Catalog.Timeout, 15*time.Second)
	assert.Equal(t, cfg.Favorites.Backend, BackendBolt)
	assert.Equal(t, cfg.Favorites.Scope, ScopeUser)
	assert.Equal(t, cfg.Download.Mode, DownloadOpen)
	assert.Check(t, !cfg.IsConfigured())
	assert.Check(t, !cfg.HasIdentity())
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := useTempConfigDir(t)

	cfg, err := LoadConfig()
	assert.NilError(t, err)

	cfg.Catalog.AccessKey = "abc123"
	cfg.Catalog.Timeout = 5 * time.Second
	cfg.Identity.URL = "https://project.supabase.co"
	cfg.Identity.AnonKey = "anon"
	cfg.Favorites.Backend = BackendSQLite
	cfg.Favorites.Scope = ScopeProfile
	cfg.Session = SessionConfig{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1700000000}
	assert.NilError(t, SaveConfig(cfg))

	info, err := os.Stat(ConfigFile())
	assert.NilError(t, err)
	assert.Equal(t, info.Mode().Perm(), os.FileMode(0600))
	assert.Check(t, is.Contains(ConfigFile(), dir))

	loaded, err := LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, loaded.Catalog.AccessKey, "abc123")
	assert.Equal(t, loaded.Catalog.Timeout, 5*time.Second)
	assert.Equal(t, loaded.Favorites.Backend, BackendSQLite)
	assert.Equal(t, loaded.Favorites.Scope, ScopeProfile)
	assert.Equal(t, loaded.Session.RefreshToken, "rt")
	assert.Equal(t, loaded.Session.ExpiresAt, int64(1700000000))
	assert.Check(t, loaded.IsConfigured())
	assert.Check(t, loaded.HasIdentity())
}

func TestClearSession_PreservesOtherSettings(t *testing.T) {
	useTempConfigDir(t)

	cfg, err := LoadConfig()
	assert.NilError(t, err)
	cfg.Catalog.AccessKey = "abc123"
	cfg.Session = SessionConfig{AccessToken: "at", RefreshToken: "rt"}
	assert.NilError(t, SaveConfig(cfg))

	assert.NilError(t, ClearSession())

	loaded, err := LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, loaded.Session.AccessToken, "")
	assert.Equal(t, loaded.Session.RefreshToken, "")
	assert.Equal(t, loaded.Catalog.AccessKey, "abc123")
}

func TestSaveSession_TightensExistingFile(t *testing.T) {
	dir := useTempConfigDir(t)
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("catalog:\n  access_key: abc123\n"), 0644))

	_, err := LoadConfig()
	assert.NilError(t, err)
	assert.NilError(t, SaveSession(SessionConfig{AccessToken: "at", RefreshToken: "rt"}))

	info, err := os.Stat(ConfigFile())
	assert.NilError(t, err)
	assert.Equal(t, info.Mode().Perm(), os.FileMode(0600))

	loaded, err := LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, loaded.Catalog.AccessKey, "abc123")
	assert.Equal(t, loaded.Session.RefreshToken, "rt")
}

func TestSessionWrites_Concurrent(t *testing.T) {
	useTempConfigDir(t)
	_, err := LoadConfig()
	assert.NilError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- SaveSession(SessionConfig{AccessToken: fmt.Sprintf("at-%d", i), RefreshToken: "rt"})
		}()
		go func() {
			defer wg.Done()
			errs <- ClearSession()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NilError(t, err)
	}

	_, err = LoadConfig()
	assert.NilError(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	useTempConfigDir(t)
	t.Setenv("PIXORA_CATALOG_ACCESS_KEY", "from-env")
	t.Setenv("PIXORA_FAVORITES_BACKEND", "memory")

	cfg, err := LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, cfg.Catalog.AccessKey, "from-env")
	assert.Equal(t, cfg.Favorites.Backend, BackendMemory)
}

func TestEnsureProfileID(t *testing.T) {
	useTempConfigDir(t)

	cfg, err := LoadConfig()
	assert.NilError(t, err)

	created, err := EnsureProfileID(cfg)
	assert.NilError(t, err)
	assert.Check(t, created)
	assert.Check(t, cfg.Profile.ID != "")

	loaded, err := LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, loaded.Profile.ID, cfg.Profile.ID)

	created, err = EnsureProfileID(loaded)
	assert.NilError(t, err)
	assert.Check(t, !created)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	assert.NilError(t, err)

	assert.Equal(t, expandHome("/abs/path"), "/abs/path")
	assert.Check(t, is.Contains(expandHome("~/x/y"), home))
}
