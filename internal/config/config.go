package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Backend identifies the favorites storage substrate
type Backend string

const (
	BackendBolt   Backend = "bolt"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Scope decides whose favorites collection is active
type Scope string

const (
	ScopeUser    Scope = "user"    // one collection per signed-in account
	ScopeProfile Scope = "profile" // one collection shared by everyone on this machine
)

// DownloadMode decides how an issued download URL is materialized
type DownloadMode string

const (
	DownloadOpen DownloadMode = "open" // hand the URL to the system browser
	DownloadSave DownloadMode = "save" // fetch the bytes into download.dir
)

// Config holds all application configuration
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Session   SessionConfig   `mapstructure:"session"`
	Favorites FavoritesConfig `mapstructure:"favorites"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Download  DownloadConfig  `mapstructure:"download"`
	UI        UIConfig        `mapstructure:"ui"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CatalogConfig holds photo catalog API settings
type CatalogConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	AccessKey       string        `mapstructure:"access_key"` // sent as "Client-ID <key>"
	PerPage         int           `mapstructure:"per_page"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestsPerHour int           `mapstructure:"requests_per_hour"` // 0 disables client-side limiting
}

// IdentityConfig holds identity provider settings
type IdentityConfig struct {
	URL           string `mapstructure:"url"`      // project URL, e.g. https://xyz.supabase.co
	AnonKey       string `mapstructure:"anon_key"` // public API key
	OAuthProvider string `mapstructure:"oauth_provider"`
	CallbackPort  int    `mapstructure:"callback_port"`
}

// SessionConfig holds the persisted session tokens
type SessionConfig struct {
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	ExpiresAt    int64  `mapstructure:"expires_at"` // unix seconds, 0 = unknown
}

// FavoritesConfig holds favorites storage settings
type FavoritesConfig struct {
	Backend Backend `mapstructure:"backend"`
	Path    string  `mapstructure:"path"`
	Scope   Scope   `mapstructure:"scope"`
}

// ProfileConfig identifies this local installation
type ProfileConfig struct {
	ID string `mapstructure:"id"`
}

// DownloadConfig holds download settings
type DownloadConfig struct {
	Mode DownloadMode `mapstructure:"mode"`
	Dir  string       `mapstructure:"dir"`
	// Browser overrides the system URL handler, e.g. "firefox"
	Browser string `mapstructure:"browser"`
}

// UIConfig holds UI configuration
type UIConfig struct {
	GridColumns    int  `mapstructure:"grid_columns"`
	Previews       bool `mapstructure:"previews"`
	PreviewWorkers int  `mapstructure:"preview_workers"`
	PreviewCache   int  `mapstructure:"preview_cache"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// configFileMode keeps the saved file private; it holds session tokens
const configFileMode os.FileMode = 0600

// v is the process-wide viper instance; LoadConfig resets it.
// viper is not safe for concurrent use, so every access goes through mu.
var (
	mu sync.Mutex
	v  = newViper()
)

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetConfigPermissions(configFileMode)
	return nv
}

// configDir overrides defaultConfigPath when set (tests, --config-dir)
var configDir string

// SetConfigDir points loading and saving at dir instead of the OS default
func SetConfigDir(dir string) {
	configDir = dir
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:         "https://api.unsplash.com",
			PerPage:         30,
			Timeout:         15 * time.Second,
			RequestsPerHour: 50,
		},
		Identity: IdentityConfig{
			OAuthProvider: "google",
			CallbackPort:  54321,
		},
		Favorites: FavoritesConfig{
			Backend: BackendBolt,
			Path:    filepath.Join(defaultDataPath(), "favorites.db"),
			Scope:   ScopeUser,
		},
		Download: DownloadConfig{
			Mode: DownloadOpen,
			Dir:  defaultDownloadPath(),
		},
		UI: UIConfig{
			GridColumns:    4,
			Previews:       true,
			PreviewWorkers: 4,
			PreviewCache:   64,
		},
		Logging: LoggingConfig{
			File:  filepath.Join(defaultDataPath(), "pixora.log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the per-user data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "pixora")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "pixora")
	}
}

// defaultDownloadPath returns the directory used by download.mode=save
func defaultDownloadPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Pictures", "pixora")
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	if configDir != "" {
		return configDir
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "pixora")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "pixora")
	}
}

// setDefaults registers every key with viper so environment overrides apply
// even when the config file does not mention them
func setDefaults(cfg *Config) {
	v.SetDefault("catalog.base_url", cfg.Catalog.BaseURL)
	v.SetDefault("catalog.access_key", cfg.Catalog.AccessKey)
	v.SetDefault("catalog.per_page", cfg.Catalog.PerPage)
	v.SetDefault("catalog.timeout", cfg.Catalog.Timeout)
	v.SetDefault("catalog.requests_per_hour", cfg.Catalog.RequestsPerHour)

	v.SetDefault("identity.url", cfg.Identity.URL)
	v.SetDefault("identity.anon_key", cfg.Identity.AnonKey)
	v.SetDefault("identity.oauth_provider", cfg.Identity.OAuthProvider)
	v.SetDefault("identity.callback_port", cfg.Identity.CallbackPort)

	v.SetDefault("session.access_token", "")
	v.SetDefault("session.refresh_token", "")
	v.SetDefault("session.expires_at", 0)

	v.SetDefault("favorites.backend", string(cfg.Favorites.Backend))
	v.SetDefault("favorites.path", cfg.Favorites.Path)
	v.SetDefault("favorites.scope", string(cfg.Favorites.Scope))

	v.SetDefault("profile.id", "")

	v.SetDefault("download.mode", string(cfg.Download.Mode))
	v.SetDefault("download.dir", cfg.Download.Dir)
	v.SetDefault("download.browser", cfg.Download.Browser)

	v.SetDefault("ui.grid_columns", cfg.UI.GridColumns)
	v.SetDefault("ui.previews", cfg.UI.Previews)
	v.SetDefault("ui.preview_workers", cfg.UI.PreviewWorkers)
	v.SetDefault("ui.preview_cache", cfg.UI.PreviewCache)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	mu.Lock()
	defer mu.Unlock()

	v = newViper()
	setDefaults(cfg)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultConfigPath())
	if configDir == "" {
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. PIXORA_CATALOG_ACCESS_KEY
	v.SetEnvPrefix("PIXORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.Favorites.Path = expandHome(cfg.Favorites.Path)
	cfg.Download.Dir = expandHome(cfg.Download.Dir)
	cfg.Logging.File = expandHome(cfg.Logging.File)

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	mu.Lock()
	defer mu.Unlock()

	v.Set("catalog.base_url", cfg.Catalog.BaseURL)
	v.Set("catalog.access_key", cfg.Catalog.AccessKey)
	v.Set("catalog.per_page", cfg.Catalog.PerPage)
	v.Set("catalog.timeout", cfg.Catalog.Timeout.String())
	v.Set("catalog.requests_per_hour", cfg.Catalog.RequestsPerHour)

	v.Set("identity.url", cfg.Identity.URL)
	v.Set("identity.anon_key", cfg.Identity.AnonKey)
	v.Set("identity.oauth_provider", cfg.Identity.OAuthProvider)
	v.Set("identity.callback_port", cfg.Identity.CallbackPort)

	setSession(cfg.Session)

	v.Set("favorites.backend", string(cfg.Favorites.Backend))
	v.Set("favorites.path", cfg.Favorites.Path)
	v.Set("favorites.scope", string(cfg.Favorites.Scope))

	v.Set("profile.id", cfg.Profile.ID)

	v.Set("download.mode", string(cfg.Download.Mode))
	v.Set("download.dir", cfg.Download.Dir)
	v.Set("download.browser", cfg.Download.Browser)

	v.Set("ui.grid_columns", cfg.UI.GridColumns)
	v.Set("ui.previews", cfg.UI.Previews)
	v.Set("ui.preview_workers", cfg.UI.PreviewWorkers)
	v.Set("ui.preview_cache", cfg.UI.PreviewCache)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	return writeConfig()
}

// SaveSession updates just the session tokens in the configuration
func SaveSession(s SessionConfig) error {
	mu.Lock()
	defer mu.Unlock()
	setSession(s)
	return writeConfig()
}

// ClearSession removes the persisted session tokens while preserving other settings
func ClearSession() error {
	mu.Lock()
	defer mu.Unlock()
	setSession(SessionConfig{})
	return writeConfig()
}

func setSession(s SessionConfig) {
	v.Set("session.access_token", s.AccessToken)
	v.Set("session.refresh_token", s.RefreshToken)
	v.Set("session.expires_at", s.ExpiresAt)
}

// writeConfig saves v to the config file. Caller holds mu.
func writeConfig() error {
	configPath := defaultConfigPath()

	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Restrict the file before any content reaches it. viper truncates an
	// existing file in place, so its mode carries over.
	configFile := filepath.Join(configPath, "config.yaml")
	f, err := os.OpenFile(configFile, os.O_CREATE|os.O_WRONLY, configFileMode)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := os.Chmod(configFile, configFileMode); err != nil {
		return fmt.Errorf("failed to restrict config file: %w", err)
	}

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// EnsureProfileID assigns a stable random id to this installation on first use
// and persists it. Returns true when a new id was generated.
func EnsureProfileID(cfg *Config) (bool, error) {
	if cfg.Profile.ID != "" {
		return false, nil
	}
	cfg.Profile.ID = uuid.NewString()

	mu.Lock()
	defer mu.Unlock()
	v.Set("profile.id", cfg.Profile.ID)
	if err := writeConfig(); err != nil {
		return true, err
	}
	return true, nil
}

// IsConfigured returns true if the catalog access key is set
func (c *Config) IsConfigured() bool {
	return c.Catalog.AccessKey != ""
}

// HasIdentity returns true if an identity provider is configured
func (c *Config) HasIdentity() bool {
	return c.Identity.URL != "" && c.Identity.AnonKey != ""
}

// ConfigFile returns the path the configuration is saved to
func ConfigFile() string {
	return filepath.Join(defaultConfigPath(), "config.yaml")
}

// expandHome expands a leading ~ to the user's home directory
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
