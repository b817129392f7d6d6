package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ogfetch/internal/ogservice"
	"github.com/starford/ogfetch/internal/planner"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig  `yaml:"app"`
	Vault     VaultConfig        `yaml:"vault"`
	SQLite    SQLiteConfig       `yaml:"sqlite"`
	Auth      AuthConfig         `yaml:"auth"`
	OpenGraph OpenGraphConfig    `yaml:"opengraph"`
	Fields    planner.FieldNames `yaml:"fields"`
	Policy    planner.Policy     `yaml:"policy"`
	Batch     BatchConfig        `yaml:"batch"`
	Scan      ScanConfig         `yaml:"scan"`
	Watch     WatchConfig        `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.OpenGraph.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return c.Batch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds the fetch history database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// OpenGraphConfig holds the metadata provider settings.
type OpenGraphConfig struct {
	// APIKey may stay empty; fetches then fail with a missing-credential error.
	APIKey  string `yaml:"api_key"`
	APIURL  string `yaml:"api_url"`
	BaseURL string `yaml:"base_url"`
	Retries int    `yaml:"retries"`
	// BackoffDelay is the initial retry wait in milliseconds.
	BackoffDelay int `yaml:"backoff_delay"`
	// RateLimit is the number of requests per minute a batch may issue.
	RateLimit int `yaml:"rate_limit"`
	// CacheDuration is the cache freshness window in seconds; 0 disables caching.
	CacheDuration int `yaml:"cache_duration"`
}

// Validate validates the provider configuration.
func (c *OpenGraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.When(c.BaseURL == "", validation.Required)),
		validation.Field(&c.Retries, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&c.BackoffDelay, validation.Min(0)),
		validation.Field(&c.RateLimit, validation.Min(0)),
		validation.Field(&c.CacheDuration, validation.Min(0)),
	)
}

// Endpoint returns the site lookup URL, derived from BaseURL when APIURL is unset.
func (c *OpenGraphConfig) Endpoint() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return strings.TrimRight(c.BaseURL, "/") + "/api/1.1/site"
}

// Backoff returns the initial retry wait.
func (c *OpenGraphConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffDelay) * time.Millisecond
}

// CacheTTL returns the cache freshness window.
func (c *OpenGraphConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheDuration) * time.Second
}

// BatchConfig holds batch pacing settings.
type BatchConfig struct {
	// Delay between documents in milliseconds; 0 derives it from the rate limit.
	Delay int `yaml:"delay"`
	// RefreshAfter re-fetches complete documents whose last fetch is older than this.
	RefreshAfter time.Duration `yaml:"refresh_after"`
}

// Validate validates the batch configuration.
func (c *BatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Delay, validation.Min(0)),
		validation.Field(&c.RefreshAfter, validation.Min(time.Duration(0))),
	)
}

// DelayFor returns the effective pause between batch documents.
func (c *Config) DelayFor() time.Duration {
	return ogservice.DelayFor(time.Duration(c.Batch.Delay)*time.Millisecond, c.OpenGraph.RateLimit)
}

// ScanConfig restricts which vault files are considered.
type ScanConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// WatchConfig controls the vault watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./ogfetch.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		OpenGraph: OpenGraphConfig{
			BaseURL:       "https://opengraph.io",
			APIURL:        "https://opengraph.io/api/1.1/site",
			Retries:       3,
			BackoffDelay:  1000,
			RateLimit:     60,
			CacheDuration: 86400,
		},
		Fields: planner.DefaultFieldNames(),
		Policy: planner.DefaultPolicy(),
		Scan: ScanConfig{
			Exclude: []string{".trash/**"},
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}
