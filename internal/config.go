package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/models"
)

// Duration wraps time.Duration so YAML values like "90s" or "1h" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Crawl    CrawlConfig       `yaml:"crawl"`
	GitHub   PlatformConfig    `yaml:"github"`
	Codeberg PlatformConfig    `yaml:"codeberg"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	if err := c.GitHub.Validate(); err != nil {
		return fmt.Errorf("github: %w", err)
	}
	if c.GitHub.Enabled && c.GitHub.Token == "" {
		return fmt.Errorf("github: enabled but token is empty")
	}
	if err := c.Codeberg.Validate(); err != nil {
		return fmt.Errorf("codeberg: %w", err)
	}
	if !c.GitHub.Enabled && !c.Codeberg.Enabled {
		return fmt.Errorf("no platform enabled")
	}
	return nil
}

// Platforms returns the enabled platforms keyed for the crawler.
func (c *Config) Platforms() map[models.Platform]PlatformConfig {
	out := make(map[models.Platform]PlatformConfig, 2)
	if c.GitHub.Enabled {
		out[models.PlatformGitHub] = c.GitHub
	}
	if c.Codeberg.Enabled {
		out[models.PlatformCodeberg] = c.Codeberg
	}
	return out
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

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CrawlConfig holds crawl scheduling and pacing configuration.
type CrawlConfig struct {
	// TopInterval is how often a bounded most-starred sweep starts.
	TopInterval Duration `yaml:"top_interval"`
	// AllInterval is how often the exhaustive sweep advances one
	// creation-date window.
	AllInterval Duration `yaml:"all_interval"`
	// NextPageDelay paces sequential pagination.
	NextPageDelay Duration `yaml:"next_page_delay"`
	// RateLimitFallback delays a retried page when the upstream's 403
	// carried no reset metadata.
	RateLimitFallback Duration `yaml:"rate_limit_fallback"`
}

// Validate validates the crawl configuration.
func (c *CrawlConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TopInterval, validation.Required, validation.Min(Duration(time.Minute))),
		validation.Field(&c.AllInterval, validation.Required, validation.Min(Duration(time.Second))),
	)
}

// PlatformConfig holds one platform's crawl endpoints and credentials.
type PlatformConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Token      string `yaml:"token"`
	SearchBase string `yaml:"search_base"`
	RawBase    string `yaml:"raw_base"`
	Query      string `yaml:"query"`
}

// Validate validates the platform configuration. Token requirements are
// platform-specific and checked by the parent config.
func (c *PlatformConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.SearchBase, validation.Required),
		validation.Field(&c.RawBase, validation.Required),
		validation.Field(&c.Query, validation.Required),
	)
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
		SQLite: SQLiteConfig{
			Path: "./raido.db",
		},
		Crawl: CrawlConfig{
			TopInterval:       Duration(time.Hour),
			AllInterval:       Duration(time.Minute),
			NextPageDelay:     Duration(2 * time.Second),
			RateLimitFallback: Duration(time.Hour),
		},
		GitHub: PlatformConfig{
			Enabled:    true,
			SearchBase: "https://api.github.com/search/repositories",
			RawBase:    "https://raw.githubusercontent.com",
			Query:      "topic:zig-package fork:true",
		},
		Codeberg: PlatformConfig{
			Enabled:    false,
			SearchBase: "https://codeberg.org/api/v1/repos/search",
			RawBase:    "https://codeberg.org",
			Query:      "zig",
		},
	}
}
