package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/ingest"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
	LogFormatAuto = "auto"
)

// Search engines.
const (
	SearchDisabled      = "disabled"
	SearchSQLite        = "sqlite"
	SearchElasticsearch = "elasticsearch"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Data   DataConfig        `yaml:"data"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Search SearchConfig      `yaml:"search"`
	Ingest IngestConfig      `yaml:"ingest"`
	Pocket PocketConfig      `yaml:"pocket"`
	Watch  WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"data", &c.Data},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"search", &c.Search},
		{"ingest", &c.Ingest},
		{"pocket", &c.Pocket},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatAuto
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText, LogFormatAuto)),
	); err != nil {
		return err
	}
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

// DataConfig holds the root directory of the document tree.
type DataConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
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

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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

// SearchConfig selects the full-text engine.
type SearchConfig struct {
	Engine    string   `yaml:"engine"`
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Engine == "" {
		c.Engine = SearchDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Engine, validation.In(SearchDisabled, SearchSQLite, SearchElasticsearch)),
		validation.Field(&c.Addresses,
			validation.When(c.Engine == SearchElasticsearch, validation.Required),
			validation.Each(validation.By(absoluteURL))),
	)
}

// IngestConfig tunes page fetching for bookmarks.
type IngestConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	Extractor string        `yaml:"extractor"`
	UserAgent string        `yaml:"user_agent"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1024))),
		validation.Field(&c.Extractor, validation.In(ingest.ExtractorReadability, ingest.ExtractorTrafilatura)),
	)
}

// PocketConfig holds the Pocket integration settings. The consumer key is
// supplied at runtime through the settings endpoint and stored in the index.
type PocketConfig struct {
	Enabled     bool    `yaml:"enabled"`
	BaseURL     string  `yaml:"base_url"`
	RedirectURI string  `yaml:"redirect_uri"`
	Rate        float64 `yaml:"rate"` // page fetches per second during sync; 0 is unlimited
}

// Validate validates the Pocket configuration.
func (c *PocketConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.When(c.Enabled, validation.Required, validation.By(absoluteURL))),
		validation.Field(&c.RedirectURI, validation.When(c.Enabled, validation.Required, validation.By(absoluteURL))),
		validation.Field(&c.Rate, validation.Min(0.0)),
	)
}

// WatchConfig enables reconciling edits made directly to the document tree.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatAuto,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Data: DataConfig{
			Path: "./data",
		},
		SQLite: SQLiteConfig{
			Path: "./quire.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Search: SearchConfig{
			Engine: SearchSQLite,
			Index:  "quire",
		},
		Ingest: IngestConfig{
			Timeout:   ingest.DefaultFetchTimeout,
			MaxBytes:  ingest.DefaultMaxBytes,
			Extractor: ingest.ExtractorReadability,
		},
		Pocket: PocketConfig{
			BaseURL:     "https://getpocket.com/v3/",
			RedirectURI: "http://localhost:8080/api/pocket/callback",
			Rate:        2,
		},
	}
}
