package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/language"

	"github.com/starford/tabula/internal/debounce"
	"github.com/starford/tabula/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	Store   StoreConfig       `yaml:"store"`
	Search  SearchConfig      `yaml:"search"`
	Seed    SeedConfig        `yaml:"seed"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return c.Auth.Validate()
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

// StorageConfig selects where the table slot lives.
//
// Driver is one of:
//   - "file" (default): Path is a directory; the slot is <Path>/<Key>.json.
//   - "sqlite": Path is a database file holding a key-value table.
//   - "memory": nothing is persisted; Path is ignored.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Key    string `yaml:"key"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = DriverFile
	}
	if c.Key == "" {
		c.Key = storage.DefaultKey
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverFile, DriverSQLite, DriverMemory)),
		validation.Field(&c.Path, validation.When(c.Driver != DriverMemory, validation.Required)),
		validation.Field(&c.Key, validation.Required, validation.Match(keyRe), validation.Length(1, 128)),
	)
}

// StoreConfig tunes the record store.
type StoreConfig struct {
	Locale        string        `yaml:"locale"`
	QueryLatency  time.Duration `yaml:"query_latency"`
	RemoveLatency time.Duration `yaml:"remove_latency"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Locale == "" {
		c.Locale = language.English.String()
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Locale, validation.By(func(v any) error {
			if _, err := language.Parse(v.(string)); err != nil {
				return errors.New("must be a BCP 47 language tag")
			}
			return nil
		})),
		validation.Field(&c.QueryLatency, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
		validation.Field(&c.RemoveLatency, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
	)
}

// Tag returns the parsed collation language.
func (c *StoreConfig) Tag() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// SearchConfig holds the keyword and reload quiet period.
type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Debounce == 0 {
		c.Debounce = debounce.DefaultQuiet
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Millisecond), validation.Max(5*time.Second)),
	)
}

// SeedConfig points at an optional document loaded into an empty table at
// startup.
type SeedConfig struct {
	Path string `yaml:"path"`
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Driver: DriverFile,
			Path:   "./data",
			Key:    storage.DefaultKey,
		},
		Store: StoreConfig{
			Locale: language.English.String(),
		},
		Search: SearchConfig{
			Debounce: debounce.DefaultQuiet,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
