package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagebook/internal/aisearch"
	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Storage   StorageConfig     `yaml:"storage"`
	Index     IndexConfig       `yaml:"index"`
	Templates TemplatesConfig   `yaml:"templates"`
	AI        AIConfig          `yaml:"ai"`
	Editor    EditorConfig      `yaml:"editor"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	if err := c.Editor.Validate(); err != nil {
		return fmt.Errorf("editor: %w", err)
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

// StorageConfig selects the durable key/value backend for editor state.
//
// Path is the SQLite database file for "sqlite" and the directory for "fs".
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(storage.DriverSQLite, storage.DriverFS, storage.DriverRedis)),
		validation.Field(&c.Path, validation.When(c.Driver != storage.DriverRedis, validation.Required)),
		validation.Field(&c.RedisURL, validation.When(c.Driver == storage.DriverRedis, validation.Required)),
	)
}

// Options converts the configuration to storage.Options.
func (c *StorageConfig) Options() storage.Options {
	return storage.Options{Driver: c.Driver, Path: c.Path, RedisURL: c.RedisURL}
}

// IndexConfig holds the search index database location. An empty path
// disables full-text search.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// TemplatesConfig holds the optional user template directory.
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// AIConfig configures the grounded AI search client. An empty APIKey
// leaves the feature unavailable.
type AIConfig struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
	)
}

// ClientOptions converts the configuration to aisearch.ClientOptions.
func (c *AIConfig) ClientOptions(logger *slog.Logger) aisearch.ClientOptions {
	return aisearch.ClientOptions{
		APIKey:     c.APIKey,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
		Logger:     logger,
	}
}

// EditorConfig holds editor defaults.
//
// SystemTheme stands in for the host's colour-scheme preference and is used
// when no theme has been persisted yet. Empty means no preference.
type EditorConfig struct {
	SystemTheme string `yaml:"system_theme"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SystemTheme, validation.In(string(docstore.ThemeLight), string(docstore.ThemeDark))),
	)
}

// PreferredTheme reports the configured system preference, if any.
func (c *EditorConfig) PreferredTheme() (docstore.Theme, bool) {
	t := docstore.Theme(c.SystemTheme)
	return t, t.Valid()
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
			Driver: storage.DriverSQLite,
			Path:   "./pagebook.db",
		},
		Index: IndexConfig{
			Path: "./pagebook-index.db",
		},
		AI: AIConfig{
			Model:      "gemini-2.5-flash",
			BaseURL:    aisearch.DefaultBaseURL,
			Timeout:    60 * time.Second,
			MaxRetries: 2,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
