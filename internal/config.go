package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/picshelf/internal/annotate"
	"github.com/starford/picshelf/internal/annotate/gemini"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/query"
	"github.com/starford/picshelf/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var extensionRe = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Annotation AnnotationConfig  `yaml:"annotation"`
	Query      QueryConfig       `yaml:"query"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Annotation.Validate(); err != nil {
		return fmt.Errorf("annotation: %w", err)
	}
	return c.Query.Validate()
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

// CatalogConfig lists the image folders and how they are ingested.
type CatalogConfig struct {
	Folders    []string `yaml:"folders"`
	Extensions []string `yaml:"extensions"`
	// Watch keeps an fsnotify watcher on Folders while serving.
	Watch bool `yaml:"watch"`
	// RetainFailedEdits keeps edits whose save failed for the next save.
	RetainFailedEdits bool `yaml:"retain_failed_edits"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Folders, validation.Each(validation.Required)),
		validation.Field(&c.Extensions, validation.Required, validation.Each(validation.Match(extensionRe))),
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

// AnnotationConfig configures the Gemini annotator. Annotation is disabled
// while APIKey is empty.
type AnnotationConfig struct {
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Prompt            string        `yaml:"prompt"`
	Delay             time.Duration `yaml:"delay"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Retries           int           `yaml:"retries"`
}

// Enabled reports whether an API key is configured.
func (c *AnnotationConfig) Enabled() bool {
	return c.APIKey != ""
}

// Validate validates the annotation configuration.
func (c *AnnotationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Prompt, validation.Required),
		validation.Field(&c.Delay, validation.Min(time.Duration(0))),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
		validation.Field(&c.Retries, validation.Min(0), validation.Max(10)),
	)
}

// QueryConfig is the default filter. Requests and CLI flags override it
// field by field. It is read-only at runtime; edit the file to change it.
type QueryConfig struct {
	PathContains     string            `yaml:"path_contains"`
	KeywordsContains string            `yaml:"keywords_contains"`
	Used             models.UsedFilter `yaml:"used"`
	Date             models.DateFilter `yaml:"date"`
	Combinator       models.Combinator `yaml:"combinator"`
	Limit            int               `yaml:"limit"`
	OrderBy          string            `yaml:"order_by"`
	Direction        models.Direction  `yaml:"direction"`
}

// Spec converts the configuration into a normalized filter specification.
func (c *QueryConfig) Spec() models.FilterSpec {
	return query.Normalize(models.FilterSpec{
		PathContains:     c.PathContains,
		KeywordsContains: c.KeywordsContains,
		Used:             c.Used,
		Date:             c.Date,
		Combinator:       c.Combinator,
		Limit:            c.Limit,
		OrderBy:          c.OrderBy,
		Direction:        c.Direction,
	})
}

// Validate validates the default query.
func (c *QueryConfig) Validate() error {
	return query.Validate(c.Spec())
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
		Catalog: CatalogConfig{
			Extensions: append([]string(nil), storage.DefaultExtensions...),
		},
		SQLite: SQLiteConfig{
			Path: "./image_catalog.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Annotation: AnnotationConfig{
			Model:   gemini.DefaultModel,
			BaseURL: gemini.DefaultBaseURL,
			Prompt:  gemini.DefaultPrompt,
			Delay:   annotate.DefaultDelay,
			Timeout: annotate.DefaultCallTimeout,
		},
		Query: QueryConfig{
			Used:       models.UsedAny,
			Date:       models.DateFilter{Mode: models.DateNone},
			Combinator: models.And,
			Limit:      10,
			OrderBy:    models.ColumnPath,
			Direction:  models.Asc,
		},
	}
}
