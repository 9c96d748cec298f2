package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Store     StoreConfig       `yaml:"store"`
	Capture   CaptureConfig     `yaml:"capture"`
	Playback  PlaybackConfig    `yaml:"playback"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Capture.Validate(); err != nil {
		return err
	}
	if err := c.Playback.Validate(); err != nil {
		return err
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

// WorkspaceConfig holds the path to the workspace being recorded.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
	// AutoStart begins a recording session on startup instead of
	// waiting for the API.
	AutoStart bool `yaml:"auto_start"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
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

// StoreConfig tunes the timeline store.
//
// Durability controls when an append is durable:
//   - "sync" (default): every append commits before returning.
//   - "buffered": appends are acknowledged after an in-memory enqueue and
//     committed in batches every FlushInterval; the tail of the log may be
//     lost on crash.
type StoreConfig struct {
	Durability      string        `yaml:"durability"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxContentBytes int           `yaml:"max_content_bytes"`
	MaxSessionBytes int64         `yaml:"max_session_bytes"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Durability == "" {
		c.Durability = "sync"
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Durability, validation.Required, validation.In("sync", "buffered")),
		validation.Field(&c.MaxContentBytes, validation.Min(0)),
		validation.Field(&c.MaxSessionBytes, validation.Min(int64(0))),
	)
}

// CaptureConfig is the checkpoint-interval policy: a full checkpoint
// every CheckpointEvery changes per path, or whenever
// CheckpointInterval has elapsed since the path's last checkpoint.
type CaptureConfig struct {
	CheckpointEvery    int           `yaml:"checkpoint_every"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// Validate validates the capture configuration.
func (c *CaptureConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CheckpointEvery, validation.Min(0)),
	)
}

// PlaybackConfig tunes playback schedulers.
//
// SeekPolicy makes the handling of out-of-bounds seek targets explicit:
// "clamp" moves the target to the nearest session bound, "reject" fails
// the call.
type PlaybackConfig struct {
	Quantum    time.Duration `yaml:"quantum"`
	EpsilonMS  int64         `yaml:"epsilon_ms"`
	SeekPolicy string        `yaml:"seek_policy"`
}

// Validate validates the playback configuration.
func (c *PlaybackConfig) Validate() error {
	if c.SeekPolicy == "" {
		c.SeekPolicy = "clamp"
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.SeekPolicy, validation.Required, validation.In("clamp", "reject")),
		validation.Field(&c.EpsilonMS, validation.Min(int64(0))),
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
	// Normalise empty mode to "disabled" for backward compatibility.
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
		Workspace: WorkspaceConfig{
			Root:      "./workspace",
			AutoStart: true,
		},
		SQLite: SQLiteConfig{
			Path: "./codetape.db",
		},
		Store: StoreConfig{
			Durability:      "sync",
			FlushInterval:   500 * time.Millisecond,
			MaxContentBytes: 100_000,
		},
		Capture: CaptureConfig{
			CheckpointEvery:    20,
			CheckpointInterval: 5 * time.Minute,
		},
		Playback: PlaybackConfig{
			Quantum:    50 * time.Millisecond,
			EpsilonMS:  2000,
			SeekPolicy: "clamp",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
