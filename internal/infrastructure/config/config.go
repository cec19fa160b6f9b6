package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Host      HostConfig
	Terminal  TerminalConfig
	Client    ClientConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// HostConfig configures PTY sessions spawned by the server.
type HostConfig struct {
	Shell           string `envconfig:"TERMDECK_SHELL"`
	Cwd             string `envconfig:"TERMDECK_CWD"`
	ScrollbackBytes int    `envconfig:"TERMDECK_SCROLLBACK_BYTES" default:"1048576"`
}

// TerminalConfig holds display options and lifecycle timings.
type TerminalConfig struct {
	FontSize        int           `envconfig:"TERMDECK_FONT_SIZE" default:"14"`
	CursorBlink     bool          `envconfig:"TERMDECK_CURSOR_BLINK" default:"true"`
	Sanitize        bool          `envconfig:"TERMDECK_SANITIZE" default:"false"`
	Renderer        string        `envconfig:"TERMDECK_RENDERER" default:"auto"`
	QuietPeriod     time.Duration `envconfig:"TERMDECK_QUIET_PERIOD" default:"500ms"`
	ResizeDelay     time.Duration `envconfig:"TERMDECK_RESIZE_DELAY" default:"150ms"`
	ReconnectWindow time.Duration `envconfig:"TERMDECK_RECONNECT_WINDOW" default:"100ms"`
	HealthInterval  time.Duration `envconfig:"TERMDECK_HEALTH_INTERVAL" default:"30s"`
	HealthInitial   time.Duration `envconfig:"TERMDECK_HEALTH_INITIAL" default:"1s"`
}

// ClientConfig configures the display client.
type ClientConfig struct {
	Addr     string `envconfig:"TERMDECK_ADDR" default:"http://127.0.0.1:8000"`
	Slots    string `envconfig:"TERMDECK_SLOTS"`
	Settings string `envconfig:"TERMDECK_SETTINGS"`
	LogFile  string `envconfig:"TERMDECK_LOG_FILE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		Host: HostConfig{
			ScrollbackBytes: 1 << 20,
		},
		Terminal: TerminalConfig{
			FontSize:        14,
			CursorBlink:     true,
			Renderer:        "auto",
			QuietPeriod:     500 * time.Millisecond,
			ResizeDelay:     150 * time.Millisecond,
			ReconnectWindow: 100 * time.Millisecond,
			HealthInterval:  30 * time.Second,
			HealthInitial:   time.Second,
		},
		Client: ClientConfig{
			Addr: "http://127.0.0.1:8000",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// Settings builds the live terminal settings from the environment.
func (c *Config) Settings() terminal.Settings {
	return terminal.Settings{
		Shell:          c.Host.Shell,
		Cwd:            c.Host.Cwd,
		FontSize:       c.Terminal.FontSize,
		CursorBlink:    c.Terminal.CursorBlink,
		SanitizeOutput: c.Terminal.Sanitize,
		Renderer:       c.Terminal.Renderer,
	}
}

// Timings builds controller timings. Unset values keep their defaults.
func (t TerminalConfig) Timings() terminal.Timings {
	timings := terminal.DefaultTimings()
	timings.QuietPeriod = t.QuietPeriod
	timings.ResizeDelay = t.ResizeDelay
	timings.ReconnectWindow = t.ReconnectWindow
	timings.HealthInterval = t.HealthInterval
	timings.HealthInitialDelay = t.HealthInitial
	return timings
}
