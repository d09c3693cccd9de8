package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Storage   StorageConfig
	Arranger  ArrangerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8010"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// AppConfig describes how to reach the external arranging app.
// When Command is set the app is spawned and spoken to over stdio,
// otherwise URL is dialed as a WebSocket.
type AppConfig struct {
	Name           string        `envconfig:"APP_NAME" default:"window_arranger"`
	URL            string        `envconfig:"APP_URL" default:"ws://127.0.0.1:8011/arranger"`
	Command        string        `envconfig:"APP_COMMAND"`
	RequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"5s"`
}

// StorageConfig holds the durable key-value store configuration.
type StorageConfig struct {
	Path          string `envconfig:"STORAGE_PATH"`
	CompressAbove int    `envconfig:"STORAGE_COMPRESS_ABOVE" default:"4096"`
}

// ArrangerConfig holds orchestrator timing and startup behavior.
type ArrangerConfig struct {
	WindowCreatedDelay time.Duration `envconfig:"WINDOW_CREATED_DELAY" default:"40s"`
	BackupInterval     time.Duration `envconfig:"BACKUP_INTERVAL" default:"5m"`
	Autostart          bool          `envconfig:"AUTOSTART" default:"true"`
	SettingsFile       string        `envconfig:"SETTINGS_FILE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	Output      string `envconfig:"LOG_OUTPUT" default:"stderr"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath()
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

// DefaultStoragePath returns the state file location under the user's
// state directory.
func DefaultStoragePath() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "window-arranger", "memory.db")
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8010",
			Host: "127.0.0.1",
		},
		App: AppConfig{
			Name:           "window_arranger",
			URL:            "ws://127.0.0.1:8011/arranger",
			RequestTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Path:          DefaultStoragePath(),
			CompressAbove: 4096,
		},
		Arranger: ArrangerConfig{
			WindowCreatedDelay: 40 * time.Second,
			BackupInterval:     5 * time.Minute,
			Autostart:          true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      "stderr",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
