// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, incl. DATABASE_URL)
//  2. Config file (quarry.yaml, or an explicit --config path)
//  3. Default values
//
// Top-level keys in the config file are plugin identifiers mapping to that
// plugin's constructor options (e.g. "html:", "pgvector:"), plus the
// cross-cutting keys request_delay, backend, backend_settings,
// enabled_tools, and server.host/server.port.
//
// A missing config file is not an error: the loader logs a warning and
// proceeds with defaults. An invalid file is fatal.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is.
var (
	// ErrInvalidRequestDelay indicates a negative request_delay.
	ErrInvalidRequestDelay = errors.New("invalid request_delay")

	// ErrInvalidServerPort indicates the server port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")

	// ErrInvalidPostgresPort indicates the storage port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid postgres port")

	// ErrMissingBackend indicates no backend key is configured.
	ErrMissingBackend = errors.New("missing backend")
)

// Defaults applied when neither file nor environment provide a value.
const (
	DefaultBackend      = "pgvector"
	DefaultCollection   = "documents"
	DefaultRequestDelay = 1.0
	DefaultServerHost   = "0.0.0.0"
	DefaultServerPort   = 8080
)

// ServerConfig holds the MCP server listen address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Config stores application configuration.
type Config struct {
	// RequestDelay is the pause between outbound fetches, in seconds.
	RequestDelay float64 `mapstructure:"request_delay"`

	// Backend selects the storage backend plugin.
	Backend string `mapstructure:"backend"`

	// BackendSettings carries the backend plugin's constructor options
	// (model, batch_size, embedder, dimensions).
	BackendSettings map[string]any `mapstructure:"backend_settings"`

	// EnabledTools restricts which tool plugins are registered on the MCP
	// server. Nil means all discovered tools.
	EnabledTools []string `mapstructure:"enabled_tools"`

	// Server is the MCP server listen address.
	Server ServerConfig `mapstructure:"server"`

	// Storage connection. Host and port come from VECTOR_DB_HOST and
	// VECTOR_DB_PORT (see storage.go); DATABASE_URL overrides everything.
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// raw holds all settings so plugin sections can be looked up by key.
	raw map[string]any
}

// Load loads configuration. When path is non-empty it must name an existing
// config file; otherwise quarry.yaml is searched in the current directory
// and a missing file falls back to defaults with a warning.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVariables(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("quarry")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			logger.Warn("config file not found, using defaults", "name", "quarry.yaml")
		case path != "" && errors.Is(err, fs.ErrNotExist):
			// An explicit path that does not exist is also non-fatal.
			logger.Warn("config file not found, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		logger.Info("loaded config", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.raw = v.AllSettings()

	// DATABASE_URL has highest priority for the storage connection.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Plugin returns the constructor options for a plugin key ("html",
// "pgvector", ...). Absent sections yield an empty map.
func (c *Config) Plugin(key string) map[string]any {
	if c.raw == nil {
		return map[string]any{}
	}
	section, ok := c.raw[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return section
}

// Validate performs range checks with sentinel errors (fail-fast at load).
func (c *Config) Validate() error {
	if c.RequestDelay < 0 {
		return fmt.Errorf("%w: %v (must be >= 0)", ErrInvalidRequestDelay, c.RequestDelay)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidServerPort, c.Server.Port)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.Backend == "" {
		return ErrMissingBackend
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("request_delay", DefaultRequestDelay)
	v.SetDefault("backend", DefaultBackend)

	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)

	// Local development storage defaults.
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "quarry")
	v.SetDefault("postgres_password", "quarry_dev_password")
	v.SetDefault("postgres_db_name", "quarry")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds the storage connection environment variables.
// The ingestion CLI and the MCP server share one binary, so a single pair
// of host/port variables covers both roles.
func bindEnvVariables(v *viper.Viper) {
	_ = v.BindEnv("postgres_host", "VECTOR_DB_HOST")
	_ = v.BindEnv("postgres_port", "VECTOR_DB_PORT")
	_ = v.BindEnv("postgres_user", "VECTOR_DB_USER")
	_ = v.BindEnv("postgres_password", "VECTOR_DB_PASSWORD")
	_ = v.BindEnv("postgres_db_name", "VECTOR_DB_NAME")
}
