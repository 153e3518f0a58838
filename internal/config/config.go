// Package config provides configuration management for castarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort           = 8080
	defaultServerTimeout        = 30 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultMaxOpenConns         = 25
	defaultMaxIdleConns         = 10
	defaultProgressionInterval  = 5 * time.Second
	defaultViewerGracePeriod    = 45 * time.Second
	defaultViewerIdleTimeout    = 60 * time.Second
	defaultMaxConcurrentStreams = 10
	defaultSettleDelay          = 300 * time.Millisecond
	defaultEPGHorizon           = 24 * time.Hour
	defaultSessionRetention     = 30 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	Runtime     RuntimeConfig     `mapstructure:"runtime"`
	EPG         EPGConfig         `mapstructure:"epg"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// DataDir is the root for all channel output directories.
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // empty = look up "ffmpeg" on PATH
	ProbePath  string `mapstructure:"probe_path"`  // empty = look up "ffprobe" on PATH
	HWAccel    string `mapstructure:"hwaccel"`     // none, nvenc, qsv, videotoolbox
}

// RuntimeConfig holds channel runtime configuration.
type RuntimeConfig struct {
	// ProgressionInterval is the tick period of the per-channel progression loop.
	ProgressionInterval time.Duration `mapstructure:"progression_interval"`
	// ViewerDisconnectGrace is how long after the last viewer leaves before
	// encoding is paused. A reconnect within the window cancels the pause.
	ViewerDisconnectGrace time.Duration `mapstructure:"viewer_disconnect_grace"`
	// ViewerSessionIdleTimeout expires a viewer session with no requests.
	ViewerSessionIdleTimeout time.Duration `mapstructure:"viewer_session_idle_timeout"`
	// MaxConcurrentStreams caps the number of simultaneously streaming channels.
	MaxConcurrentStreams int `mapstructure:"max_concurrent_streams"`
	// IncludeBumpers is the process-wide default; channels can override.
	IncludeBumpers bool `mapstructure:"include_bumpers"`
	// SettleDelay is the pause between stopping a stale encoder and starting
	// a replacement for the same channel.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// EPGConfig holds program guide configuration.
type EPGConfig struct {
	// Horizon is how far ahead generated program listings extend.
	Horizon time.Duration `mapstructure:"horizon"`
}

// MaintenanceConfig holds the housekeeping schedule.
type MaintenanceConfig struct {
	// Cron is a standard 5-field cron expression for the nightly maintenance run.
	Cron string `mapstructure:"cron"`
	// SessionRetention is how long ended playback sessions are kept.
	SessionRetention time.Duration `mapstructure:"session_retention"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with CASTARR_, using underscores for nesting.
// Example: CASTARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/castarr")
		v.AddConfigPath("$HOME/.castarr")
	}

	v.SetEnvPrefix("CASTARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "castarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel", "none")

	v.SetDefault("runtime.progression_interval", defaultProgressionInterval)
	v.SetDefault("runtime.viewer_disconnect_grace", defaultViewerGracePeriod)
	v.SetDefault("runtime.viewer_session_idle_timeout", defaultViewerIdleTimeout)
	v.SetDefault("runtime.max_concurrent_streams", defaultMaxConcurrentStreams)
	v.SetDefault("runtime.include_bumpers", true)
	v.SetDefault("runtime.settle_delay", defaultSettleDelay)

	v.SetDefault("epg.horizon", defaultEPGHorizon)

	v.SetDefault("maintenance.cron", "0 3 * * *")
	v.SetDefault("maintenance.session_retention", defaultSessionRetention)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validAccels := map[string]bool{"none": true, "nvenc": true, "qsv": true, "videotoolbox": true}
	if !validAccels[c.FFmpeg.HWAccel] {
		return fmt.Errorf("ffmpeg.hwaccel must be one of: none, nvenc, qsv, videotoolbox")
	}

	if c.Runtime.MaxConcurrentStreams < 1 {
		return fmt.Errorf("runtime.max_concurrent_streams must be at least 1")
	}
	if c.Runtime.ProgressionInterval < time.Second {
		return fmt.Errorf("runtime.progression_interval must be at least 1s")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ChannelDir returns the output directory for a channel slug.
func (c *StorageConfig) ChannelDir(slug string) string {
	return filepath.Join(c.DataDir, "channels", slug)
}
