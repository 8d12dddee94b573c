// Package config provides configuration management for loopcast using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "LOOPCAST"

// DefaultEndpointTemplate is the YouTube primary RTMP ingest. {key} is
// replaced with the session's stream key.
const DefaultEndpointTemplate = "rtmp://a.rtmp.youtube.com/live2/{key}"

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultMaxRetries      = 5
	defaultRetryDelay      = 3 * time.Second
	defaultBackoffBase     = 2 * time.Second
	defaultBackoffMax      = 60 * time.Second
	defaultLogRate         = 20
	defaultLogBurst        = 50
	defaultKillGrace       = 3 * time.Second
	defaultSyncInterval    = time.Minute
	defaultLookahead       = 5 * time.Minute
	defaultRetention       = 30 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StreamingConfig controls session supervision.
type StreamingConfig struct {
	// EndpointTemplate is the ingest URL; {key} is substituted with the
	// stream key verbatim. A template without {key} has the key appended.
	EndpointTemplate string   `mapstructure:"endpoint_template"`
	MaxRetries       int      `mapstructure:"max_retries"`
	RetryDelay       Duration `mapstructure:"retry_delay"`  // fixed delay for unclassified failures
	BackoffBase      Duration `mapstructure:"backoff_base"` // first delay for transient network failures
	BackoffMax       Duration `mapstructure:"backoff_max"`
	ShutdownTimeout  Duration `mapstructure:"shutdown_timeout"`
	LogRate          float64  `mapstructure:"log_rate"` // stream-log notifications per second per session
	LogBurst         int      `mapstructure:"log_burst"`
	MediaDir         string   `mapstructure:"media_dir"`
}

// FFmpegConfig holds FFmpeg binary and encoding profile configuration.
type FFmpegConfig struct {
	BinaryPath   string   `mapstructure:"binary_path"` // empty = auto-detect
	VideoBitrate string   `mapstructure:"video_bitrate"`
	Preset       string   `mapstructure:"preset"`
	Codec        string   `mapstructure:"codec"`
	Format       string   `mapstructure:"format"`
	LogLevel     string   `mapstructure:"log_level"`
	StderrLogDir string   `mapstructure:"stderr_log_dir"` // empty = no per-session stderr files
	KillGrace    Duration `mapstructure:"kill_grace"`
}

// SchedulerConfig controls the stream definition planner.
type SchedulerConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	SyncInterval Duration `mapstructure:"sync_interval"`
	// Lookahead is how far ahead recurring occurrences are handed to the
	// stream manager.
	Lookahead Duration `mapstructure:"lookahead"`
	// HistoryRetention prunes session history older than this. Zero keeps
	// everything.
	HistoryRetention Duration `mapstructure:"history_retention"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with LOOPCAST_ and use underscores for nesting.
// Example: LOOPCAST_STREAMING_MAX_RETRIES=3.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return decode(v)
}

// Watch loads the configuration and invokes fn with a freshly validated
// Config every time the backing file changes. Invalid edits are reported
// through onErr and otherwise ignored. Watching requires a config file; when
// none is found Watch returns the loaded config and does not watch.
func Watch(configPath string, fn func(*Config), onErr func(error)) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return decode(v)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reloading %s: %w", e.Name, err))
			}
			return
		}
		fn(next)
	})
	v.WatchConfig()

	return cfg, nil
}

// Defaults returns the built-in configuration, ignoring config files and
// the environment.
func Defaults() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	return decode(v)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/loopcast")
		v.AddConfigPath("$HOME/.loopcast")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", 0) // SSE streams are long-lived
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "loopcast.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("streaming.endpoint_template", DefaultEndpointTemplate)
	v.SetDefault("streaming.max_retries", defaultMaxRetries)
	v.SetDefault("streaming.retry_delay", defaultRetryDelay.String())
	v.SetDefault("streaming.backoff_base", defaultBackoffBase.String())
	v.SetDefault("streaming.backoff_max", defaultBackoffMax.String())
	v.SetDefault("streaming.shutdown_timeout", defaultShutdownTimeout.String())
	v.SetDefault("streaming.log_rate", defaultLogRate)
	v.SetDefault("streaming.log_burst", defaultLogBurst)
	v.SetDefault("streaming.media_dir", ".")

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.video_bitrate", "2000k")
	v.SetDefault("ffmpeg.preset", "veryfast")
	v.SetDefault("ffmpeg.codec", "copy")
	v.SetDefault("ffmpeg.format", "flv")
	v.SetDefault("ffmpeg.log_level", "info")
	v.SetDefault("ffmpeg.stderr_log_dir", "")
	v.SetDefault("ffmpeg.kill_grace", defaultKillGrace.String())

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sync_interval", defaultSyncInterval.String())
	v.SetDefault("scheduler.lookahead", defaultLookahead.String())
	v.SetDefault("scheduler.history_retention", defaultRetention.String())
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

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Streaming.EndpointTemplate == "" {
		return fmt.Errorf("streaming.endpoint_template is required")
	}
	if c.Streaming.MaxRetries < 0 {
		return fmt.Errorf("streaming.max_retries must not be negative")
	}
	if c.Streaming.RetryDelay <= 0 || c.Streaming.BackoffBase <= 0 {
		return fmt.Errorf("streaming.retry_delay and streaming.backoff_base must be positive")
	}
	if c.Streaming.BackoffMax < c.Streaming.BackoffBase {
		return fmt.Errorf("streaming.backoff_max must be at least streaming.backoff_base")
	}
	if c.Streaming.LogRate <= 0 || c.Streaming.LogBurst < 1 {
		return fmt.Errorf("streaming.log_rate must be positive and streaming.log_burst at least 1")
	}

	if c.Scheduler.Enabled && c.Scheduler.SyncInterval < Duration(time.Second) {
		return fmt.Errorf("scheduler.sync_interval must be at least 1s")
	}
	if c.Scheduler.Lookahead < c.Scheduler.SyncInterval {
		return fmt.Errorf("scheduler.lookahead must be at least scheduler.sync_interval")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
