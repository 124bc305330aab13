// Package config loads runtime settings from defaults, an optional config
// file and LOOKUP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"company-lookup/internal/backend"
	"company-lookup/internal/cache"
	"company-lookup/internal/history"
	"company-lookup/internal/logs"
	"company-lookup/internal/store"
)

const EnvPrefix = "LOOKUP"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	History HistoryConfig `mapstructure:"history"`
	Backend BackendConfig `mapstructure:"backend"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig selects the durable store. Origin partitions a shared
// SQLite file the way browser storage is partitioned per site.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	Path       string `mapstructure:"path"`
	Origin     string `mapstructure:"origin"`
	QuotaBytes int64  `mapstructure:"quota_bytes"`
}

type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 0 disables the sweeper
}

type HistoryConfig struct {
	MaxItems int `mapstructure:"max_items"`
}

type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Buffer int    `mapstructure:"buffer"`
}

// Manager wraps a viper instance configured for this application.
type Manager struct {
	viper *viper.Viper
}

// NewManager creates a Manager. A non-empty configFile is read instead of
// searching the working directory for config.{yaml,toml,json}.
func NewManager(configFile string) *Manager {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &Manager{viper: v}
}

func setDefaults(v *viper.Viper) {
	be := backend.DefaultConfig()
	lg := logs.DefaultConfig()

	v.SetDefault("server.addr", ":8090")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "company-lookup.db")
	v.SetDefault("storage.origin", "default")
	v.SetDefault("storage.quota_bytes", 5<<20)

	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.sweep_interval", time.Duration(0))

	v.SetDefault("history.max_items", history.DefaultMaxItems)

	v.SetDefault("backend.base_url", be.BaseURL)
	v.SetDefault("backend.timeout", be.Timeout)
	v.SetDefault("backend.retry.max_retries", be.Retry.MaxRetries)
	v.SetDefault("backend.retry.base_backoff", be.Retry.BaseBackoff)
	v.SetDefault("backend.retry.max_backoff", be.Retry.MaxBackoff)

	v.SetDefault("logging.level", lg.Level)
	v.SetDefault("logging.format", lg.Format)
	v.SetDefault("logging.buffer", lg.BufferSize)
}

// Load reads the config file, if any, and returns the merged settings.
func (m *Manager) Load() (*Config, error) {
	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", m.viper.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := m.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFileUsed returns the file Load read, or "".
func (m *Manager) ConfigFileUsed() string {
	return m.viper.ConfigFileUsed()
}

// Load is shorthand for NewManager(configFile).Load().
func Load(configFile string) (*Config, error) {
	return NewManager(configFile).Load()
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("config: storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Storage.QuotaBytes < 0 {
		return errors.New("config: storage.quota_bytes must not be negative")
	}
	if c.Cache.TTL < 0 || c.Cache.SweepInterval < 0 {
		return errors.New("config: cache durations must not be negative")
	}
	if c.Backend.BaseURL == "" {
		return errors.New("config: backend.base_url is required")
	}
	if c.Backend.Retry.MaxRetries < 0 {
		return errors.New("config: backend.retry.max_retries must not be negative")
	}
	return nil
}

// BackendClient returns the backend client settings.
func (c *Config) BackendClient() backend.Config {
	cfg := backend.DefaultConfig()
	cfg.BaseURL = c.Backend.BaseURL
	cfg.Timeout = c.Backend.Timeout
	cfg.Retry.MaxRetries = c.Backend.Retry.MaxRetries
	cfg.Retry.BaseBackoff = c.Backend.Retry.BaseBackoff
	cfg.Retry.MaxBackoff = c.Backend.Retry.MaxBackoff
	return cfg
}

// Logs returns the logger settings.
func (c *Config) Logs() logs.Config {
	return logs.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		BufferSize: c.Logging.Buffer,
	}
}

// SQLite returns the SQLite store settings.
func (c *Config) SQLite() store.SQLiteConfig {
	return store.SQLiteConfig{
		Path:       c.Storage.Path,
		Origin:     c.Storage.Origin,
		QuotaBytes: c.Storage.QuotaBytes,
	}
}
