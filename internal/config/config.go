// Package config handles configuration loading for macrocal.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// EnvPrefix prefixes every environment override, e.g. MACROCAL_API_BASE_URL.
const EnvPrefix = "MACROCAL"

// Config represents the complete application configuration. It is loaded
// once and passed by value or pointer; nothing mutates it afterwards.
type Config struct {
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Retry   RetryConfig   `mapstructure:"retry"   yaml:"retry"`
	Refresh RefreshConfig `mapstructure:"refresh" yaml:"refresh"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// APIConfig describes the upstream calendar service.
type APIConfig struct {
	BaseURL       string            `mapstructure:"base_url"       yaml:"base_url"` // e.g., "http://127.0.0.1:5000/api"
	Timeout       time.Duration     `mapstructure:"timeout"        yaml:"timeout"`
	StatusTimeout time.Duration     `mapstructure:"status_timeout" yaml:"status_timeout"` // launch-time server check
	Headers       map[string]string `mapstructure:"headers"        yaml:"headers"`
	UserAgent     string            `mapstructure:"user_agent"     yaml:"user_agent"`
	RateLimit     float64           `mapstructure:"rate_limit"     yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst     int               `mapstructure:"rate_burst"     yaml:"rate_burst"`

	// ConnectivityCheck dials the service host before calls and fails them
	// fast while it is unreachable. The verdict is reused for ConnectivityTTL.
	ConnectivityCheck bool          `mapstructure:"connectivity_check" yaml:"connectivity_check"`
	ConnectivityTTL   time.Duration `mapstructure:"connectivity_ttl"   yaml:"connectivity_ttl"`
}

// RetryConfig applies to user-triggered refreshes only.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
	Delay    time.Duration `mapstructure:"delay"    yaml:"delay"`
}

// RefreshConfig holds page refresh timing.
type RefreshConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"       yaml:"debounce"`
	StaleAfter    time.Duration `mapstructure:"stale_after"    yaml:"stale_after"`
	ClockInterval time.Duration `mapstructure:"clock_interval" yaml:"clock_interval"`
}

// StorageConfig selects the key-value backend for filters and snapshots.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"  yaml:"backend"` // "file", "memory", "redis", "postgres"
	Path     string         `mapstructure:"path"     yaml:"path"`    // directory for the file backend
	Redis    RedisConfig    `mapstructure:"redis"    yaml:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Prefix   string `mapstructure:"prefix"   yaml:"prefix"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"   yaml:"dsn"`
	Table string `mapstructure:"table" yaml:"table"`
}

// ServerConfig holds the local view server settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
	File   string `mapstructure:"file"   yaml:"file"`
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	Locale string `mapstructure:"locale" yaml:"locale"` // BCP 47 tag used to order country names
}

// Storage backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.macrocal/config.yaml (home directory)
//  3. /etc/macrocal/config.yaml (system)
//
// Environment variables override config file values.
// Format: MACROCAL_<SECTION>_<KEY>, e.g., MACROCAL_API_BASE_URL
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".macrocal"))
	v.AddConfigPath("/etc/macrocal")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// Default returns the built-in defaults with no file or environment input.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Upstream service
	v.SetDefault("api.base_url", "http://127.0.0.1:5000/api")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.status_timeout", 5*time.Second)
	v.SetDefault("api.headers", map[string]string{})
	v.SetDefault("api.user_agent", "macrocal/1.0")
	v.SetDefault("api.rate_limit", 0.0)
	v.SetDefault("api.rate_burst", 1)
	v.SetDefault("api.connectivity_check", true)
	v.SetDefault("api.connectivity_ttl", 10*time.Second)

	// Manual refresh retries
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", time.Second)

	// Refresh timing
	v.SetDefault("refresh.debounce", time.Second)
	v.SetDefault("refresh.stale_after", 5*time.Minute)
	v.SetDefault("refresh.clock_interval", time.Second)

	// Storage
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.path", "~/.macrocal/data")
	v.SetDefault("storage.redis.addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "macrocal:")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "macrocal_kv")

	// View server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	// Display
	v.SetDefault("display.locale", "zh")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if pw := os.Getenv("MACROCAL_STORAGE_REDIS_PASSWORD"); pw != "" {
		cfg.Storage.Redis.Password = pw
	}
	if dsn := os.Getenv("MACROCAL_STORAGE_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.Postgres.DSN = dsn
	}
}

// Validate checks the values the rest of the program relies on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file backend")
		}
	case BackendMemory:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if _, err := language.Parse(c.Display.Locale); err != nil {
		return fmt.Errorf("invalid display.locale %q: %w", c.Display.Locale, err)
	}
	return nil
}

// ServerAddr returns host:port of the view server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
