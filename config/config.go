// Package config provides configuration management for the application.
//
// Values are layered: built-in defaults, then an optional YAML file with
// ${VAR} / ${VAR:-default} expansion, then a .env file, then environment
// variables. The result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PlaceholderMarker appears in the endpoint URL shipped with the sample
// configuration. An endpoint containing it has not been configured yet.
const PlaceholderMarker = "YOUR_SCRIPT_ID_HERE"

// DefaultEndpointURL is the unconfigured endpoint.
const DefaultEndpointURL = "https://script.google.com/macros/s/" + PlaceholderMarker + "/exec"

// Cache backend names.
const (
	BackendMemory     = "memory"
	BackendFile       = "file"
	BackendSQLite     = "sqlite"
	BackendPostgreSQL = "postgresql"
	BackendMongoDB    = "mongodb"
	BackendRedis      = "redis"
)

// Config holds the application configuration
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Retry    RetryConfig    `yaml:"retry"`
	UI       UIConfig       `yaml:"ui"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LogConfig      `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// EndpointConfig describes the remote inventory endpoint.
type EndpointConfig struct {
	URL string `yaml:"url"`
	// SimulationMode serves every request from the local demo dataset.
	SimulationMode     bool          `yaml:"simulation_mode"`
	SimulationDelayMin time.Duration `yaml:"simulation_delay_min"`
	SimulationDelayMax time.Duration `yaml:"simulation_delay_max"`
}

// IsPlaceholder reports whether the endpoint still carries the sample URL.
func (e EndpointConfig) IsPlaceholder() bool {
	return e.URL == "" || strings.Contains(e.URL, PlaceholderMarker)
}

// CacheConfig holds cache store settings
type CacheConfig struct {
	// Backend is one of memory, file, sqlite, postgresql, mongodb, redis.
	Backend         string        `yaml:"backend"`
	TTL             time.Duration `yaml:"ttl"`
	Dir             string        `yaml:"dir"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// StorageConfig holds connection settings for the durable cache backends.
type StorageConfig struct {
	SQLite     SQLiteStorageConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLStorageConfig `yaml:"postgresql"`
	MongoDB    MongoDBStorageConfig    `yaml:"mongodb"`
	Redis      RedisStorageConfig      `yaml:"redis"`
}

// SQLiteStorageConfig holds SQLite-specific configuration
type SQLiteStorageConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLStorageConfig holds PostgreSQL-specific configuration
type PostgreSQLStorageConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBStorageConfig holds MongoDB-specific configuration
type MongoDBStorageConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// RedisStorageConfig holds Redis-specific configuration
type RedisStorageConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RetryConfig controls the request retry loop.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// UIConfig holds front-end timing settings.
type UIConfig struct {
	AutoRefreshInterval time.Duration `yaml:"auto_refresh_interval"`
}

// HTTPConfig holds HTTP client timeouts.
type HTTPConfig struct {
	Timeout               time.Duration `yaml:"timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// LogConfig holds logger settings
type LogConfig struct {
	// Format is "text", "json" or "" (auto: text on a terminal, JSON otherwise).
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// MetricsConfig holds Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadResult is returned by Load.
type LoadResult struct {
	Config *Config
	// Source names the YAML file that was read, or "" when defaults were used.
	Source string
}

func buildDefaultConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL:                DefaultEndpointURL,
			SimulationMode:     true,
			SimulationDelayMin: 500 * time.Millisecond,
			SimulationDelayMax: 1500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend:         BackendFile,
			TTL:             5 * time.Minute,
			Dir:             ".invtracker/cache",
			CleanupInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			SQLite:     SQLiteStorageConfig{Path: ".invtracker/cache.db"},
			PostgreSQL: PostgreSQLStorageConfig{MaxConns: 10},
			MongoDB:    MongoDBStorageConfig{Database: "invtracker"},
			Redis:      RedisStorageConfig{KeyPrefix: "invtracker:"},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       2 * time.Second,
		},
		UI: UIConfig{
			AutoRefreshInterval: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:               30 * time.Second,
			ResponseHeaderTimeout: 20 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load builds the configuration. path is an optional YAML file; when empty,
// config/config.yaml and config.yaml are tried in order. A .env file in the
// working directory is loaded into the environment without overriding
// variables that are already set.
func Load(path string) (*LoadResult, error) {
	cfg := buildDefaultConfig()

	source, err := loadYAML(cfg, path)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Source: source}, nil
}

func loadYAML(cfg *Config, path string) (string, error) {
	candidates := []string{"config/config.yaml", "config.yaml"}
	explicit := path != ""
	if explicit {
		candidates = []string{path}
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicit {
				continue
			}
			return "", fmt.Errorf("failed to read config file %s: %w", p, err)
		}
		expanded := expandString(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", p, err)
		}
		return p, nil
	}
	return "", nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A variable that is unset
// or empty and has no default is left as written.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			return
		}
		*dst = b
	}
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			return
		}
		*dst = n
	}
	setDuration := func(key string, unit time.Duration, dst *time.Duration) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		d, err := parseDuration(v, unit)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			return
		}
		*dst = d
	}

	setString("INVENTORY_ENDPOINT_URL", &cfg.Endpoint.URL)
	setBool("SIMULATION_MODE", &cfg.Endpoint.SimulationMode)

	setString("CACHE_BACKEND", &cfg.Cache.Backend)
	setDuration("CACHE_TTL", time.Second, &cfg.Cache.TTL)
	setString("CACHE_DIR", &cfg.Cache.Dir)
	setDuration("CACHE_CLEANUP_INTERVAL", time.Second, &cfg.Cache.CleanupInterval)

	setString("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	setString("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	setInt("POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns)
	setString("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	setString("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)
	setString("REDIS_URL", &cfg.Storage.Redis.URL)
	setString("REDIS_KEY_PREFIX", &cfg.Storage.Redis.KeyPrefix)

	setInt("RETRY_ATTEMPTS", &cfg.Retry.MaxAttempts)
	setDuration("RETRY_DELAY", time.Millisecond, &cfg.Retry.Delay)

	setDuration("AUTO_REFRESH_INTERVAL", time.Second, &cfg.UI.AutoRefreshInterval)

	setDuration("HTTP_TIMEOUT", time.Second, &cfg.HTTP.Timeout)
	setDuration("HTTP_RESPONSE_HEADER_TIMEOUT", time.Second, &cfg.HTTP.ResponseHeaderTimeout)

	setString("LOG_FORMAT", &cfg.Logging.Format)
	setString("LOG_LEVEL", &cfg.Logging.Level)
	setBool("METRICS_ENABLED", &cfg.Metrics.Enabled)

	return errors.Join(errs...)
}

// parseDuration accepts a Go duration string ("2s", "5m") or a bare integer
// counted in unit.
func parseDuration(v string, unit time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * unit, nil
	}
	return time.ParseDuration(v)
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendPostgreSQL, BackendMongoDB, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.CleanupInterval <= 0 {
		errs = append(errs, errors.New("cache.cleanup_interval must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, errors.New("retry.delay must not be negative"))
	}
	if c.Endpoint.SimulationDelayMin < 0 || c.Endpoint.SimulationDelayMax < c.Endpoint.SimulationDelayMin {
		errs = append(errs, errors.New("endpoint.simulation_delay_min/max must satisfy 0 <= min <= max"))
	}
	if c.UI.AutoRefreshInterval <= 0 {
		errs = append(errs, errors.New("ui.auto_refresh_interval must be positive"))
	}

	switch c.Cache.Backend {
	case BackendPostgreSQL:
		if c.Storage.PostgreSQL.URL == "" {
			errs = append(errs, errors.New("storage.postgresql.url is required for the postgresql backend"))
		}
	case BackendMongoDB:
		if c.Storage.MongoDB.URL == "" {
			errs = append(errs, errors.New("storage.mongodb.url is required for the mongodb backend"))
		}
	case BackendRedis:
		if c.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("storage.redis.url is required for the redis backend"))
		}
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
