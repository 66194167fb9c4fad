// Package config loads service configuration from an optional YAML file and
// SKYSEARCH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dharmasatrya/skysearch/internal/logger"
)

const (
	envPrefix   = "SKYSEARCH_"
	envPath     = "SKYSEARCH_CONFIG"
	defaultPath = "config.yaml"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	Search   SearchConfig   `koanf:"search"`
	Cache    CacheConfig    `koanf:"cache"`
	Redis    RedisConfig    `koanf:"redis"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Session  SessionConfig  `koanf:"session"`
	Log      logger.Config  `koanf:"log"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type ProviderConfig struct {
	Name        string          `koanf:"name"`
	BaseURL     string          `koanf:"base_url"`
	APIKey      string          `koanf:"api_key"` // supports ${VAR} substitution
	Timeout     time.Duration   `koanf:"timeout"`
	MaxAttempts int             `koanf:"max_attempts"`
	RetryDelay  time.Duration   `koanf:"retry_delay"`
	ResultLimit int             `koanf:"result_limit"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

type SearchConfig struct {
	AlternateRadius int `koanf:"alternate_radius"`
	MaxConcurrency  int `koanf:"max_concurrency"` // 0 is unbounded
}

type CacheConfig struct {
	Backend           string        `koanf:"backend"`
	FreshTTL          time.Duration `koanf:"fresh_ttl"`
	FallbackTTL       time.Duration `koanf:"fallback_ttl"`
	ResultRetention   time.Duration `koanf:"result_retention"`
	HistoryLimit      int           `koanf:"history_limit"`
	SnapshotRetention time.Duration `koanf:"snapshot_retention"`
	CleanupInterval   time.Duration `koanf:"cleanup_interval"`
}

type RedisConfig struct {
	Host      string `koanf:"host"`
	Port      string `koanf:"port"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	Namespace string `koanf:"namespace"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type SessionConfig struct {
	MaxSessions int `koanf:"max_sessions"`
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.shutdown_timeout": 10 * time.Second,

	"provider.name":             "kiwi",
	"provider.base_url":         "https://api.tequila.kiwi.com",
	"provider.api_key":          "",
	"provider.timeout":          30 * time.Second,
	"provider.max_attempts":     3,
	"provider.retry_delay":      time.Second,
	"provider.result_limit":     50,
	"provider.rate_limit.rps":   10.0,
	"provider.rate_limit.burst": 20,

	"search.alternate_radius": 3,
	"search.max_concurrency":  0,

	"cache.backend":            BackendMemory,
	"cache.fresh_ttl":          15 * time.Minute,
	"cache.fallback_ttl":       24 * time.Hour,
	"cache.result_retention":   7 * 24 * time.Hour,
	"cache.history_limit":      50,
	"cache.snapshot_retention": 30 * 24 * time.Hour,
	"cache.cleanup_interval":   10 * time.Minute,

	"redis.host":      "localhost",
	"redis.port":      "6379",
	"redis.password":  "",
	"redis.db":        0,
	"redis.namespace": "skysearch:",

	"sqlite.path": "data/skysearch.db",

	"session.max_sessions": 1000,

	"log.level":            "info",
	"log.format":           "json",
	"log.output":           "console",
	"log.file.filename":    "logs/skysearch.log",
	"log.file.max_size":    100,
	"log.file.max_age":     30,
	"log.file.max_backups": 10,
	"log.file.compress":    true,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the file named by SKYSEARCH_CONFIG (config.yaml by default),
// then applies environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	path := os.Getenv(envPath)
	if path == "" {
		path = defaultPath
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// SKYSEARCH_CACHE__FRESH_TTL -> cache.fresh_ttl
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Provider.APIKey = substituteEnvVars(cfg.Provider.APIKey)
	cfg.Redis.Password = substituteEnvVars(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("invalid cache backend %q, must be one of: memory, redis, sqlite", c.Cache.Backend)
	}
	if c.Cache.Backend == BackendSQLite && c.SQLite.Path == "" {
		return errors.New("sqlite.path is required for the sqlite cache backend")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Provider.BaseURL == "" {
		return errors.New("provider.base_url is required")
	}
	if c.Provider.MaxAttempts < 1 {
		return errors.New("provider.max_attempts must be at least 1")
	}
	if c.Search.AlternateRadius < 0 {
		return errors.New("search.alternate_radius must not be negative")
	}
	if c.Cache.FreshTTL <= 0 || c.Cache.FallbackTTL < c.Cache.FreshTTL {
		return errors.New("cache.fallback_ttl must be at least cache.fresh_ttl, both positive")
	}
	if c.Session.MaxSessions <= 0 {
		return errors.New("session.max_sessions must be positive")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}
