package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Catalog   CatalogConfig
	Cache     CacheConfig
	Prefetch  PrefetchConfig
	Favorites FavoritesConfig
	Redis     RedisConfig
	Breaker   BreakerConfig
	Logging   LoggingConfig
}

type CatalogConfig struct {
	BaseURL      string        `env:"POKEDEX_CATALOG_BASE_URL" envDefault:"https://pokeapi.co/api/v2"`
	FetchTimeout time.Duration `env:"POKEDEX_FETCH_TIMEOUT" envDefault:"10s"`
}

type CacheConfig struct {
	MaxEntries int           `env:"POKEDEX_CACHE_MAX_ENTRIES" envDefault:"4096"`
	ListTTL    time.Duration `env:"POKEDEX_LIST_TTL" envDefault:"30m"`
	RecordTTL  time.Duration `env:"POKEDEX_RECORD_TTL" envDefault:"0s"`
}

type PrefetchConfig struct {
	Concurrency int `env:"POKEDEX_PREFETCH_CONCURRENCY" envDefault:"16"`
	Count       int `env:"POKEDEX_PREFETCH_COUNT" envDefault:"40"`
}

type FavoritesConfig struct {
	Backend string `env:"POKEDEX_FAVORITES_BACKEND" envDefault:"file"`
	Path    string `env:"POKEDEX_FAVORITES_PATH" envDefault:"data/favorites"`
	DSN     string `env:"POKEDEX_FAVORITES_DSN"`
}

type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type BreakerConfig struct {
	Threshold int           `env:"POKEDEX_BREAKER_THRESHOLD" envDefault:"5"`
	Reset     time.Duration `env:"POKEDEX_BREAKER_RESET" envDefault:"30s"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	File  string `env:"LOG_FILE"`
}

// Favorites backends accepted by POKEDEX_FAVORITES_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Favorites.Backend = strings.ToLower(strings.TrimSpace(cfg.Favorites.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Catalog.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("POKEDEX_CATALOG_BASE_URL must be an absolute URL")
	}
	if c.Catalog.FetchTimeout <= 0 {
		return fmt.Errorf("POKEDEX_FETCH_TIMEOUT must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("POKEDEX_CACHE_MAX_ENTRIES must not be negative")
	}
	if c.Cache.ListTTL < 0 || c.Cache.RecordTTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}
	if c.Prefetch.Concurrency <= 0 {
		return fmt.Errorf("POKEDEX_PREFETCH_CONCURRENCY must be positive")
	}

	switch c.Favorites.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("favorites backend %q requires REDIS_ENABLED", c.Favorites.Backend)
		}
	case BackendSQLite:
		if c.Favorites.Path == "" && c.Favorites.DSN == "" {
			return fmt.Errorf("favorites backend sqlite requires POKEDEX_FAVORITES_PATH or POKEDEX_FAVORITES_DSN")
		}
	case BackendPostgres:
		if c.Favorites.DSN == "" {
			return fmt.Errorf("favorites backend postgres requires POKEDEX_FAVORITES_DSN")
		}
	default:
		return fmt.Errorf("unknown favorites backend %q", c.Favorites.Backend)
	}
	return nil
}

// RedisAddr returns host:port for go-redis.
func (c RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
