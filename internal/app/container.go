package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/kapu/pokedex-go/internal/catalog"
	"github.com/kapu/pokedex-go/internal/config"
	"github.com/kapu/pokedex-go/internal/favorites"
	"github.com/kapu/pokedex-go/internal/observe"
	"github.com/kapu/pokedex-go/internal/service/cache"
	"github.com/kapu/pokedex-go/internal/service/pokedex"
	"github.com/kapu/pokedex-go/internal/util"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Container bundles the assembled data layer for a UI shell.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Pokedex *pokedex.Pokedex

	closers []func()
}

// Build assembles the catalog client, the optional Redis record tier, the
// favorites backend and the pokedex facade. Everything opened before a
// failure is closed again in reverse order.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	breaker := util.NewCircuitBreaker("catalog", cfg.Breaker.Threshold, cfg.Breaker.Reset, logger)
	catalogClient := catalog.NewClient(
		cfg.Catalog.BaseURL,
		&http.Client{Timeout: cfg.Catalog.FetchTimeout},
		logger,
		catalog.WithBreaker(breaker),
		catalog.WithMetrics(metrics),
	)

	var redisStore *cache.RedisStore
	if cfg.Redis.Enabled {
		redisStore, err = cache.NewRedisStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		closers = append(closers, func() {
			_ = redisStore.Close()
		})
	}

	storage, closeStorage, err := openFavoritesStorage(ctx, cfg, redisStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open favorites storage: %w", err)
	}
	if closeStorage != nil {
		closers = append(closers, closeStorage)
	}

	favs, err := favorites.Open(ctx, storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}

	opts := pokedex.Options{
		ListTTL:             cfg.Cache.ListTTL,
		RecordTTL:           cfg.Cache.RecordTTL,
		FetchTimeout:        cfg.Catalog.FetchTimeout,
		MaxEntries:          cfg.Cache.MaxEntries,
		PrefetchConcurrency: cfg.Prefetch.Concurrency,
		Metrics:             metrics,
	}
	if redisStore != nil {
		opts.Store = redisStore
	}
	dex := pokedex.New(catalogClient, favs, opts, logger)

	logger.Info("Pokedex assembled",
		zap.String("catalog", catalogClient.BaseURL()),
		zap.String("favorites_backend", cfg.Favorites.Backend),
		zap.Bool("redis_tier", redisStore != nil),
		zap.Int("favorites", favs.Len()),
	)

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Pokedex: dex,
		closers: closers,
	}, nil
}

func openFavoritesStorage(ctx context.Context, cfg *config.Config, redisStore *cache.RedisStore, logger *zap.Logger) (favorites.Storage, func(), error) {
	switch cfg.Favorites.Backend {
	case config.BackendMemory:
		return favorites.NewMemoryStorage(), nil, nil
	case config.BackendFile:
		fs, err := favorites.NewFileStorage(cfg.Favorites.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	case config.BackendRedis:
		if redisStore == nil {
			return nil, nil, fmt.Errorf("redis favorites backend requires the redis store")
		}
		return favorites.NewRedisStorage(redisStore.Client(), logger), nil, nil
	case config.BackendSQLite:
		// A path without an extension is a directory, like the file backend's.
		path := cfg.Favorites.DSN
		if path == "" {
			path = cfg.Favorites.Path
			if filepath.Ext(path) == "" {
				path = filepath.Join(path, "favorites.db")
			}
		}
		db, err := favorites.OpenSQLite(ctx, path, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case config.BackendPostgres:
		db, err := favorites.OpenPostgres(ctx, cfg.Favorites.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown favorites backend %q", cfg.Favorites.Backend)
}

// Close stops the caches first, then releases storage in reverse order.
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Pokedex != nil {
		c.Pokedex.Close()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
