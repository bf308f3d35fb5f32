// Package app initializes and holds the long-lived services of the
// crawler, acting as the composition root.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/adapter"
	"github.com/mediapulse/newscrawler/internal/cleaner"
	"github.com/mediapulse/newscrawler/internal/clock/system"
	"github.com/mediapulse/newscrawler/internal/config"
	"github.com/mediapulse/newscrawler/internal/fetch"
	iduuid "github.com/mediapulse/newscrawler/internal/id/uuid"
	"github.com/mediapulse/newscrawler/internal/logging"
	"github.com/mediapulse/newscrawler/internal/metrics"
	"github.com/mediapulse/newscrawler/internal/persist"
	"github.com/mediapulse/newscrawler/internal/pipeline"
	pubmemory "github.com/mediapulse/newscrawler/internal/publisher/memory"
	"github.com/mediapulse/newscrawler/internal/publisher/pubsub"
	"github.com/mediapulse/newscrawler/internal/runner"
	"github.com/mediapulse/newscrawler/internal/storage/gcs"
	blobmemory "github.com/mediapulse/newscrawler/internal/storage/memory"
	storememory "github.com/mediapulse/newscrawler/internal/store/memory"
	storepostgres "github.com/mediapulse/newscrawler/internal/store/postgres"
)

// App holds the shared services wired from configuration. It is built
// once at startup and handed to the commands.
type App struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Clock    pipeline.Clock
	Configs  pipeline.ConfigStore
	Tasks    pipeline.TaskStore
	Articles pipeline.ArticleStore
	Runner   *runner.Runner

	closers []func()
}

// New builds the App from the configuration at path, failing fast when
// any backend cannot be reached.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New("newscrawler", cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Clock:  system.New(),
	}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	cacheBackend, err := a.initCache()
	if err != nil {
		a.Close()
		return nil, err
	}
	blobs, err := a.initBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.initPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	cl := cleaner.New(a.Clock, logger)
	persister := persist.New(a.Articles, blobs, publisher, a.Clock, persist.Config{
		Topic:      cfg.PubSub.Topic,
		BlobPrefix: cfg.Storage.Prefix,
	}, logger)

	deps := adapter.Deps{Clock: a.Clock, Logger: logger, CacheBackend: cacheBackend}
	factory := func(src pipeline.SourceConfig) (pipeline.Adapter, error) {
		return adapter.ForConfig(src, deps)
	}

	a.Runner = runner.New(a.Configs, a.Tasks, cl, persister, factory,
		a.Clock, iduuid.NewGenerator(), logger)

	if cfg.Sources.File != "" {
		if err := a.seedSources(ctx, cfg.Sources.File); err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Info("application services initialized",
		zap.String("database", cfg.Database.Provider),
		zap.String("storage", cfg.Storage.Provider),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.Cfg.Database.Provider {
	case "postgres":
		pool, err := storepostgres.NewPool(ctx, storepostgres.PoolConfig{
			DSN:             a.Cfg.Database.DSN,
			MaxConns:        a.Cfg.Database.MaxConns,
			MinConns:        a.Cfg.Database.MinConns,
			MaxConnLifetime: time.Duration(a.Cfg.Database.MaxConnLifetime) * time.Second,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.Articles = storepostgres.NewArticleStore(pool)
		a.Configs = storepostgres.NewConfigStore(pool)
		a.Tasks = storepostgres.NewTaskStore(pool)
	default:
		a.Articles = storememory.NewArticleStore()
		a.Configs = storememory.NewConfigStore()
		a.Tasks = storememory.NewTaskStore()
	}
	return nil
}

func (a *App) initCache() (fetch.Cache, error) {
	if !a.Cfg.Redis.Enabled {
		return nil, nil
	}
	cache := fetch.NewRedisCache(a.Cfg.Redis.Addr, a.Logger)
	if err := cache.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })
	return cache, nil
}

func (a *App) initBlobStore(ctx context.Context) (pipeline.BlobStore, error) {
	switch a.Cfg.Storage.Provider {
	case "gcs":
		store, err := gcs.NewBlobStore(ctx, a.Cfg.Storage.Bucket, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	case "memory":
		return blobmemory.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) initPublisher(ctx context.Context) (pipeline.Publisher, error) {
	if !a.Cfg.PubSub.Enabled {
		return nil, nil
	}
	if a.Cfg.PubSub.ProjectID == "memory" {
		return pubmemory.New(), nil
	}
	pub, err := pubsub.New(ctx, a.Cfg.PubSub.ProjectID)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = pub.Close() })
	return pub, nil
}

// seedSources loads source definitions from the configured file into
// the config store, preserving the last run time of known sources.
func (a *App) seedSources(ctx context.Context, path string) error {
	sources, err := config.LoadSources(path)
	if err != nil {
		return err
	}
	for _, src := range sources {
		if existing, err := a.Configs.Get(ctx, src.ID); err == nil {
			src.LastRunAt = existing.LastRunAt
		}
		if err := a.Configs.Save(ctx, src); err != nil {
			return fmt.Errorf("seed source %s: %w", src.ID, err)
		}
	}
	a.Logger.Info("sources seeded", zap.Int("count", len(sources)), zap.String("file", path))
	return nil
}

// Close shuts services down in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
