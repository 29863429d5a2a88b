// Package application assembles the import pipeline from configuration.
// Both the HTTP server and the salesctl command build on it.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/salesimport/internal/config"
	"github.com/JonMunkholm/salesimport/internal/core"
	"github.com/JonMunkholm/salesimport/internal/database"
	"github.com/JonMunkholm/salesimport/internal/metrics"
	"github.com/JonMunkholm/salesimport/internal/platform"
	"github.com/JonMunkholm/salesimport/internal/queue"
	"github.com/JonMunkholm/salesimport/internal/storage"
)

// App holds the long-lived components of one process.
type App struct {
	Config *config.Config
	DB     *pgxpool.Pool

	Platforms *database.PlatformRepo
	Runs      *database.RunRepo
	Loader    *core.BulkLoader
	Sources   storage.Store
	Importer  *core.Importer
	Runner    *core.JobRunner
	Limiter   *queue.RunLimiter

	// Redis and Broker are nil when the queue is disabled.
	Redis  *redis.Client
	Broker *queue.RedisStreams
}

// New connects to PostgreSQL (and Redis when the queue is enabled),
// applies migrations if configured and wires the pipeline. Close releases
// the connections.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(cfg.Database.URL); err != nil {
			return nil, err
		}
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        pool,
		Platforms: database.NewPlatformRepo(pool, cfg.Import.DefaultBatchSize),
		Runs:      database.NewRunRepo(pool),
		Loader:    core.NewBulkLoader(database.NewStore(pool)),
		Limiter:   queue.NewRunLimiter(cfg.Queue.Workers, 0),
	}

	app.Sources, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open source storage: %w", err)
	}

	app.Importer = app.NewImporter(app.Platforms)
	app.Runner = core.NewJobRunner(app.Importer, app.Sources,
		core.WithMaxAttempts(cfg.Import.MaxAttempts),
		core.WithRetryBackoff(cfg.Import.RetryBackoff),
		core.WithAttemptTimeout(cfg.Import.RunTimeout),
		core.WithRunHistory(app.Runs),
		core.WithJobObserver(metrics.Observer{}),
	)

	if cfg.Queue.Enabled {
		app.Redis, err = queue.Connect(ctx, cfg.Queue)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Broker = queue.NewRedisStreams(app.Redis, cfg.Queue)
	}

	slog.Info("import pipeline ready",
		"storage", cfg.Storage.Backend,
		"queue_enabled", cfg.Queue.Enabled,
		"workers", app.Limiter.MaxConcurrent(),
		"row_error_policy", string(core.ParseRowErrorPolicy(cfg.Import.RowErrorPolicy)),
	)
	return app, nil
}

// NewImporter returns an importer resolving platforms through resolver and
// writing with the app's loader.
func (a *App) NewImporter(resolver platform.Resolver) *core.Importer {
	return core.NewImporter(resolver, a.Loader,
		core.WithRowErrorPolicy(core.ParseRowErrorPolicy(a.Config.Import.RowErrorPolicy)),
		core.WithObserver(metrics.Observer{}),
	)
}

// Checks returns the dependency pings reported by the health endpoint.
func (a *App) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": a.DB.Ping,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
