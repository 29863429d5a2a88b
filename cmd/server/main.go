package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/salesimport/internal/application"
	"github.com/JonMunkholm/salesimport/internal/config"
	"github.com/JonMunkholm/salesimport/internal/logging"
	"github.com/JonMunkholm/salesimport/internal/metrics"
	"github.com/JonMunkholm/salesimport/internal/queue"
	"github.com/JonMunkholm/salesimport/internal/web"
)

// drainer is implemented by the worker and the inline scheduler.
type drainer interface {
	Shutdown(ctx context.Context) error
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"queue_enabled", cfg.Queue.Enabled,
		"queue_workers", cfg.Queue.Workers,
		"storage_backend", cfg.Storage.Backend,
	)

	ctx := context.Background()
	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start import pipeline", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Stops intake; running jobs are drained separately on shutdown.
	intakeCtx, stopIntake := context.WithCancel(ctx)
	defer stopIntake()

	var (
		scheduler web.Enqueuer
		jobs      drainer
		workerErr = make(chan error, 1)
	)
	if app.Broker != nil {
		worker := queue.NewWorker(app.Broker, app.Runner, app.Limiter, queue.WorkerConfig{
			ClaimInterval: cfg.Queue.ClaimInterval,
			ClaimMinIdle:  cfg.Queue.ClaimMinIdle,
		}, metrics.JobsInFlight)
		go func() { workerErr <- worker.Run(intakeCtx) }()

		scheduler = queue.NewScheduler(app.Broker)
		jobs = worker
	} else {
		inline := queue.NewInlineScheduler(app.Runner, app.Limiter, metrics.JobsInFlight)
		scheduler = inline
		jobs = inline
	}

	checks := make(map[string]web.HealthCheck)
	for name, check := range app.Checks() {
		checks[name] = check
	}

	server := web.NewServer(cfg, web.Deps{
		Platforms: app.Platforms,
		Uploads:   app.Sources,
		Scheduler: scheduler,
		Runs:      app.Runs,
		Queue:     app.Limiter,
		Checks:    checks,
	})

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigCh:
			slog.Info("shutting down...")
		case err := <-workerErr:
			if err != nil {
				slog.Error("import worker failed", "error", err)
			}
		}

		stopIntake()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for running imports to complete (with timeout)
		status := app.Limiter.Status()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
		}
		if err := jobs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		} else if status.Active > 0 {
			slog.Info("all imports completed")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}
