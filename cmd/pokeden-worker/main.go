package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pokeden/internal/config"
	"pokeden/internal/db"
	"pokeden/internal/game"
	"pokeden/internal/jobs"
	"pokeden/internal/metrics"
	"pokeden/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: 1})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	collectors := metrics.New()
	// The worker never looks species up, so it runs without a catalog.
	svc := game.NewService(postgres.New(pool, logger), nil, logger, game.WithRecorder(collectors))

	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.Add(jobs.PruneIdempotencyKeys(cfg.PruneSchedule, svc, cfg.Retention, collectors)); err != nil {
		logger.Error("schedule failed", "err", err)
		os.Exit(1)
	}

	if cfg.RunOnce {
		if err := scheduler.RunOnce(ctx); err != nil {
			logger.Error("run-once failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           collectors.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}
	logger.Info("worker started", "prune_schedule", cfg.PruneSchedule, "retention", cfg.Retention.String())
	<-ctx.Done()
	scheduler.Stop()
	logger.Info("worker shutdown")
}
