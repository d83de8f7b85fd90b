package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pokeden/internal/api"
	"pokeden/internal/auth"
	"pokeden/internal/config"
	"pokeden/internal/db"
	"pokeden/internal/game"
	"pokeden/internal/metrics"
	"pokeden/internal/species"
	"pokeden/internal/store/memory"
	"pokeden/internal/store/postgres"

	"golang.org/x/time/rate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))

	var store game.Store
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, state is lost on restart")
		store = memory.New()
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.MigrateOnStart {
			applied, err := db.MigratePool(ctx, pool)
			if err != nil {
				logger.Error("migrate failed", "err", err)
				os.Exit(1)
			}
			logger.Info("migrations applied", "count", applied)
		}
		store = postgres.New(pool, logger)
	}

	tiers, err := game.LoadTierTable(cfg.BalanceFile)
	if err != nil {
		logger.Error("load balance file failed", "path", cfg.BalanceFile, "err", err)
		os.Exit(1)
	}

	catalog, closeCache := newCatalog(ctx, cfg, logger)
	defer closeCache()

	collectors := metrics.New()
	gameSvc := game.NewService(store, catalog, logger,
		game.WithTiers(tiers),
		game.WithRecorder(collectors),
	)
	if cfg.SeedItems {
		if err := gameSvc.SeedItems(ctx, game.DefaultItems()); err != nil {
			logger.Error("seed items failed", "err", err)
			os.Exit(1)
		}
	}

	authClient := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseJWTSecret)
	server := api.New(logger, authClient, gameSvc, collectors)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("pokeden api listening", "addr", cfg.Addr, "store", cfg.Store)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// newCatalog wraps the PokeAPI client in a response cache, Redis when
// REDIS_URL is set and in-process otherwise.
func newCatalog(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (species.Catalog, func()) {
	client := species.NewClient(cfg.SpeciesBaseURL, rate.NewLimiter(rate.Limit(cfg.SpeciesRPS), cfg.SpeciesBurst))

	var cache species.Cache = species.NewMemoryCache()
	closeCache := func() {}
	if cfg.RedisURL != "" {
		rc, err := species.NewRedisCacheFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, falling back to memory cache", "err", err)
		} else {
			cache = rc
			closeCache = func() { _ = rc.Close() }
		}
	}
	return species.NewCachedCatalog(client, cache, cfg.SpeciesCacheTTL, logger), closeCache
}
