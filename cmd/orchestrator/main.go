package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/grocer-orchestrator/internal/api"
	"github.com/af-corp/grocer-orchestrator/internal/auth"
	"github.com/af-corp/grocer-orchestrator/internal/cache"
	"github.com/af-corp/grocer-orchestrator/internal/config"
	"github.com/af-corp/grocer-orchestrator/internal/orchestrator"
	"github.com/af-corp/grocer-orchestrator/internal/policy"
	"github.com/af-corp/grocer-orchestrator/internal/ratelimit"
	"github.com/af-corp/grocer-orchestrator/internal/router"
	"github.com/af-corp/grocer-orchestrator/internal/store"
	"github.com/af-corp/grocer-orchestrator/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()
	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (stored routes and usage rows unavailable)", "error", err)
	} else {
		logger.Info("database connected")
	}

	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (limits, key cache and redis response cache disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	registry := router.BuildFromConfig(loader.Providers())
	health := router.NewHealthTracker(
		cfg.Orchestrator.CircuitBreaker.FailureThreshold,
		cfg.Orchestrator.CircuitBreaker.RecoveryProbeInterval,
	)
	logger.Info("providers registered", "providers", registry.Names())

	evaluator := policy.NewEvaluator(func() config.PolicyConfig { return loader.Config().Policy })
	if cfg.Policy.Enabled {
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to load policies", "error", err)
			os.Exit(1)
		}
	}

	loader.OnReload(func() {
		registry.Replace(router.BuildFromConfig(loader.Providers()))
		logger.Info("provider registry reloaded", "providers", registry.Names())
		if loader.Config().Policy.Enabled {
			if err := evaluator.Load(); err != nil {
				logger.Error("failed to reload policies", "error", err)
			}
		}
	})

	respCache := newCache(cfg.Cache, rdb, logger)
	if sr, ok := respCache.(cache.StatsReporter); ok {
		telemetry.RegisterCacheEntries(prometheus.DefaultRegisterer, func() int64 { return sr.Stats().Entries })
	}
	budget := ratelimit.NewBudgetTracker(rdb)

	orch := orchestrator.New(loader.Config, loader.Routes, orchestrator.Deps{
		Cache:    respCache,
		Registry: registry,
		Health:   health,
		Routes:   store.NewCachedRouteStore(store.NewPostgresRouteStore(dbPool), rdb),
		Usage:    store.NewPostgresUsageStore(dbPool),
		Spend:    budget,
		Metrics:  metrics,
		Logger:   logger,
	})

	handler := api.NewHandler(orch, evaluator, health, metrics)
	r := api.NewRouter(api.RouterDeps{
		Handler:       handler,
		Keys:          auth.NewCachedKeyStore(dbPool, rdb),
		RateLimit:     ratelimit.Middleware(ratelimit.NewLimiter(rdb), budget, loader.Config, metrics),
		AdminServices: cfg.Server.AdminServices,
		Version:       version,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("orchestrator starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsSrv.Addr)
		errCh <- metricsSrv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	metricsSrv.Shutdown(ctx)

	if err := orch.Close(); err != nil {
		logger.Error("orchestrator close failed", "error", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("orchestrator stopped")
}

// newCache picks the response cache backend. A redis backend without a
// reachable server degrades to the in-memory store.
func newCache(cfg config.CacheConfig, rdb *redis.Client, logger *slog.Logger) cache.Store {
	if cfg.Backend == "redis" {
		if rdb != nil {
			logger.Info("response cache backend", "backend", "redis", "prefix", cfg.KeyPrefix)
			return cache.NewRedisStore(rdb, cfg.KeyPrefix)
		}
		logger.Warn("redis cache requested but redis unavailable, using memory")
	}
	logger.Info("response cache backend", "backend", "memory", "sweep_interval", cfg.SweepInterval)
	return cache.NewMemoryStore(cfg.SweepInterval)
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
