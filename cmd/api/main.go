package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/tripflow/internal/adapter/api"
	"github.com/V4T54L/tripflow/internal/adapter/auth"
	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/adapter/ratelimit"
	"github.com/V4T54L/tripflow/internal/adapter/repository/sqlstore"
	"github.com/V4T54L/tripflow/internal/domain"
	"github.com/V4T54L/tripflow/internal/pkg/config"
	"github.com/V4T54L/tripflow/internal/pkg/logger"
	"github.com/V4T54L/tripflow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database ---
	dialect, err := sqlstore.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		logger.Error("invalid database driver", "error", err)
		os.Exit(1)
	}
	db, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", dialect)
		os.Exit(1)
	}
	defer db.Close()

	if err := sqlstore.Migrate(ctx, db, dialect); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	tripRepo := sqlstore.NewTripRepository(db, dialect, logger, m)

	// --- Authentication ---
	var apiKeys domain.APIKeyRepository
	switch cfg.APIKeySource {
	case "database":
		repo := sqlstore.NewAPIKeyRepository(db, dialect, logger, cfg.APIKeyCacheTTL, m)
		if cfg.APIKey != "" {
			if err := repo.Register(ctx, cfg.APIKey, time.Time{}); err != nil {
				logger.Error("failed to register configured API key", "error", err)
				os.Exit(1)
			}
		}
		apiKeys = repo
	default:
		if cfg.APIKey == "" {
			logger.Warn("API_KEY is empty, every request will be rejected")
		}
		apiKeys = auth.NewStaticKey(cfg.APIKey)
	}

	// --- Rate limiting ---
	var limiter domain.RateLimiter = ratelimit.NewLocal(cfg.RateLimitRequests, cfg.RateLimitWindow)
	if cfg.RedisAddr != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("could not connect to redis, rate limiting falls back to in-process buckets", "error", err)
		}
		limiter = ratelimit.NewRedis(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	}

	query := usecase.NewQueryTripsUseCase(tripRepo, logger, m, cfg.QueryDefaultLimit, cfg.QueryMaxLimit)

	// --- Servers ---
	adminServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: api.NewAdminRouter(promhttp.Handler()),
	}
	apiServer := &http.Server{
		Addr:         cfg.APIServerAddr,
		Handler:      api.NewRouter(logger, m, apiKeys, limiter, query),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()
	go func() {
		logger.Info("starting read API server", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("read API server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("read API server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}
