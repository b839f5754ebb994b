package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/tripflow/internal/adapter/api"
	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/adapter/repository/deadletter"
	"github.com/V4T54L/tripflow/internal/adapter/repository/sqlstore"
	"github.com/V4T54L/tripflow/internal/adapter/source"
	"github.com/V4T54L/tripflow/internal/adapter/transfer"
	"github.com/V4T54L/tripflow/internal/cleaner"
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

	tripRepo := sqlstore.NewTripRepository(db, dialect, logger, m)
	if err := tripRepo.Migrate(ctx); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	// --- Dead-letter log ---
	deadLetters, err := deadletter.New(cfg.DeadLetterDir, cfg.DeadLetterSegment, cfg.DeadLetterMaxDisk, logger, m)
	if err != nil {
		logger.Error("failed to initialize dead-letter log", "error", err)
		os.Exit(1)
	}
	defer deadLetters.Close()

	ingest := usecase.NewIngestTripsUseCase(usecase.IngestOptions{
		StagingDir:  cfg.StagingDir,
		ArchiveDir:  cfg.ArchiveDir,
		Fetcher:     newFetcher(cfg, logger),
		Repo:        tripRepo,
		DeadLetters: deadLetters,
		Open: func(path string) domain.BatchSource {
			return source.NewReader(path, cfg.BatchSize, logger)
		},
		Cleaner: cleaner.New(logger),
		Metrics: m,
	}, logger)

	// --- Admin and Metrics Server ---
	adminServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: api.NewAdminRouter(promhttp.Handler()),
	}
	if cfg.IngestInterval > 0 {
		go func() {
			logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin & metrics server failed", "error", err)
			}
		}()
	}

	exitCode := 0
	if cfg.IngestInterval <= 0 {
		if err := runOnce(ctx, ingest, logger); err != nil {
			exitCode = 1
		}
	} else {
		runEvery(ctx, ingest, cfg.IngestInterval, logger)

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown failed", "error", err)
		}
	}

	logger.Info("ingest shut down", "exit_code", exitCode)
	if exitCode != 0 {
		// Deferred closes would be skipped by os.Exit.
		deadLetters.Close()
		db.Close()
		os.Exit(exitCode)
	}
}

func newFetcher(cfg *config.Config, logger *slog.Logger) domain.Fetcher {
	switch cfg.TransferMode {
	case "local":
		return transfer.NewLocal(cfg.TransferSourceDir, logger)
	case "sftp":
		return transfer.NewSFTP(transfer.SFTPConfig{
			Host:           cfg.SFTPHost,
			Port:           cfg.SFTPPort,
			User:           cfg.SFTPUser,
			Password:       cfg.SFTPPassword,
			KeyPath:        cfg.SFTPKeyPath,
			RemotePath:     cfg.SFTPRemotePath,
			KnownHostsPath: cfg.SFTPKnownHosts,
		}, logger)
	default:
		return nil
	}
}

// runOnce replays pending dead letters and performs one ingestion run.
func runOnce(ctx context.Context, ingest *usecase.IngestTripsUseCase, logger *slog.Logger) error {
	if _, err := ingest.ReplayDeadLetters(ctx); err != nil {
		logger.Error("dead-letter replay failed", "error", err)
	}
	report, err := ingest.Run(ctx)
	if err != nil {
		logger.Error("ingestion run failed", "error", err, "run_id", report.RunID)
		return err
	}
	return nil
}

// runEvery runs immediately and then on every tick until ctx is done. A
// failed run is logged and retried on the next tick.
func runEvery(ctx context.Context, ingest *usecase.IngestTripsUseCase, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(ctx, ingest, logger); err != nil && errors.Is(err, context.Canceled) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
