package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/cleaner"
	"github.com/V4T54L/tripflow/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SourceOpener returns the batch source for one staged file.
type SourceOpener func(path string) domain.BatchSource

// IngestOptions configures an IngestTripsUseCase. Fetcher, DeadLetters and
// Metrics are optional.
type IngestOptions struct {
	StagingDir  string
	ArchiveDir  string // processed files are moved here when set
	Fetcher     domain.Fetcher
	Repo        domain.TripRepository
	DeadLetters domain.DeadLetterRepository
	Open        SourceOpener
	Cleaner     *cleaner.Cleaner
	Metrics     *metrics.Metrics
}

// IngestTripsUseCase drives staged files through reading, cleaning and
// storage. Files, batches and records are handled sequentially.
type IngestTripsUseCase struct {
	opts   IngestOptions
	logger *slog.Logger
	tracer trace.Tracer
}

func NewIngestTripsUseCase(opts IngestOptions, logger *slog.Logger) *IngestTripsUseCase {
	return &IngestTripsUseCase{
		opts:   opts,
		logger: logger.With("component", "ingest_trips"),
		tracer: otel.Tracer(tracerName),
	}
}

// Run fetches new files and ingests everything in the staging directory.
// Only a failed fetch, an unreadable staging directory or cancellation fails
// the run; per-file problems are recorded in the report. A file interrupted
// by cancellation is not archived, so a later run reads it again from the
// start.
func (uc *IngestTripsUseCase) Run(ctx context.Context) (domain.RunReport, error) {
	report := domain.RunReport{RunID: uuid.NewString()}
	logger := uc.logger.With("run_id", report.RunID)
	start := time.Now()

	ctx, span := uc.tracer.Start(ctx, "IngestTrips.Run", trace.WithAttributes(attribute.String("run_id", report.RunID)))
	defer span.End()

	// 1. Pull new files into the staging area.
	if uc.opts.Fetcher != nil {
		fetched, err := uc.opts.Fetcher.Fetch(ctx, uc.opts.StagingDir)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transfer failed")
			logger.Error("File transfer failed, aborting run", "error", err)
			return report, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		logger.Info("File transfer completed", "files", len(fetched))
	}

	// 2. Process every staged file in name order.
	files, err := stagedFiles(uc.opts.StagingDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "staging unreadable")
		return report, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fr := uc.processFile(ctx, logger, path)
		report.Files = append(report.Files, fr)
		if err := ctx.Err(); err != nil {
			// The rest of the file was never read; leave it staged for the next run.
			logger.Warn("Ingestion run interrupted, file left in staging", "path", path, "inserted", fr.Inserted)
			return report, err
		}
		uc.archive(logger, path)
	}

	inserted, failed := report.Totals()
	logger.Info("Ingestion run finished",
		"files", len(report.Files),
		"inserted", inserted,
		"failed", failed,
		"duration", time.Since(start).String(),
	)
	if uc.opts.Metrics != nil {
		uc.opts.Metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	return report, nil
}

// ProcessFile ingests a single staged file.
func (uc *IngestTripsUseCase) ProcessFile(ctx context.Context, path string) domain.FileReport {
	return uc.processFile(ctx, uc.logger, path)
}

func (uc *IngestTripsUseCase) processFile(ctx context.Context, logger *slog.Logger, path string) domain.FileReport {
	fr := domain.FileReport{Path: path}
	logger = logger.With("path", path)

	ctx, span := uc.tracer.Start(ctx, "IngestTrips.ProcessFile", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	for batch, err := range uc.opts.Open(path).Batches(ctx) {
		if err != nil {
			fr.Err = err
			break
		}
		fr.Batches++
		fr.Read += len(batch)

		res := uc.opts.Cleaner.Clean(batch)
		fr.Cleaned += len(res.Records)

		br := uc.opts.Repo.AppendBatch(ctx, res.Records)
		fr.Inserted += br.Inserted
		fr.Failed += br.Failed
		uc.deadLetter(ctx, logger, path, res.Records, br)

		if m := uc.opts.Metrics; m != nil {
			m.RecordsRead.Add(float64(len(batch)))
			m.RecordsCleaned.Add(float64(len(res.Records)))
			m.ObserveDropped(res.Dropped)
		}
		logger.Debug("Batch ingested",
			"batch", fr.Batches,
			"read", len(batch),
			"cleaned", len(res.Records),
			"inserted", br.Inserted,
			"failed", br.Failed,
		)
	}

	status := "ok"
	if fr.Err != nil {
		status = "failed"
		span.RecordError(fr.Err)
		span.SetStatus(codes.Error, "file skipped")
		logger.Error("Skipping staged file", "error", fr.Err, "batches_done", fr.Batches)
	} else {
		logger.Info("Staged file ingested",
			"batches", fr.Batches,
			"read", fr.Read,
			"cleaned", fr.Cleaned,
			"inserted", fr.Inserted,
			"failed", fr.Failed,
		)
	}
	if uc.opts.Metrics != nil {
		uc.opts.Metrics.FilesTotal.WithLabelValues(status).Inc()
	}
	return fr
}

func (uc *IngestTripsUseCase) deadLetter(ctx context.Context, logger *slog.Logger, path string, recs []domain.TripRecord, br domain.BatchReport) {
	if uc.opts.DeadLetters == nil || br.Failed == 0 {
		return
	}
	now := time.Now().UTC()
	for _, r := range br.Results {
		if r.OK() {
			continue
		}
		letter := domain.DeadLetter{
			Record:     recs[r.Index],
			Reason:     r.Err.Error(),
			SourceFile: filepath.Base(path),
			FailedAt:   now,
		}
		if err := uc.opts.DeadLetters.Write(ctx, letter); err != nil {
			logger.Error("Failed to write dead letter", "error", err, "index", r.Index)
		}
	}
}

// ReplayDeadLetters resubmits every dead letter to the store. Letters that
// fail again are written back.
func (uc *IngestTripsUseCase) ReplayDeadLetters(ctx context.Context) (domain.BatchReport, error) {
	if uc.opts.DeadLetters == nil {
		return domain.BatchReport{}, nil
	}

	var letters []domain.DeadLetter
	if err := uc.opts.DeadLetters.Replay(ctx, func(l domain.DeadLetter) error {
		letters = append(letters, l)
		return nil
	}); err != nil {
		return domain.BatchReport{}, fmt.Errorf("read dead letters: %w", err)
	}
	if len(letters) == 0 {
		return domain.BatchReport{}, nil
	}

	recs := make([]domain.TripRecord, len(letters))
	for i, l := range letters {
		recs[i] = l.Record
	}
	br := uc.opts.Repo.AppendBatch(ctx, recs)

	if err := uc.opts.DeadLetters.Truncate(ctx); err != nil {
		return br, fmt.Errorf("truncate dead letters: %w", err)
	}
	now := time.Now().UTC()
	for _, r := range br.Results {
		if r.OK() {
			continue
		}
		l := letters[r.Index]
		l.Reason, l.FailedAt = r.Err.Error(), now
		if err := uc.opts.DeadLetters.Write(ctx, l); err != nil {
			uc.logger.Error("Failed to rewrite dead letter", "error", err, "source_file", l.SourceFile)
		}
	}

	uc.logger.Info("Dead letters replayed", "resubmitted", len(letters), "inserted", br.Inserted, "failed", br.Failed)
	return br, nil
}

func (uc *IngestTripsUseCase) archive(logger *slog.Logger, path string) {
	if uc.opts.ArchiveDir == "" {
		return
	}
	if err := os.MkdirAll(uc.opts.ArchiveDir, 0o755); err != nil {
		logger.Error("Failed to create archive directory", "error", err)
		return
	}
	dst := filepath.Join(uc.opts.ArchiveDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		logger.Error("Failed to archive staged file", "error", err, "path", path)
	}
}

// stagedFiles lists regular, non-hidden files in dir, sorted by name. A
// missing directory has no files.
func stagedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list staging dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}
