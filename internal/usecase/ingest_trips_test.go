package usecase

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/V4T54L/tripflow/internal/adapter/repository/sqlstore"
	"github.com/V4T54L/tripflow/internal/adapter/source"
	"github.com/V4T54L/tripflow/internal/adapter/transfer"
	"github.com/V4T54L/tripflow/internal/cleaner"
	"github.com/V4T54L/tripflow/internal/domain"
	"github.com/V4T54L/tripflow/internal/domain/mocks"
)

const csvHeader = "VendorID,tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,trip_distance,RatecodeID,store_and_fwd_flag,PULocationID,DOLocationID,payment_type,fare_amount,extra,mta_tax,tip_amount,tolls_amount,improvement_surcharge,total_amount,congestion_surcharge,Airport_fee\n"

// Row 3 has a negative fare and row 5 repeats row 1.
const fiveRows = csvHeader +
	"1,2024-01-01 00:00:00,2024-01-01 00:10:00,1,1.0,1,N,161,237,1,10.0,0.5,0.5,2.0,0,1.0,14.0,2.5,0\n" +
	"2,2024-01-01 01:00:00,2024-01-01 01:15:00,2,2.0,1,N,162,236,1,12.0,0.5,0.5,2.0,0,1.0,16.0,2.5,0\n" +
	"1,2024-01-01 02:00:00,2024-01-01 02:20:00,1,2.5,1,N,163,235,2,-5,0.5,0.5,0,0,1.0,-3.0,2.5,0\n" +
	"2,2024-01-01 03:00:00,2024-01-01 03:25:00,3,3.0,1,Y,164,234,1,14.0,0.5,0.5,3.0,0,1.0,19.0,2.5,0\n" +
	"1,2024-01-01 00:00:00,2024-01-01 00:10:00,1,1.0,1,N,161,237,1,10.0,0.5,0.5,2.0,0,1.0,14.0,2.5,0\n"

func writeStaged(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func opener(batchSize int) SourceOpener {
	return func(path string) domain.BatchSource {
		return source.NewReader(path, batchSize, testLogger)
	}
}

func newSQLiteRepo(t *testing.T) *sqlstore.TripRepository {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, sqlstore.SQLite, filepath.Join(t.TempDir(), "taxi_data.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := sqlstore.NewTripRepository(db, sqlstore.SQLite, testLogger, nil)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestIngestThenQuery_EndToEnd(t *testing.T) {
	ctx := context.Background()
	staging := t.TempDir()
	writeStaged(t, staging, "yellow.csv", fiveRows)

	repo := newSQLiteRepo(t)
	ingest := NewIngestTripsUseCase(IngestOptions{
		StagingDir: staging,
		Repo:       repo,
		Open:       opener(100000),
		Cleaner:    cleaner.New(testLogger),
	}, testLogger)

	report, err := ingest.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.RunID == "" {
		t.Error("expected a run id")
	}
	if len(report.Files) != 1 {
		t.Fatalf("expected one file report, got %d", len(report.Files))
	}
	fr := report.Files[0]
	if fr.Err != nil || fr.Read != 5 || fr.Cleaned != 3 || fr.Inserted != 3 || fr.Failed != 0 {
		t.Fatalf("unexpected file report: %+v", fr)
	}

	query := NewQueryTripsUseCase(repo, testLogger, nil, 100, 500)

	first, err := query.Page(ctx, domain.PageRequest{Limit: 2})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Data) != 2 || !first.HasMore || first.NextCursor == nil {
		t.Fatalf("unexpected first page: %+v", first)
	}
	if first.Data[0].FareAmount != 10 || first.Data[1].FareAmount != 12 {
		t.Errorf("first page out of order: %+v", first.Data)
	}

	second, err := query.Page(ctx, domain.PageRequest{Cursor: first.NextCursor, Limit: 2})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Data) != 1 || second.HasMore {
		t.Fatalf("unexpected second page: %+v", second)
	}
	if second.Data[0].FareAmount != 14 || second.Data[0].StoreAndFwdFlag != domain.FlagYes {
		t.Errorf("unexpected last record: %+v", second.Data[0])
	}
	if second.Data[0].TripDurationMinutes != 25 {
		t.Errorf("expected 25 minute duration, got %v", second.Data[0].TripDurationMinutes)
	}
}

func TestIngestTripsUseCase_TransferFailureAbortsRun(t *testing.T) {
	staging := t.TempDir()
	writeStaged(t, staging, "yellow.csv", fiveRows)

	repo := &mocks.MockTripRepository{}
	fetcher := &mocks.MockFetcher{Err: errors.New("connection refused")}
	uc := NewIngestTripsUseCase(IngestOptions{
		StagingDir: staging,
		Fetcher:    fetcher,
		Repo:       repo,
		Open:       opener(10),
		Cleaner:    cleaner.New(testLogger),
	}, testLogger)

	report, err := uc.Run(context.Background())
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if fetcher.Calls != 1 {
		t.Errorf("expected one fetch, got %d", fetcher.Calls)
	}
	if len(report.Files) != 0 || len(repo.Records) != 0 {
		t.Errorf("nothing should be processed after a failed transfer: %+v", report)
	}
}

func TestIngestTripsUseCase_BadFilesAreSkipped(t *testing.T) {
	staging := t.TempDir()
	writeStaged(t, staging, "a.parquet", "PAR1")
	writeStaged(t, staging, "b.jsonl", "{\"a\":\n")
	writeStaged(t, staging, "c.csv", fiveRows)
	writeStaged(t, staging, ".partial-123", "ignored")
	if err := os.Mkdir(filepath.Join(staging, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	repo := &mocks.MockTripRepository{}
	uc := NewIngestTripsUseCase(IngestOptions{
		StagingDir: staging,
		Repo:       repo,
		Open:       opener(10),
		Cleaner:    cleaner.New(testLogger),
	}, testLogger)

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("per-file problems must not fail the run: %v", err)
	}
	if len(report.Files) != 3 {
		t.Fatalf("expected 3 file reports, got %d", len(report.Files))
	}
	if !errors.Is(report.Files[0].Err, source.ErrUnsupportedFormat) {
		t.Errorf("expected unsupported format for a.parquet, got %v", report.Files[0].Err)
	}
	if report.Files[1].Err == nil {
		t.Error("expected a decode error for b.jsonl")
	}
	if report.Files[2].Err != nil || report.Files[2].Inserted != 3 {
		t.Errorf("c.csv should be ingested: %+v", report.Files[2])
	}
	if inserted, _ := report.Totals(); inserted != 3 || len(repo.Records) != 3 {
		t.Errorf("expected 3 stored records, got %d/%d", inserted, len(repo.Records))
	}
}

func TestIngestTripsUseCase_FailedAppendsAreDeadLettered(t *testing.T) {
	staging := t.TempDir()
	writeStaged(t, staging, "yellow.csv", fiveRows)

	repo := &mocks.MockTripRepository{AppendErr: errors.New("disk full")}
	dl := &mocks.MockDeadLetterRepository{}
	uc := NewIngestTripsUseCase(IngestOptions{
		StagingDir:  staging,
		Repo:        repo,
		DeadLetters: dl,
		Open:        opener(10),
		Cleaner:     cleaner.New(testLogger),
	}, testLogger)

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, failed := report.Totals(); failed != 3 {
		t.Errorf("expected 3 failed records, got %d", failed)
	}
	if len(dl.Letters) != 3 {
		t.Fatalf("expected 3 dead letters, got %d", len(dl.Letters))
	}
	for _, l := range dl.Letters {
		if l.SourceFile != "yellow.csv" || l.Reason != "disk full" || l.FailedAt.IsZero() {
			t.Errorf("unexpected dead letter: %+v", l)
		}
	}
}

func TestIngestTripsUseCase_ReplayDeadLetters(t *testing.T) {
	pickup := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	good := domain.TripRecord{
		PickupTime:      pickup,
		DropoffTime:     pickup.Add(time.Minute),
		TripDistance:    1,
		FareAmount:      10,
		StoreAndFwdFlag: domain.FlagNo,
	}
	bad := good
	bad.FareAmount = 0

	repo := &mocks.MockTripRepository{}
	dl := &mocks.MockDeadLetterRepository{Letters: []domain.DeadLetter{
		{Record: good, Reason: "database is locked", SourceFile: "a.csv"},
		{Record: bad, Reason: "database is locked", SourceFile: "b.csv"},
	}}
	uc := NewIngestTripsUseCase(IngestOptions{Repo: repo, DeadLetters: dl}, testLogger)

	br, err := uc.ReplayDeadLetters(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if br.Inserted != 1 || br.Failed != 1 {
		t.Errorf("expected 1 inserted and 1 failed, got %d/%d", br.Inserted, br.Failed)
	}
	if len(repo.Records) != 1 {
		t.Errorf("expected the good record to be stored, got %d", len(repo.Records))
	}
	if len(dl.Letters) != 1 || dl.Letters[0].SourceFile != "b.csv" {
		t.Errorf("expected only the failing letter to remain: %+v", dl.Letters)
	}
}

func TestIngestTripsUseCase_ArchivesProcessedFiles(t *testing.T) {
	staging := t.TempDir()
	archive := filepath.Join(t.TempDir(), "archive")
	writeStaged(t, staging, "yellow.csv", fiveRows)

	uc := NewIngestTripsUseCase(IngestOptions{
		StagingDir: staging,
		ArchiveDir: archive,
		Repo:       &mocks.MockTripRepository{},
		Open:       opener(10),
		Cleaner:    cleaner.New(testLogger),
	}, testLogger)

	if _, err := uc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(archive, "yellow.csv")); err != nil {
		t.Errorf("expected file in archive: %v", err)
	}

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(report.Files) != 0 {
		t.Errorf("archived files must not be ingested twice, got %d", len(report.Files))
	}
}

// cancelAfterFirst cancels the run once the first batch has been handed out.
type cancelAfterFirst struct {
	inner  domain.BatchSource
	cancel context.CancelFunc
}

func (c cancelAfterFirst) Batches(ctx context.Context) iter.Seq2[[]domain.RawRecord, error] {
	return func(yield func([]domain.RawRecord, error) bool) {
		first := true
		for batch, err := range c.inner.Batches(ctx) {
			if !yield(batch, err) {
				return
			}
			if first {
				first = false
				c.cancel()
			}
		}
	}
}

func TestIngestTripsUseCase_CancelledFileStaysStaged(t *testing.T) {
	staging := t.TempDir()
	archive := filepath.Join(t.TempDir(), "archive")
	writeStaged(t, staging, "yellow.csv", fiveRows)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &mocks.MockTripRepository{}
	uc := NewIngestTripsUseCase(IngestOptions{
		StagingDir: staging,
		ArchiveDir: archive,
		Repo:       repo,
		Open: func(path string) domain.BatchSource {
			return cancelAfterFirst{inner: source.NewReader(path, 2, testLogger), cancel: cancel}
		},
		Cleaner: cleaner.New(testLogger),
	}, testLogger)

	report, err := uc.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Files) != 1 || !errors.Is(report.Files[0].Err, context.Canceled) {
		t.Fatalf("expected the file to report cancellation: %+v", report.Files)
	}
	if report.Files[0].Inserted != 2 || len(repo.Records) != 2 {
		t.Errorf("expected only the first batch stored, got %d", len(repo.Records))
	}
	if _, err := os.Stat(filepath.Join(staging, "yellow.csv")); err != nil {
		t.Errorf("interrupted file must stay in staging: %v", err)
	}
	if _, err := os.Stat(filepath.Join(archive, "yellow.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("interrupted file must not be archived, stat err = %v", err)
	}
}

func TestIngestTripsUseCase_RepeatedRunsDoNotRefetch(t *testing.T) {
	remote := t.TempDir()
	staging := filepath.Join(t.TempDir(), "raw")
	archive := filepath.Join(t.TempDir(), "archive")
	writeStaged(t, remote, "yellow.csv", fiveRows)

	repo := &mocks.MockTripRepository{}
	uc := NewIngestTripsUseCase(IngestOptions{
		StagingDir: staging,
		ArchiveDir: archive,
		Fetcher:    transfer.NewLocal(remote, testLogger),
		Repo:       repo,
		Open:       opener(10),
		Cleaner:    cleaner.New(testLogger),
	}, testLogger)

	for tick := 1; tick <= 3; tick++ {
		if _, err := uc.Run(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if len(repo.Records) != 3 {
			t.Fatalf("after tick %d: expected 3 stored records, got %d", tick, len(repo.Records))
		}
	}
}

func TestStagedFiles_MissingDirectory(t *testing.T) {
	files, err := stagedFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(files) != 0 {
		t.Errorf("expected no files and no error, got %v, %v", files, err)
	}
}
