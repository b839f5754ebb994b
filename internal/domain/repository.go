package domain

import (
	"context"
	"iter"
	"time"
)

// TripRepository is the append-only store of canonical trips.
type TripRepository interface {
	// Append persists one record in its own transaction and returns its new id.
	Append(ctx context.Context, rec TripRecord) (int64, error)

	// AppendBatch persists records one by one. A failing record never affects
	// the others; failures are reported in the BatchReport, not returned.
	AppendBatch(ctx context.Context, recs []TripRecord) BatchReport

	// Scan returns records matching the filter in ascending id order.
	Scan(ctx context.Context, filter ScanFilter) ([]TripRecord, error)
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	// IsValid checks if the provided API key is valid and active.
	IsValid(ctx context.Context, key string) (bool, error)
}

// RateLimiter enforces a per-client request budget.
type RateLimiter interface {
	// Allow consumes one request for client. When the budget is exhausted it
	// returns false and how long the client should wait.
	Allow(ctx context.Context, client string) (bool, time.Duration, error)
}

// DeadLetter is a rejected record together with the reason it was rejected.
type DeadLetter struct {
	Record     TripRecord `json:"record"`
	Reason     string     `json:"reason"`
	SourceFile string     `json:"source_file"`
	FailedAt   time.Time  `json:"failed_at"`
}

// DeadLetterRepository keeps records the store refused, for later resubmission.
type DeadLetterRepository interface {
	// Write appends a rejected record to the log.
	Write(ctx context.Context, letter DeadLetter) error

	// Replay reads every letter and hands it to handler, stopping on the first handler error.
	Replay(ctx context.Context, handler func(letter DeadLetter) error) error

	// Truncate removes all letters.
	Truncate(ctx context.Context) error
}

// Fetcher deposits raw files from a remote location into a local staging directory.
type Fetcher interface {
	Fetch(ctx context.Context, stagingDir string) ([]string, error)
}

// BatchSource yields raw record batches from one staged file.
type BatchSource interface {
	Batches(ctx context.Context) iter.Seq2[[]RawRecord, error]
}
