package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/tripflow/internal/domain"
)

// MockTripRepository is an in-memory implementation of domain.TripRepository for testing.
// Records are validated like the real store; AppendErr forces every append to fail.
type MockTripRepository struct {
	mu        sync.Mutex
	Records   []domain.TripRecord
	AppendErr error
	ScanErr   error
	Scans     []domain.ScanFilter
	nextID    int64
}

func (m *MockTripRepository) Append(ctx context.Context, rec domain.TripRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return 0, m.AppendErr
	}
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	m.nextID++
	rec.ID = m.nextID
	m.Records = append(m.Records, rec)
	return rec.ID, nil
}

func (m *MockTripRepository) AppendBatch(ctx context.Context, recs []domain.TripRecord) domain.BatchReport {
	var report domain.BatchReport
	for i, rec := range recs {
		id, err := m.Append(ctx, rec)
		report.Add(domain.AppendResult{Index: i, ID: id, Err: err})
	}
	return report
}

func (m *MockTripRepository) Scan(ctx context.Context, filter domain.ScanFilter) ([]domain.TripRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scans = append(m.Scans, filter)
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}

	var out []domain.TripRecord
	for _, rec := range m.Records {
		if rec.ID <= filter.AfterID {
			continue
		}
		if !filter.Start.IsZero() && rec.PickupTime.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && rec.PickupTime.After(filter.End) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// MockDeadLetterRepository collects dead letters in memory.
type MockDeadLetterRepository struct {
	mu       sync.Mutex
	Letters  []domain.DeadLetter
	WriteErr error
}

func (m *MockDeadLetterRepository) Write(ctx context.Context, letter domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Letters = append(m.Letters, letter)
	return nil
}

func (m *MockDeadLetterRepository) Replay(ctx context.Context, handler func(letter domain.DeadLetter) error) error {
	m.mu.Lock()
	letters := append([]domain.DeadLetter(nil), m.Letters...)
	m.mu.Unlock()
	for _, l := range letters {
		if err := handler(l); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockDeadLetterRepository) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Letters = nil
	return nil
}

// MockFetcher returns Files or Err without touching the network.
type MockFetcher struct {
	Files []string
	Err   error
	Calls int
}

func (m *MockFetcher) Fetch(ctx context.Context, stagingDir string) ([]string, error) {
	m.Calls++
	return m.Files, m.Err
}

// MockAPIKeyRepository accepts exactly the keys in Valid.
type MockAPIKeyRepository struct {
	Valid map[string]bool
	Err   error
}

func (m *MockAPIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Valid[key], nil
}

// MockRateLimiter allows the first Budget requests per client.
type MockRateLimiter struct {
	mu     sync.Mutex
	Budget int
	Err    error
	seen   map[string]int
}

func (m *MockRateLimiter) Allow(ctx context.Context, client string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, 0, m.Err
	}
	if m.seen == nil {
		m.seen = make(map[string]int)
	}
	m.seen[client]++
	if m.seen[client] > m.Budget {
		return false, time.Second, nil
	}
	return true, 0, nil
}
