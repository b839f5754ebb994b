package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/patrickmn/go-cache"
)

// APIKeyRepository implements domain.APIKeyRepository with the api_keys table
// as the source of truth and an in-memory TTL cache in front of it.
type APIKeyRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	cache   *cache.Cache
	metrics *metrics.Metrics
}

// NewAPIKeyRepository creates a database-backed key validator. m may be nil.
func NewAPIKeyRepository(db *sql.DB, d Dialect, logger *slog.Logger, cacheTTL time.Duration, m *metrics.Metrics) *APIKeyRepository {
	return &APIKeyRepository{
		db:      db,
		dialect: d,
		logger:  logger.With("component", "apikey_repository"),
		cache:   cache.New(cacheTTL, 2*cacheTTL),
		metrics: m,
	}
}

// IsValid checks the cache first and falls back to the database when the key
// is unknown or its entry has expired. Errors are never cached.
func (r *APIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if v, found := r.cache.Get(key); found {
		if r.metrics != nil {
			r.metrics.APIKeyCacheHits.Inc()
		}
		return v.(bool), nil
	}
	if r.metrics != nil {
		r.metrics.APIKeyCacheMisses.Inc()
	}

	// A key is valid if it exists, is active, and has not expired.
	query := r.dialect.Rebind(`SELECT EXISTS(SELECT 1 FROM api_keys WHERE api_key = ? AND is_active = ? AND (expires_at IS NULL OR expires_at > ?))`)

	var isValid bool
	if err := r.db.QueryRowContext(ctx, query, key, true, r.dialect.timeArg(time.Now())).Scan(&isValid); err != nil {
		r.logger.Error("Failed to validate API key in database", "error", err)
		return false, err
	}

	r.cache.SetDefault(key, isValid)
	return isValid, nil
}

// Register inserts an active key, or reactivates an existing one. A zero
// expiresAt never expires.
func (r *APIKeyRepository) Register(ctx context.Context, key string, expiresAt time.Time) error {
	var expires any
	if !expiresAt.IsZero() {
		expires = r.dialect.timeArg(expiresAt)
	}
	query := r.dialect.Rebind(`INSERT INTO api_keys (api_key, is_active, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (api_key) DO UPDATE SET is_active = excluded.is_active, expires_at = excluded.expires_at`)
	if _, err := r.db.ExecContext(ctx, query, key, true, expires); err != nil {
		return fmt.Errorf("register api key: %w", err)
	}
	r.cache.Delete(key)
	return nil
}
