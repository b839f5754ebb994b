package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/V4T54L/tripflow/internal/usecase"

// QueryTripsUseCase serves cursor-paginated reads of stored trips.
type QueryTripsUseCase struct {
	repo         domain.TripRepository
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	defaultLimit int
	maxLimit     int
}

// NewQueryTripsUseCase creates the query engine. m may be nil.
func NewQueryTripsUseCase(repo domain.TripRepository, logger *slog.Logger, m *metrics.Metrics, defaultLimit, maxLimit int) *QueryTripsUseCase {
	return &QueryTripsUseCase{
		repo:         repo,
		logger:       logger.With("component", "query_trips"),
		metrics:      m,
		tracer:       otel.Tracer(tracerName),
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Page returns up to limit trips with id greater than the cursor, in
// ascending id order. HasMore is set whenever the page is full, so an exact
// final fit reports a further, empty page.
func (uc *QueryTripsUseCase) Page(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	limit, err := uc.resolveLimit(req.Limit)
	if err != nil {
		return domain.Page{}, err
	}
	if !req.Start.IsZero() && !req.End.IsZero() && req.Start.After(req.End) {
		return domain.Page{}, ErrInvalidRange
	}
	var after int64
	if req.Cursor != nil {
		if *req.Cursor < 0 {
			return domain.Page{}, ErrInvalidCursor
		}
		after = *req.Cursor
	}

	ctx, span := uc.tracer.Start(ctx, "QueryTrips.Page", trace.WithAttributes(
		attribute.Int64("cursor", after),
		attribute.Int("limit", limit),
	))
	defer span.End()

	trips, err := uc.repo.Scan(ctx, domain.ScanFilter{
		AfterID: after,
		Start:   req.Start,
		End:     req.End,
		Limit:   limit,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		uc.logger.Error("Failed to scan trips", "error", err, "cursor", after, "limit", limit)
		return domain.Page{}, fmt.Errorf("query trips: %w", err)
	}

	page := domain.Page{Data: trips, HasMore: len(trips) == limit}
	if page.Data == nil {
		page.Data = []domain.TripRecord{}
	}
	if n := len(trips); n > 0 {
		last := trips[n-1].ID
		page.NextCursor = &last
	}

	span.SetAttributes(attribute.Int("returned", len(trips)), attribute.Bool("has_more", page.HasMore))
	if uc.metrics != nil {
		uc.metrics.PageSize.Observe(float64(len(trips)))
	}
	return page, nil
}

func (uc *QueryTripsUseCase) resolveLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return uc.defaultLimit, nil
	case limit < 0:
		return 0, ErrInvalidLimit
	case limit > uc.maxLimit:
		return 0, fmt.Errorf("%w: %d > %d", ErrLimitExceeded, limit, uc.maxLimit)
	default:
		return limit, nil
	}
}

// MaxLimit is the largest accepted page size.
func (uc *QueryTripsUseCase) MaxLimit() int { return uc.maxLimit }
