package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/domain"
)

const tripsTableName = "taxi_trips"

var tripColumns = []string{
	"vendor_id", "tpep_pickup_datetime", "tpep_dropoff_datetime",
	"passenger_count", "trip_distance", "ratecodeid", "store_and_fwd_flag",
	"pulocationid", "dolocationid", "payment_type", "fare_amount", "extra",
	"mta_tax", "tip_amount", "tolls_amount", "improvement_surcharge",
	"total_amount", "congestion_surcharge", "airport_fee", "trip_duration",
}

// TripRepository implements domain.TripRepository on database/sql.
type TripRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	metrics *metrics.Metrics

	insertSQL string
	selectSQL string

	// writeMu serializes appends so ids are assigned in call order.
	writeMu sync.Mutex
}

// NewTripRepository creates a trip store over db. m may be nil.
func NewTripRepository(db *sql.DB, d Dialect, logger *slog.Logger, m *metrics.Metrics) *TripRepository {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tripColumns)), ", ")
	return &TripRepository{
		db:      db,
		dialect: d,
		logger:  logger.With("component", "trip_repository"),
		metrics: m,
		insertSQL: d.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
			tripsTableName, strings.Join(tripColumns, ", "), placeholders)),
		selectSQL: fmt.Sprintf("SELECT id, %s FROM %s", strings.Join(tripColumns, ", "), tripsTableName),
	}
}

// Migrate creates the schema.
func (r *TripRepository) Migrate(ctx context.Context) error {
	return Migrate(ctx, r.db, r.dialect)
}

// Append validates rec and inserts it in a transaction of its own, on a
// connection held only for this call.
func (r *TripRepository) Append(ctx context.Context, rec domain.TripRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.AppendLatency.Observe(time.Since(start).Seconds())
		}
	}()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback is a no-op if Commit() is called

	var id int64
	if err := tx.QueryRowContext(ctx, r.insertSQL, r.args(rec)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert trip: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit trip: %w", err)
	}
	return id, nil
}

// AppendBatch appends each record independently. Failures are logged with the
// offending record and reported per index; they never affect other records.
func (r *TripRepository) AppendBatch(ctx context.Context, recs []domain.TripRecord) domain.BatchReport {
	report := domain.BatchReport{Results: make([]domain.AppendResult, 0, len(recs))}
	for i, rec := range recs {
		id, err := r.Append(ctx, rec)
		report.Add(domain.AppendResult{Index: i, ID: id, Err: err})
		if err != nil {
			r.logger.Error("Failed to persist trip record", "error", err, "index", i, "record", rec)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordsStored.Add(float64(report.Inserted))
		r.metrics.RecordsFailed.Add(float64(report.Failed))
	}
	return report
}

// Scan returns trips with id > AfterID and pickup inside the optional
// inclusive bounds, in ascending id order.
func (r *TripRepository) Scan(ctx context.Context, f domain.ScanFilter) ([]domain.TripRecord, error) {
	var (
		where = []string{"id > ?"}
		args  = []any{f.AfterID}
	)
	if !f.Start.IsZero() {
		where = append(where, "tpep_pickup_datetime >= ?")
		args = append(args, r.dialect.timeArg(f.Start))
	}
	if !f.End.IsZero() {
		where = append(where, "tpep_pickup_datetime <= ?")
		args = append(args, r.dialect.timeArg(f.End))
	}

	query := r.selectSQL + " WHERE " + strings.Join(where, " AND ") + " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("scan trips: %w", err)
	}
	defer rows.Close()

	trips := make([]domain.TripRecord, 0, max(f.Limit, 0))
	for rows.Next() {
		rec, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan trips: %w", err)
	}
	return trips, nil
}

func (r *TripRepository) args(rec domain.TripRecord) []any {
	return []any{
		rec.VendorID,
		r.dialect.timeArg(rec.PickupTime),
		r.dialect.timeArg(rec.DropoffTime),
		rec.PassengerCount,
		rec.TripDistance,
		rec.RateCodeID,
		rec.StoreAndFwdFlag,
		rec.PULocationID,
		rec.DOLocationID,
		rec.PaymentType,
		rec.FareAmount,
		rec.Extra,
		rec.MTATax,
		rec.TipAmount,
		rec.TollsAmount,
		rec.ImprovementSurcharge,
		rec.TotalAmount,
		rec.CongestionSurcharge,
		rec.AirportFee,
		rec.TripDurationMinutes,
	}
}

func scanTrip(rows *sql.Rows) (domain.TripRecord, error) {
	var (
		rec             domain.TripRecord
		pickup, dropoff scanTime
	)
	err := rows.Scan(
		&rec.ID,
		&rec.VendorID,
		&pickup,
		&dropoff,
		&rec.PassengerCount,
		&rec.TripDistance,
		&rec.RateCodeID,
		&rec.StoreAndFwdFlag,
		&rec.PULocationID,
		&rec.DOLocationID,
		&rec.PaymentType,
		&rec.FareAmount,
		&rec.Extra,
		&rec.MTATax,
		&rec.TipAmount,
		&rec.TollsAmount,
		&rec.ImprovementSurcharge,
		&rec.TotalAmount,
		&rec.CongestionSurcharge,
		&rec.AirportFee,
		&rec.TripDurationMinutes,
	)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("scan trip row: %w", err)
	}
	rec.PickupTime = pickup.Time
	rec.DropoffTime = dropoff.Time
	return rec, nil
}
