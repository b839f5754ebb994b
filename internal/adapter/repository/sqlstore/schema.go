package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column type names per dialect, substituted into the DDL templates.
type columnTypes struct {
	id, integer, real, text, timestamp, boolean string
}

func (d Dialect) types() columnTypes {
	if d == Postgres {
		return columnTypes{
			id:        "BIGSERIAL PRIMARY KEY",
			integer:   "BIGINT",
			real:      "DOUBLE PRECISION",
			text:      "TEXT",
			timestamp: "TIMESTAMPTZ",
			boolean:   "BOOLEAN",
		}
	}
	return columnTypes{
		id:        "INTEGER PRIMARY KEY AUTOINCREMENT",
		integer:   "INTEGER",
		real:      "REAL",
		text:      "TEXT",
		timestamp: "TEXT",
		boolean:   "BOOLEAN",
	}
}

const tripsTableDDL = `
CREATE TABLE IF NOT EXISTS taxi_trips (
	id {id},
	vendor_id {integer} NOT NULL,
	tpep_pickup_datetime {timestamp} NOT NULL,
	tpep_dropoff_datetime {timestamp} NOT NULL,
	passenger_count {integer} NOT NULL,
	trip_distance {real} NOT NULL CHECK (trip_distance > 0),
	ratecodeid {integer} NOT NULL,
	store_and_fwd_flag {text} NOT NULL CHECK (store_and_fwd_flag IN ('Y', 'N', 'UNKNOWN')),
	pulocationid {integer} NOT NULL,
	dolocationid {integer} NOT NULL,
	payment_type {integer} NOT NULL,
	fare_amount {real} NOT NULL CHECK (fare_amount > 0),
	extra {real} NOT NULL,
	mta_tax {real} NOT NULL,
	tip_amount {real} NOT NULL,
	tolls_amount {real} NOT NULL,
	improvement_surcharge {real} NOT NULL,
	total_amount {real} NOT NULL,
	congestion_surcharge {real} NOT NULL,
	airport_fee {real} NOT NULL,
	trip_duration {real} NOT NULL CHECK (trip_duration >= 0),
	CHECK (tpep_pickup_datetime < tpep_dropoff_datetime)
)`

const tripsIndexDDL = `CREATE INDEX IF NOT EXISTS idx_taxi_trips_pickup ON taxi_trips (tpep_pickup_datetime)`

const apiKeysTableDDL = `
CREATE TABLE IF NOT EXISTS api_keys (
	api_key {text} PRIMARY KEY,
	is_active {boolean} NOT NULL DEFAULT TRUE,
	expires_at {timestamp}
)`

func (d Dialect) render(ddl string) string {
	t := d.types()
	return strings.NewReplacer(
		"{id}", t.id,
		"{integer}", t.integer,
		"{real}", t.real,
		"{text}", t.text,
		"{timestamp}", t.timestamp,
		"{boolean}", t.boolean,
	).Replace(ddl)
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, ddl := range []string{tripsTableDDL, tripsIndexDDL, apiKeysTableDDL} {
		if _, err := db.ExecContext(ctx, d.render(ddl)); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}
