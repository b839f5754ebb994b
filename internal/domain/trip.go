package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Missing is the sentinel stored in nullable integer and surcharge columns
// when the source value was absent or could not be coerced.
const Missing = -1

// Store-and-forward flag values.
const (
	FlagYes     = "Y"
	FlagNo      = "N"
	FlagUnknown = "UNKNOWN"
)

// ErrInvalidRecord is returned when a TripRecord violates a persistence invariant.
var ErrInvalidRecord = errors.New("invalid trip record")

// RawRecord is one decoded row of a staged file, before any normalization.
// Values are string, float64, bool or nil.
type RawRecord map[string]any

// TripRecord is the canonical, validated representation of one taxi trip.
type TripRecord struct {
	ID                   int64     `json:"id"`
	VendorID             int64     `json:"vendor_id"`
	PickupTime           time.Time `json:"tpep_pickup_datetime"`
	DropoffTime          time.Time `json:"tpep_dropoff_datetime"`
	PassengerCount       int64     `json:"passenger_count"`
	TripDistance         float64   `json:"trip_distance"`
	RateCodeID           int64     `json:"ratecodeid"`
	StoreAndFwdFlag      string    `json:"store_and_fwd_flag"`
	PULocationID         int64     `json:"pulocationid"`
	DOLocationID         int64     `json:"dolocationid"`
	PaymentType          int64     `json:"payment_type"`
	FareAmount           float64   `json:"fare_amount"`
	Extra                float64   `json:"extra"`
	MTATax               float64   `json:"mta_tax"`
	TipAmount            float64   `json:"tip_amount"`
	TollsAmount          float64   `json:"tolls_amount"`
	ImprovementSurcharge float64   `json:"improvement_surcharge"`
	TotalAmount          float64   `json:"total_amount"`
	CongestionSurcharge  float64   `json:"congestion_surcharge"`
	AirportFee           float64   `json:"airport_fee"`
	TripDurationMinutes  float64   `json:"trip_duration_minutes"`
}

// Validate checks the invariants a record must satisfy before it may be persisted.
func (t TripRecord) Validate() error {
	switch {
	case t.PickupTime.IsZero():
		return fmt.Errorf("%w: tpep_pickup_datetime is missing", ErrInvalidRecord)
	case t.DropoffTime.IsZero():
		return fmt.Errorf("%w: tpep_dropoff_datetime is missing", ErrInvalidRecord)
	case !t.PickupTime.Before(t.DropoffTime):
		return fmt.Errorf("%w: pickup %s is not before dropoff %s", ErrInvalidRecord, t.PickupTime, t.DropoffTime)
	}

	for name, v := range t.measures() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidRecord, name)
		}
	}

	switch {
	case t.TripDistance <= 0:
		return fmt.Errorf("%w: trip_distance must be positive, got %v", ErrInvalidRecord, t.TripDistance)
	case t.FareAmount <= 0:
		return fmt.Errorf("%w: fare_amount must be positive, got %v", ErrInvalidRecord, t.FareAmount)
	case t.TripDurationMinutes < 0:
		return fmt.Errorf("%w: trip_duration_minutes is negative", ErrInvalidRecord)
	}

	switch t.StoreAndFwdFlag {
	case FlagYes, FlagNo, FlagUnknown:
	default:
		return fmt.Errorf("%w: store_and_fwd_flag %q", ErrInvalidRecord, t.StoreAndFwdFlag)
	}
	return nil
}

func (t TripRecord) measures() map[string]float64 {
	return map[string]float64{
		"trip_distance":         t.TripDistance,
		"fare_amount":           t.FareAmount,
		"extra":                 t.Extra,
		"mta_tax":               t.MTATax,
		"tip_amount":            t.TipAmount,
		"tolls_amount":          t.TollsAmount,
		"improvement_surcharge": t.ImprovementSurcharge,
		"total_amount":          t.TotalAmount,
		"congestion_surcharge":  t.CongestionSurcharge,
		"airport_fee":           t.AirportFee,
		"trip_duration_minutes": t.TripDurationMinutes,
	}
}

// Raw converts the record back into the staged-file field set, so cleaned
// output can be fed through the pipeline again.
func (t TripRecord) Raw() RawRecord {
	return RawRecord{
		"vendor_id":             float64(t.VendorID),
		"tpep_pickup_datetime":  t.PickupTime.UTC().Format(time.RFC3339Nano),
		"tpep_dropoff_datetime": t.DropoffTime.UTC().Format(time.RFC3339Nano),
		"passenger_count":       float64(t.PassengerCount),
		"trip_distance":         t.TripDistance,
		"ratecodeid":            float64(t.RateCodeID),
		"store_and_fwd_flag":    t.StoreAndFwdFlag,
		"pulocationid":          float64(t.PULocationID),
		"dolocationid":          float64(t.DOLocationID),
		"payment_type":          float64(t.PaymentType),
		"fare_amount":           t.FareAmount,
		"extra":                 t.Extra,
		"mta_tax":               t.MTATax,
		"tip_amount":            t.TipAmount,
		"tolls_amount":          t.TollsAmount,
		"improvement_surcharge": t.ImprovementSurcharge,
		"total_amount":          t.TotalAmount,
		"congestion_surcharge":  t.CongestionSurcharge,
		"airport_fee":           t.AirportFee,
	}
}
