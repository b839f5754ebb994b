package cleaner

import (
	"maps"
	"strings"
	"time"

	"github.com/V4T54L/tripflow/internal/domain"
)

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// normalizeColumns renames fields to canonical names and keeps only the
// canonical field set.
func normalizeColumns(in Batch) Batch {
	out := make(Batch, len(in))
	for i, row := range in {
		next := make(Row, len(canonicalColumns))
		var aliased map[string]any
		for k, v := range row {
			name := normalizeName(k)
			if _, ok := canonicalSet[name]; ok {
				next[name] = v
				continue
			}
			if target, ok := aliases[name]; ok {
				if aliased == nil {
					aliased = make(map[string]any)
				}
				aliased[target] = v
			}
		}
		for k, v := range aliased {
			if _, ok := next[k]; !ok {
				next[k] = v
			}
		}
		out[i] = next
	}
	return out
}

// parseTimestamps replaces pickup and dropoff with time.Time, or nil when
// the value cannot be parsed.
func parseTimestamps(in Batch) Batch {
	out := make(Batch, len(in))
	for i, row := range in {
		next := maps.Clone(row)
		for _, col := range timestampColumns {
			if ts, ok := parseTime(row[col]); ok {
				next[col] = ts
			} else {
				next[col] = nil
			}
		}
		out[i] = next
	}
	return out
}

// imputeMissing fills numeric columns with domain.Missing, passenger count
// with the batch median and text columns with "UNKNOWN".
func imputeMissing(in Batch) Batch {
	var passengers []float64
	for _, row := range in {
		if n, ok := parseNumber(row[colPassengerCount]); ok {
			passengers = append(passengers, n)
		}
	}
	passengerFill := float64(domain.Missing)
	if len(passengers) > 0 {
		passengerFill = float64(int64(median(passengers)))
	}

	out := make(Batch, len(in))
	for i, row := range in {
		next := maps.Clone(row)
		for _, col := range numericColumns {
			if n, ok := parseNumber(row[col]); ok {
				next[col] = n
				continue
			}
			if col == colPassengerCount {
				next[col] = passengerFill
			} else {
				next[col] = float64(domain.Missing)
			}
		}
		for _, col := range textColumns {
			if s, ok := toText(row[col]); ok {
				next[col] = s
			} else {
				next[col] = domain.FlagUnknown
			}
		}
		out[i] = next
	}
	return out
}

func dropDuplicates(in Batch) Batch {
	seen := make(map[string]struct{}, len(in))
	out := make(Batch, 0, len(in))
	for _, row := range in {
		key := fingerprint(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}

func domainFilters(in Batch) Batch {
	out := make(Batch, 0, len(in))
	for _, row := range in {
		if dist, _ := row[colTripDistance].(float64); dist <= 0 {
			continue
		}
		if fare, _ := row[colFareAmount].(float64); fare <= 0 {
			continue
		}
		pickup, okP := row[colPickup].(time.Time)
		dropoff, okD := row[colDropoff].(time.Time)
		if okP && okD && !pickup.Before(dropoff) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// iqrFilter drops rows whose col value lies outside the batch's IQR fence.
func iqrFilter(col string) func(Batch) (Batch, *Bounds) {
	return func(in Batch) (Batch, *Bounds) {
		values := make([]float64, 0, len(in))
		for _, row := range in {
			values = append(values, row[col].(float64))
		}
		bounds, ok := iqrBounds(values)
		if !ok {
			return in, nil
		}

		out := make(Batch, 0, len(in))
		for i, row := range in {
			if bounds.Contains(values[i]) {
				out = append(out, row)
			}
		}
		return out, &bounds
	}
}

func coerceCategoricals(in Batch) Batch {
	out := make(Batch, len(in))
	for i, row := range in {
		next := maps.Clone(row)
		for _, col := range categoricalColumns {
			if n, ok := toInteger(row[col]); ok {
				next[col] = n
			} else {
				next[col] = int64(domain.Missing)
			}
		}
		out[i] = next
	}
	return out
}

func normalizeFlag(in Batch) Batch {
	out := make(Batch, len(in))
	for i, row := range in {
		next := maps.Clone(row)
		s, _ := row[colStoreAndFwdFlag].(string)
		switch flag := strings.ToUpper(strings.TrimSpace(s)); flag {
		case domain.FlagYes, domain.FlagNo:
			next[colStoreAndFwdFlag] = flag
		default:
			next[colStoreAndFwdFlag] = domain.FlagUnknown
		}
		out[i] = next
	}
	return out
}

// computeDuration adds the trip length in minutes. Rows with a missing
// timestamp or a negative duration are dropped.
func computeDuration(in Batch) Batch {
	out := make(Batch, 0, len(in))
	for _, row := range in {
		pickup, okP := row[colPickup].(time.Time)
		dropoff, okD := row[colDropoff].(time.Time)
		if !okP || !okD {
			continue
		}
		minutes := dropoff.Sub(pickup).Minutes()
		if minutes < 0 {
			continue
		}
		next := maps.Clone(row)
		next[colDuration] = minutes
		out = append(out, next)
	}
	return out
}

func toTrip(row Row) domain.TripRecord {
	num := func(col string) float64 {
		f, _ := row[col].(float64)
		return f
	}
	cat := func(col string) int64 {
		n, _ := row[col].(int64)
		return n
	}
	pickup, _ := row[colPickup].(time.Time)
	dropoff, _ := row[colDropoff].(time.Time)
	flag, _ := row[colStoreAndFwdFlag].(string)

	return domain.TripRecord{
		VendorID:             cat(colVendorID),
		PickupTime:           pickup,
		DropoffTime:          dropoff,
		PassengerCount:       cat(colPassengerCount),
		TripDistance:         num(colTripDistance),
		RateCodeID:           cat(colRateCodeID),
		StoreAndFwdFlag:      flag,
		PULocationID:         cat(colPULocationID),
		DOLocationID:         cat(colDOLocationID),
		PaymentType:          cat(colPaymentType),
		FareAmount:           num(colFareAmount),
		Extra:                num(colExtra),
		MTATax:               num(colMTATax),
		TipAmount:            num(colTipAmount),
		TollsAmount:          num(colTollsAmount),
		ImprovementSurcharge: num(colImprovementSurcharge),
		TotalAmount:          num(colTotalAmount),
		CongestionSurcharge:  num(colCongestionSurcharge),
		AirportFee:           num(colAirportFee),
		TripDurationMinutes:  num(colDuration),
	}
}
