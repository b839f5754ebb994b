// Package cleaner turns raw staged records into canonical trips.
//
// Cleaning is an ordered list of pure stages. Every stage receives a batch it
// must not modify and returns a new one; the order is fixed because later
// stages rely on the normalization done by earlier ones.
package cleaner

import (
	"log/slog"

	"github.com/V4T54L/tripflow/internal/domain"
)

// Stage names, in execution order.
const (
	StageNormalizeColumns = "normalize_columns"
	StageParseTimestamps  = "parse_timestamps"
	StageImputeMissing    = "impute_missing"
	StageDropDuplicates   = "drop_duplicates"
	StageDomainFilters    = "domain_filters"
	StageOutliersDistance = "outliers_trip_distance"
	StageOutliersFare     = "outliers_fare_amount"
	StageCoerceCategories = "coerce_categoricals"
	StageNormalizeFlag    = "normalize_flag"
	StageComputeDuration  = "compute_duration"
)

// Row is one record between stages, keyed by canonical column name.
type Row map[string]any

// Batch is the unit every stage consumes and produces.
type Batch []Row

// Bounds is the inclusive interval an outlier stage kept values within.
type Bounds struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether v lies inside the bounds.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Result is the outcome of cleaning one batch.
type Result struct {
	Records []domain.TripRecord
	// Dropped counts removed records per stage name. Stages that removed
	// nothing are absent.
	Dropped map[string]int
	// Bounds holds the outlier interval used for each column, when the
	// column had values to compute one from.
	Bounds map[string]Bounds
}

// DroppedTotal sums Dropped.
func (r Result) DroppedTotal() int {
	n := 0
	for _, v := range r.Dropped {
		n += v
	}
	return n
}

type stage struct {
	name  string
	apply func(Batch) (Batch, *Bounds)
}

// Cleaner runs the cleaning stages over raw batches. It holds no state
// between calls and is safe for concurrent use.
type Cleaner struct {
	logger *slog.Logger
	stages []stage
}

// New returns a Cleaner with the standard stage order.
func New(logger *slog.Logger) *Cleaner {
	return &Cleaner{
		logger: logger.With("component", "cleaner"),
		stages: []stage{
			{StageNormalizeColumns, plain(normalizeColumns)},
			{StageParseTimestamps, plain(parseTimestamps)},
			{StageImputeMissing, plain(imputeMissing)},
			{StageDropDuplicates, plain(dropDuplicates)},
			{StageDomainFilters, plain(domainFilters)},
			{StageOutliersDistance, iqrFilter(colTripDistance)},
			{StageOutliersFare, iqrFilter(colFareAmount)},
			{StageCoerceCategories, plain(coerceCategoricals)},
			{StageNormalizeFlag, plain(normalizeFlag)},
			{StageComputeDuration, plain(computeDuration)},
		},
	}
}

func plain(fn func(Batch) Batch) func(Batch) (Batch, *Bounds) {
	return func(b Batch) (Batch, *Bounds) { return fn(b), nil }
}

// Clean applies every stage to raw and converts the survivors to trips, in
// their original relative order.
func (c *Cleaner) Clean(raw []domain.RawRecord) Result {
	res := Result{
		Dropped: make(map[string]int),
		Bounds:  make(map[string]Bounds),
	}

	batch := make(Batch, len(raw))
	for i, r := range raw {
		batch[i] = Row(r)
	}

	for _, st := range c.stages {
		in := len(batch)
		out, bounds := st.apply(batch)
		if bounds != nil {
			res.Bounds[columnOf(st.name)] = *bounds
		}
		if dropped := in - len(out); dropped > 0 {
			res.Dropped[st.name] = dropped
		}
		batch = out
	}

	res.Records = make([]domain.TripRecord, 0, len(batch))
	for _, row := range batch {
		res.Records = append(res.Records, toTrip(row))
	}

	c.logger.Debug("Batch cleaned", "input", len(raw), "output", len(res.Records), "dropped", res.Dropped)
	return res
}

func columnOf(stageName string) string {
	switch stageName {
	case StageOutliersDistance:
		return colTripDistance
	case StageOutliersFare:
		return colFareAmount
	default:
		return stageName
	}
}
