package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tripflow"

// Metrics holds all Prometheus metrics for the ingest and query services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FilesTotal        *prometheus.CounterVec
	RecordsRead       prometheus.Counter
	RecordsCleaned    prometheus.Counter
	RecordsDropped    *prometheus.CounterVec
	RecordsStored     prometheus.Counter
	RecordsFailed     prometheus.Counter
	DeadLettered      prometheus.Counter
	RunDuration       prometheus.Histogram
	AppendLatency     prometheus.Histogram
	RequestsTotal     *prometheus.CounterVec
	RateLimited       prometheus.Counter
	PageSize          prometheus.Histogram
	APIKeyCacheHits   prometheus.Counter
	APIKeyCacheMisses prometheus.Counter
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Total number of staged files processed by status.",
		}, []string{"status"}), // status: ok, failed
		RecordsRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_read_total",
			Help:      "Total number of raw records read from staged files.",
		}),
		RecordsCleaned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_cleaned_total",
			Help:      "Total number of records that survived cleaning.",
		}),
		RecordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_dropped_total",
			Help:      "Total number of records removed by each cleaning stage.",
		}, []string{"stage"}),
		RecordsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records_stored_total",
			Help:      "Total number of trip records persisted.",
		}),
		RecordsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records_failed_total",
			Help:      "Total number of trip records the store rejected.",
		}),
		DeadLettered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "dead_letters_total",
			Help:      "Total number of rejected records written to the dead-letter log.",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "append_duration_seconds",
			Help:      "Latency of single-record append transactions.",
			Buckets:   prometheus.DefBuckets,
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of read API requests by response code.",
		}, []string{"code"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		}),
		PageSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "page_size_records",
			Help:      "Number of records returned per page.",
			Buckets:   []float64{0, 1, 10, 50, 100, 250, 500},
		}),
		APIKeyCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_hits_total",
			Help:      "Total number of API key cache hits.",
		}),
		APIKeyCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_misses_total",
			Help:      "Total number of API key cache misses.",
		}),
	}
}

// ObserveDropped adds the per-stage drop counts of one cleaned batch.
func (m *Metrics) ObserveDropped(dropped map[string]int) {
	if m == nil {
		return
	}
	for stage, n := range dropped {
		m.RecordsDropped.WithLabelValues(stage).Add(float64(n))
	}
}
