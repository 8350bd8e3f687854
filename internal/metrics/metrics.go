package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpoint_ingest_rows_total",
			Help: "Total number of normalized rows by outcome",
		},
		[]string{"outcome"}, // created, duplicate, rejected, failed
	)

	IngestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridpoint_ingest_bytes_total",
			Help: "Total bytes of upload payloads received",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridpoint_ingest_batch_duration_seconds",
			Help:    "Duration of bulk insert batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Job metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpoint_ingest_jobs_total",
			Help: "Total number of ingestion jobs by terminal status",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridpoint_ingest_job_duration_seconds",
			Help:    "Wall-clock duration of ingestion jobs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// Query gateway metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpoint_query_requests_total",
			Help: "Total scoped query requests by outcome",
		},
		[]string{"outcome"}, // ok, rejected, timeout, failed
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridpoint_query_duration_seconds",
			Help:    "Duration of scoped query execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridpoint_ingest_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"org"},
	)
)
