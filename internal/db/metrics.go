package db

import "github.com/prometheus/client_golang/prometheus"

// The vectors are built at declaration rather than inside InitMetrics so
// store code can label them even when nothing registered a collector, as
// in tests.
var (
	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statsapp",
			Name:      "events_ingested_total",
			Help:      "Events offered for ingestion, by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)
	partitionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statsapp",
			Name:      "partitions_created_total",
			Help:      "Partitions of the requests table created on demand.",
		},
		[]string{"granularity"},
	)
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statsapp",
			Name:      "query_duration_seconds",
			Help:      "Histogram of count query latency by active filter classes.",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 300},
		},
		[]string{"filters"},
	)
)

// InitMetrics registers the store's collectors on the default Prometheus
// registry. Call once at startup.
func InitMetrics() {
	prometheus.MustRegister(eventsIngested, partitionsCreated, queryDuration)
}
