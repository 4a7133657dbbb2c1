package dispatch

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

var CounterQueries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "greyhound",
		Subsystem: "batch",
		Name:      "queries_total",
		Help:      "Batch gather queries by outcome.",
	},
	[]string{"outcome"},
)

var HistogramQueryDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "greyhound",
		Subsystem: "batch",
		Name:      "query_duration_seconds",
		Help:      "Time spent on one batch gather query.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	},
)

func init() {
	prometheus.MustRegister(CounterQueries)
	prometheus.MustRegister(HistogramQueryDuration)
}
