package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

var CounterRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "greyhound",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	},
	[]string{"route", "code"},
)

var HistogramRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "greyhound",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route"},
)

func init() {
	prometheus.MustRegister(CounterRequests)
	prometheus.MustRegister(HistogramRequestDuration)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// collectStats records request counts and latency per route template.
func collectStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		HistogramRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		CounterRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}
