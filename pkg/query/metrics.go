package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eprec_queries_total",
		Help: "Aggregation queries by endpoint and result",
	}, []string{"endpoint", "result"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eprec_query_duration_seconds",
		Help:    "Successful aggregation query latency including gate wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// observe counts a query; start is only used for successful ones.
func observe(endpoint, result string, start time.Time) {
	queriesTotal.WithLabelValues(endpoint, result).Inc()
	if result == "ok" && !start.IsZero() {
		queryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
