package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eprec_refresh_cycles_total",
		Help: "Refresh cycles by outcome status",
	}, []string{"status"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eprec_refresh_cycle_duration_seconds",
		Help:    "Wall time of refresh cycles",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})
)
