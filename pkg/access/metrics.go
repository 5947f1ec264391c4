package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eprec_access_wait_seconds",
		Help:    "Time spent waiting for the dataset gate",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"purpose"})

	holdSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eprec_access_hold_seconds",
		Help:    "Time the dataset gate was held",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"purpose"})
)
