package statusapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_status_api_request_duration_seconds",
			Help:    "Time spent serving status API requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"path"},
	)

	requestsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_status_api_rate_limited_total",
			Help: "Number of status API requests rejected due to rate limiting",
		},
	)
)
