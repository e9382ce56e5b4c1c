package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scheduleCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_schedule_cycles_total",
			Help: "Scheduling cycles by outcome",
		},
		[]string{"outcome"},
	)

	scheduleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_schedule_cycle_duration_seconds",
			Help:    "Time spent in one scheduling cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)

	statusCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_status_cycles_total",
			Help: "Status cycles by outcome",
		},
		[]string{"outcome"},
	)

	poolFreeGB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_pool_free_gb",
			Help: "Free capacity offered to the last scheduling cycle",
		},
	)

	poolNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_pool_nodes",
			Help: "Nodes admitted to the last scheduling cycle's pool",
		},
	)
)
