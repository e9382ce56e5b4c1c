package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trackedProcesses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_tracked_processes",
			Help: "Processes currently tracked",
		},
	)

	inflightUnits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_inflight_units",
			Help: "Units running at the last reconcile, by kind",
		},
		[]string{"kind"},
	)

	prunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_tracker_pruned_total",
			Help: "Tracked processes removed after leaving the live set",
		},
	)

	adoptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_tracker_adopted_total",
			Help: "Live processes adopted without a dispatch record",
		},
	)
)
