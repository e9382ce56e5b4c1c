package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	targetScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_target_score",
			Help: "Latest score per ranked target",
		},
		[]string{"target"},
	)

	plansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_plans_total",
			Help: "Per-target plans by phase",
		},
		[]string{"phase"},
	)
)
