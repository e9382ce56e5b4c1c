package capacity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_units_dispatched_total",
			Help: "Operation units accepted by the host, by kind",
		},
		[]string{"kind"},
	)

	dispatchRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_dispatch_rejections_total",
			Help: "Dispatch requests the host refused, by kind",
		},
		[]string{"kind"},
	)

	unitsUnplaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_units_unplaced_total",
			Help: "Requested units left unplaced at the end of an allocation, by kind",
		},
		[]string{"kind"},
	)
)
