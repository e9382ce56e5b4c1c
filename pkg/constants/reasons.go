package constants

// Phase names the path the scheduler took for a target in one cycle.
type Phase string

const (
	PhaseStabilize Phase = "stabilize"
	PhaseRestore   Phase = "restore"
	PhaseHarvest   Phase = "harvest"
	// PhaseBusy means a harvest batch is still in flight.
	PhaseBusy Phase = "busy"
	// PhaseSaturated means demand is already covered by in-flight units.
	PhaseSaturated Phase = "saturated"
	// PhaseStarved means the pool ran out before the target was reached.
	PhaseStarved Phase = "starved"
)

// Cycle outcomes used as metric labels.
const (
	OutcomeOK     = "ok"
	OutcomeNoData = "no_data"
	OutcomeError  = "error"
	OutcomePanic  = "panic"
)
