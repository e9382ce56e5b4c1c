package decision

import (
	"context"

	"k8s.io/klog/v2"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
)

// InFlight counts units already running against a target, per kind.
type InFlight map[constants.OperationKind]int

func (f InFlight) Total() int {
	n := 0
	for _, u := range f {
		n += u
	}
	return n
}

// Plan is what the scheduler should request for one target this cycle.
type Plan struct {
	Target   string
	Phase    constants.Phase
	Stable   bool
	Requests []apis.OperationRequest
}

// Units is the total number of units the plan requests.
func (p Plan) Units() int {
	n := 0
	for _, r := range p.Requests {
		n += r.Units
	}
	return n
}

// Engine routes a target to the stabilize, restore or harvest path.
type Engine struct {
	config Config
	demand *Calculator
}

func NewEngine(host telemetry.EffectModel, config Config) *Engine {
	return &Engine{
		config: config,
		demand: NewCalculator(host),
	}
}

// Decide builds the plan for one target from a fresh reading and the
// units already in flight against it.
//
// Stabilize always wins over restore: while the live reading still needs
// stabilize units, restore is not requested even if every stabilize unit
// is already running.
func (e *Engine) Decide(ctx context.Context, t apis.TargetState, inflight InFlight) (Plan, error) {
	plan := Plan{Target: t.ID, Stable: IsStable(t)}

	if plan.Stable {
		if busy := inflight.Total(); busy > 0 {
			klog.V(4).Infof("%s: stable but %d units still in flight", t.ID, busy)
			plan.Phase = constants.PhaseBusy
			return record(plan), nil
		}
		batch, err := e.demand.HarvestBatch(ctx, t, e.config.HarvestFraction)
		if err != nil {
			return plan, err
		}
		plan.Phase = constants.PhaseHarvest
		plan.Requests = batch.Requests(t.ID)
		klog.V(4).Infof("%s: harvest batch extract=%d restore=%d stabilize=%d",
			t.ID, batch.Extract, batch.Restore, batch.Stabilize)
		return record(plan), nil
	}

	need, err := e.demand.StabilizationDemand(ctx, t)
	if err != nil {
		return plan, err
	}

	kind, phase := constants.Restore, constants.PhaseRestore
	if need.Stabilize > 0 {
		kind, phase = constants.Stabilize, constants.PhaseStabilize
	}
	units := need.Units(kind) - inflight[kind]
	if units <= 0 {
		klog.V(4).Infof("%s: %s demand %d covered by in-flight units", t.ID, kind, need.Units(kind))
		plan.Phase = constants.PhaseSaturated
		return record(plan), nil
	}

	plan.Phase = phase
	plan.Requests = []apis.OperationRequest{{Kind: kind, Target: t.ID, Units: units}}
	klog.V(4).Infof("%s: %s %d units (integrity %.2f/%.2f, yield %.1f%%)",
		t.ID, kind, units, t.Integrity, t.MinIntegrity, t.YieldPct())
	return record(plan), nil
}

func record(p Plan) Plan {
	plansTotal.WithLabelValues(string(p.Phase)).Inc()
	return p
}
