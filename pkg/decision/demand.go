package decision

import (
	"context"
	"fmt"
	"math"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
)

// unitEpsilon absorbs float noise such as 40/0.05 landing a hair above 800.
const unitEpsilon = 1e-9

// Demand is a count of operation units per kind for one target.
type Demand struct {
	Extract   int
	Restore   int
	Stabilize int
}

func (d Demand) Total() int { return d.Extract + d.Restore + d.Stabilize }

// Units returns the count for one kind.
func (d Demand) Units(kind constants.OperationKind) int {
	switch kind {
	case constants.Extract:
		return d.Extract
	case constants.Restore:
		return d.Restore
	case constants.Stabilize:
		return d.Stabilize
	}
	return 0
}

// Requests lists every kind in harvest order, zero counts included.
func (d Demand) Requests(target string) []apis.OperationRequest {
	out := make([]apis.OperationRequest, 0, len(constants.OperationKinds))
	for _, k := range constants.OperationKinds {
		out = append(out, apis.OperationRequest{Kind: k, Target: target, Units: d.Units(k)})
	}
	return out
}

// Calculator sizes stabilization and harvest demand against the host's
// effect model.
type Calculator struct {
	effects telemetry.EffectModel
}

func NewCalculator(effects telemetry.EffectModel) *Calculator {
	return &Calculator{effects: effects}
}

// StabilizationDemand returns the stabilize units needed to bring the
// target to its integrity floor and the restore units needed to refill
// its yield. Both are computed independently; Extract is always zero.
func (c *Calculator) StabilizationDemand(ctx context.Context, t apis.TargetState) (Demand, error) {
	var d Demand

	effect := c.effects.StabilizeEffect()
	if effect <= 0 {
		return d, fmt.Errorf("stabilize effect %v is not positive", effect)
	}
	d.Stabilize = ceilUnits(t.IntegrityGap() / effect)

	if t.Yield >= t.MaxYield*constants.StableYieldRatio {
		return d, nil
	}
	multiplier := t.MaxYield / math.Max(t.Yield, 1)
	units, err := c.effects.RestoreUnits(ctx, t.ID, multiplier)
	if err != nil {
		return d, fmt.Errorf("restore units for %s: %w", t.ID, err)
	}
	d.Restore = max(1, ceilUnits(units))
	return d, nil
}

// HarvestBatch sizes one harvest cycle extracting fraction of maximum
// yield. Its stabilize count only cancels the integrity the batch's own
// extract and restore units add.
func (c *Calculator) HarvestBatch(ctx context.Context, t apis.TargetState, fraction float64) (Demand, error) {
	var d Demand
	if fraction <= 0 || fraction >= 1 {
		return d, fmt.Errorf("extract fraction %v must be in (0,1)", fraction)
	}
	effect := c.effects.StabilizeEffect()
	if effect <= 0 {
		return d, fmt.Errorf("stabilize effect %v is not positive", effect)
	}

	perUnit, err := c.effects.ExtractFractionPerUnit(ctx, t.ID)
	if err != nil {
		return d, fmt.Errorf("extract fraction for %s: %w", t.ID, err)
	}
	d.Extract = 1
	if perUnit > 0 {
		d.Extract = max(1, floorUnits(fraction/perUnit))
	}

	units, err := c.effects.RestoreUnits(ctx, t.ID, 1/(1-fraction))
	if err != nil {
		return d, fmt.Errorf("restore units for %s: %w", t.ID, err)
	}
	d.Restore = ceilUnits(units)

	delta := float64(d.Extract)*c.effects.IntegrityCost(constants.Extract) +
		float64(d.Restore)*c.effects.IntegrityCost(constants.Restore)
	d.Stabilize = ceilUnits(delta / effect)
	return d, nil
}

func ceilUnits(x float64) int {
	if x <= unitEpsilon {
		return 0
	}
	return int(math.Ceil(x - unitEpsilon))
}

func floorUnits(x float64) int {
	if x <= 0 {
		return 0
	}
	return int(math.Floor(x + unitEpsilon))
}
