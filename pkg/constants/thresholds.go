package constants

// This file centralizes the fixed thresholds of the readiness and scoring
// model.

const (
	// IntegrityTolerance is how far above its minimum a target's integrity
	// may sit and still count as stable.
	IntegrityTolerance = 0.1

	// StableYieldRatio is the fraction of maximum yield a target must hold
	// to count as stable. It is also the point at which restore demand
	// drops to zero.
	StableYieldRatio = 0.99

	// OneHourMs amortizes one-time stabilization cost in the target score.
	OneHourMs = 60 * 60 * 1000.0

	// DefaultUnitCostGB is the capacity one operation unit occupies.
	DefaultUnitCostGB = 1.75
)
