package v1alpha1

// TargetState is a point-in-time reading of one target.
type TargetState struct {
	ID            string  `json:"id"`
	Integrity     float64 `json:"integrity"`
	MinIntegrity  float64 `json:"minIntegrity"`
	Yield         float64 `json:"yield"`
	MaxYield      float64 `json:"maxYield"`
	RequiredSkill int     `json:"requiredSkill"`
}

// IntegrityGap is how far integrity sits above its floor. Never negative.
func (t TargetState) IntegrityGap() float64 {
	if gap := t.Integrity - t.MinIntegrity; gap > 0 {
		return gap
	}
	return 0
}

// YieldPct is the current yield as a percentage of maximum.
func (t TargetState) YieldPct() float64 {
	if t.MaxYield <= 0 {
		return 0
	}
	return t.Yield / t.MaxYield * 100
}

// TargetScore is the scorer's estimate for one target.
type TargetScore struct {
	Target          string  `json:"target"`
	Score           float64 `json:"score"`
	ThroughputPerMs float64 `json:"throughputPerMs"`
	StabilizeTimeMs float64 `json:"stabilizeTimeMs"`
	RestoreTimeMs   float64 `json:"restoreTimeMs"`
}
