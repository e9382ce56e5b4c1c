package decision

import (
	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
)

// IsStable reports whether a target is ready to harvest: integrity within
// tolerance of its floor and yield at (nearly) maximum. Callers pass a
// fresh reading every time.
func IsStable(t apis.TargetState) bool {
	return t.Integrity <= t.MinIntegrity+constants.IntegrityTolerance &&
		t.Yield >= t.MaxYield*constants.StableYieldRatio
}
