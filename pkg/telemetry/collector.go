package telemetry

import (
	"context"
	"errors"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
)

var (
	// ErrNoData means a collaborator has not produced anything to read yet.
	ErrNoData = errors.New("no data yet")
	// ErrUnknownTarget means the id does not name a target.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrUnknownNode means the id does not name a capacity node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDispatchRejected means the host refused an execution request.
	ErrDispatchRejected = errors.New("dispatch rejected")
)

// Collector is the read-only view of the host environment. Every call
// reflects live state; implementations must not memoize.
type Collector interface {
	// Skill is the actor's current capability level.
	Skill(ctx context.Context) (int, error)
	Target(ctx context.Context, id string) (*apis.TargetState, error)
	// SuccessChance is the probability in [0,1] that one extract succeeds.
	SuccessChance(ctx context.Context, id string) (float64, error)
	// Duration is the wall-clock time in ms one operation of kind takes
	// against the target right now.
	Duration(ctx context.Context, kind constants.OperationKind, id string) (float64, error)
	Node(ctx context.Context, id string) (*apis.NodeState, error)

	EffectModel
}

// EffectModel estimates what operation units do to a target.
type EffectModel interface {
	// StabilizeEffect is the integrity removed by one stabilize unit.
	StabilizeEffect() float64
	// IntegrityCost is the integrity added by one unit of kind.
	IntegrityCost(kind constants.OperationKind) float64
	// ExtractFractionPerUnit is the fraction of current yield one extract
	// unit removes.
	ExtractFractionPerUnit(ctx context.Context, id string) (float64, error)
	// RestoreUnits is how many restore units multiply the target's yield
	// by multiplier. The result may be fractional.
	RestoreUnits(ctx context.Context, id string, multiplier float64) (float64, error)
}

// Dispatcher starts execution processes on capacity nodes. A failed
// request returns an error wrapping ErrDispatchRejected and no handle.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind constants.OperationKind, node, target string, units int) (apis.Handle, error)
}

// ProcessLister enumerates the live execution processes on one node.
type ProcessLister interface {
	ListProcesses(ctx context.Context, node string) ([]apis.Process, error)
}

// Host is everything the scheduler needs from its environment.
type Host interface {
	Collector
	Dispatcher
	ProcessLister
}
