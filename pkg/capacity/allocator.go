package capacity

import (
	"context"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
)

// Allocator packs operation units into a pool and dispatches them.
type Allocator struct {
	dispatcher telemetry.Dispatcher
	clock      clock.PassiveClock
}

func NewAllocator(dispatcher telemetry.Dispatcher, clk clock.PassiveClock) *Allocator {
	return &Allocator{dispatcher: dispatcher, clock: clk}
}

// Allocate walks the pool largest node first, placing as many of the
// requested units on each node as fit, one dispatch per node. Accepted
// dispatches charge the node in place so later requests in the same pass
// see the reduced capacity. A rejected dispatch is logged and the walk
// moves on; it is not retried.
//
// Placing fewer units than requested is not an error: the remainder is
// simply recomputed from live state next cycle.
func (a *Allocator) Allocate(ctx context.Context, req apis.OperationRequest, pool *Pool) []apis.Dispatch {
	remaining := req.Units
	var out []apis.Dispatch

	for _, n := range pool.nodes {
		if remaining <= 0 {
			break
		}
		fit := pool.fit(n)
		if fit == 0 {
			continue
		}
		units := min(remaining, fit)

		handle, err := a.dispatcher.Dispatch(ctx, req.Kind, n.ID, req.Target, units)
		if err != nil {
			klog.Warningf("Dispatch %s x%d against %s on %s failed: %v", req.Kind, units, req.Target, n.ID, err)
			dispatchRejections.WithLabelValues(string(req.Kind)).Inc()
			continue
		}

		pool.take(n, units)
		remaining -= units
		out = append(out, apis.Dispatch{
			Handle:       handle,
			Node:         n.ID,
			Target:       req.Target,
			Kind:         req.Kind,
			Units:        units,
			DispatchedAt: a.clock.Now(),
		})
		unitsDispatched.WithLabelValues(string(req.Kind)).Add(float64(units))
		klog.V(5).Infof("Placed %s x%d against %s on %s (pid %d)", req.Kind, units, req.Target, n.ID, handle)
	}

	if remaining > 0 && req.Units > 0 {
		unitsUnplaced.WithLabelValues(string(req.Kind)).Add(float64(remaining))
		klog.V(4).Infof("%s: %d of %d %s units left unplaced", req.Target, remaining, req.Units, req.Kind)
	}
	return out
}

// AllocateAll runs one allocation per request in the given order. Each is
// independent: a request that places nothing does not stop the next one.
func (a *Allocator) AllocateAll(ctx context.Context, reqs []apis.OperationRequest, pool *Pool) []apis.Dispatch {
	var out []apis.Dispatch
	for _, r := range reqs {
		out = append(out, a.Allocate(ctx, r, pool)...)
	}
	return out
}

// Placed sums the units across dispatches.
func Placed(ds []apis.Dispatch) int {
	n := 0
	for _, d := range ds {
		n += d.Units
	}
	return n
}
