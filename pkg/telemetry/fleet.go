package telemetry

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
)

// CollectTargets reads every id that names a target. Ids the host does
// not know as targets are skipped; any other failure aborts.
func CollectTargets(ctx context.Context, c Collector, ids []string) ([]apis.TargetState, error) {
	out := make([]apis.TargetState, 0, len(ids))
	for _, id := range ids {
		t, err := c.Target(ctx, id)
		if errors.Is(err, ErrUnknownTarget) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query target %s: %w", id, err)
		}
		out = append(out, *t)
	}
	return out, nil
}

// CollectNodes reads every id that names a capacity node. Nodes that fail
// to answer are logged and left out so one bad host does not empty the
// pool.
func CollectNodes(ctx context.Context, c Collector, ids []string) []apis.NodeState {
	out := make([]apis.NodeState, 0, len(ids))
	for _, id := range ids {
		n, err := c.Node(ctx, id)
		if errors.Is(err, ErrUnknownNode) {
			continue
		}
		if err != nil {
			klog.Warningf("Failed to query node %s: %v", id, err)
			continue
		}
		out = append(out, *n)
	}
	return out
}

// ListFleetProcesses lists live processes across all nodes. A node whose
// listing fails aborts the call: pruning against a partial live set would
// drop operations that are still running.
func ListFleetProcesses(ctx context.Context, l ProcessLister, nodes []string) ([]apis.Process, error) {
	var out []apis.Process
	for _, n := range nodes {
		procs, err := l.ListProcesses(ctx, n)
		if errors.Is(err, ErrUnknownNode) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list processes on %s: %w", n, err)
		}
		out = append(out, procs...)
	}
	return out, nil
}
