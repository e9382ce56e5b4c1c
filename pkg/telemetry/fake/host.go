// Package fake provides an in-memory telemetry.Host for tests.
package fake

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
)

// DispatchCall records one Dispatch invocation, accepted or not.
type DispatchCall struct {
	Kind     constants.OperationKind
	Node     string
	Target   string
	Units    int
	Handle   apis.Handle
	Rejected bool
}

// Host is a scriptable host. Fields may be set directly before use; tests
// that touch it from several goroutines should go through the methods.
type Host struct {
	mu sync.Mutex

	SkillLevel int
	Targets    map[string]*apis.TargetState
	Nodes      map[string]*apis.NodeState
	Chance     map[string]float64
	// Durations holds ms per kind; DefaultDurationMs is used when absent.
	Durations         map[string]map[constants.OperationKind]float64
	DefaultDurationMs float64

	Effect        float64
	Costs         map[constants.OperationKind]float64
	ExtractPer    float64
	GrowthPerUnit float64

	// Reject, when set, decides whether a dispatch is refused.
	Reject func(kind constants.OperationKind, node, target string, units int) bool
	// Processes per node; Dispatch appends here on success.
	Processes map[string][]apis.Process
	// ListErr, when set, is returned by ListProcesses for that node.
	ListErr map[string]error

	Calls      []DispatchCall
	nextHandle apis.Handle
}

// NewHost returns a host with the default effect model.
func NewHost() *Host {
	return &Host{
		Targets:           map[string]*apis.TargetState{},
		Nodes:             map[string]*apis.NodeState{},
		Chance:            map[string]float64{},
		Durations:         map[string]map[constants.OperationKind]float64{},
		DefaultDurationMs: 1000,
		Effect:            0.05,
		Costs: map[constants.OperationKind]float64{
			constants.Extract: 0.002,
			constants.Restore: 0.004,
		},
		ExtractPer:    0.01,
		GrowthPerUnit: 0.01,
		Processes:     map[string][]apis.Process{},
		ListErr:       map[string]error{},
		nextHandle:    1,
	}
}

// AddTarget registers a target with full success chance.
func (h *Host) AddTarget(t apis.TargetState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := t
	h.Targets[t.ID] = &cp
	if _, ok := h.Chance[t.ID]; !ok {
		h.Chance[t.ID] = 1
	}
}

// AddNode registers a capacity node.
func (h *Host) AddNode(n apis.NodeState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := n
	h.Nodes[n.ID] = &cp
}

// SetDuration pins the duration of kind against target.
func (h *Host) SetDuration(target string, kind constants.OperationKind, ms float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Durations[target] == nil {
		h.Durations[target] = map[constants.OperationKind]float64{}
	}
	h.Durations[target][kind] = ms
}

// Kill removes a process as if it exited.
func (h *Host) Kill(handle apis.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for node, procs := range h.Processes {
		kept := procs[:0]
		for _, p := range procs {
			if p.Handle != handle {
				kept = append(kept, p)
			}
		}
		h.Processes[node] = kept
	}
}

// AcceptedCalls returns the dispatches that were not rejected.
func (h *Host) AcceptedCalls() []DispatchCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []DispatchCall
	for _, c := range h.Calls {
		if !c.Rejected {
			out = append(out, c)
		}
	}
	return out
}

func (h *Host) Skill(context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.SkillLevel, nil
}

func (h *Host) Target(_ context.Context, id string) (*apis.TargetState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.Targets[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownTarget)
	}
	cp := *t
	return &cp, nil
}

func (h *Host) SuccessChance(_ context.Context, id string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Targets[id]; !ok {
		return 0, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownTarget)
	}
	return h.Chance[id], nil
}

func (h *Host) Duration(_ context.Context, kind constants.OperationKind, id string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Targets[id]; !ok {
		return 0, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownTarget)
	}
	if d, ok := h.Durations[id][kind]; ok {
		return d, nil
	}
	return h.DefaultDurationMs, nil
}

func (h *Host) Node(_ context.Context, id string) (*apis.NodeState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownNode)
	}
	cp := *n
	return &cp, nil
}

func (h *Host) StabilizeEffect() float64 { return h.Effect }

func (h *Host) IntegrityCost(kind constants.OperationKind) float64 { return h.Costs[kind] }

func (h *Host) ExtractFractionPerUnit(_ context.Context, id string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Targets[id]; !ok {
		return 0, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownTarget)
	}
	return h.ExtractPer, nil
}

func (h *Host) RestoreUnits(_ context.Context, id string, multiplier float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Targets[id]; !ok {
		return 0, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownTarget)
	}
	if multiplier <= 1 {
		return 0, nil
	}
	return math.Log(multiplier) / math.Log1p(h.GrowthPerUnit), nil
}

func (h *Host) Dispatch(_ context.Context, kind constants.OperationKind, node, target string, units int) (apis.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	call := DispatchCall{Kind: kind, Node: node, Target: target, Units: units}
	if h.Reject != nil && h.Reject(kind, node, target, units) {
		call.Rejected = true
		h.Calls = append(h.Calls, call)
		return 0, fmt.Errorf("%s on %s: %w", kind, node, telemetry.ErrDispatchRejected)
	}
	call.Handle = h.nextHandle
	h.nextHandle++
	h.Calls = append(h.Calls, call)
	h.Processes[node] = append(h.Processes[node], apis.Process{
		Handle: call.Handle,
		Node:   node,
		Target: target,
		Kind:   kind,
		Units:  units,
	})
	return call.Handle, nil
}

func (h *Host) ListProcesses(_ context.Context, node string) ([]apis.Process, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ListErr[node]; err != nil {
		return nil, err
	}
	if _, ok := h.Nodes[node]; !ok {
		return nil, fmt.Errorf("%s: %w", node, telemetry.ErrUnknownNode)
	}
	procs := append([]apis.Process(nil), h.Processes[node]...)
	sort.Slice(procs, func(i, j int) bool { return procs[i].Handle < procs[j].Handle })
	return procs, nil
}

var _ telemetry.Host = (*Host)(nil)
