package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
)

// Duration ratios relative to one stabilize operation.
const (
	restoreDurationRatio = 0.8
	extractDurationRatio = 0.25
)

type host struct {
	spec   HostSpec
	target *apis.TargetState
	// baseUsedGB is capacity held by things outside the simulation.
	baseUsedGB float64
}

type process struct {
	apis.Process
	finishAt time.Time
}

// Host is an in-memory host environment. Processes run on the supplied
// clock; their effects land on the target when they finish.
type Host struct {
	mu    sync.Mutex
	clock clock.PassiveClock
	world World

	hosts      map[string]*host
	order      []string
	procs      map[apis.Handle]*process
	nextHandle apis.Handle
}

func NewHost(w World, clk clock.PassiveClock) *Host {
	h := &Host{
		clock:      clk,
		world:      w,
		hosts:      make(map[string]*host, len(w.Hosts)),
		procs:      make(map[apis.Handle]*process),
		nextHandle: 1,
	}
	for _, spec := range w.Hosts {
		hs := &host{spec: spec, baseUsedGB: spec.UsedGB}
		if t := spec.Target; t != nil {
			hs.target = &apis.TargetState{
				ID:            spec.ID,
				Integrity:     t.Integrity,
				MinIntegrity:  t.MinIntegrity,
				Yield:         t.Yield,
				MaxYield:      t.MaxYield,
				RequiredSkill: t.RequiredSkill,
			}
		}
		h.hosts[spec.ID] = hs
		h.order = append(h.order, spec.ID)
	}
	sort.Strings(h.order)
	return h
}

// HostIDs lists every host, sorted.
func (h *Host) HostIDs() []string {
	return append([]string(nil), h.order...)
}

func (h *Host) Skill(context.Context) (int, error) {
	return h.world.Skill, nil
}

func (h *Host) Target(_ context.Context, id string) (*apis.TargetState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settle()
	hs, err := h.lookupTarget(id)
	if err != nil {
		return nil, err
	}
	cp := *hs.target
	return &cp, nil
}

func (h *Host) SuccessChance(_ context.Context, id string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hs, err := h.lookupTarget(id)
	if err != nil {
		return 0, err
	}
	return hs.spec.Target.SuccessChance, nil
}

func (h *Host) Duration(_ context.Context, kind constants.OperationKind, id string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settle()
	hs, err := h.lookupTarget(id)
	if err != nil {
		return 0, err
	}
	return h.duration(kind, hs), nil
}

func (h *Host) Node(_ context.Context, id string) (*apis.NodeState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settle()
	hs, ok := h.hosts[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownNode)
	}
	return &apis.NodeState{
		ID:         id,
		TotalGB:    hs.spec.CapacityGB,
		UsedGB:     h.usedGB(id),
		Controlled: hs.spec.Controlled,
		Owned:      hs.spec.Owned,
	}, nil
}

func (h *Host) StabilizeEffect() float64 { return h.world.StabilizeEffect }

func (h *Host) IntegrityCost(kind constants.OperationKind) float64 {
	switch kind {
	case constants.Extract:
		return h.world.ExtractCost
	case constants.Restore:
		return h.world.RestoreCost
	}
	return 0
}

func (h *Host) ExtractFractionPerUnit(_ context.Context, id string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hs, err := h.lookupTarget(id)
	if err != nil {
		return 0, err
	}
	return h.extractPerUnit(hs), nil
}

func (h *Host) RestoreUnits(_ context.Context, id string, multiplier float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hs, err := h.lookupTarget(id)
	if err != nil {
		return 0, err
	}
	if multiplier <= 1 {
		return 0, nil
	}
	return math.Log(multiplier) / math.Log1p(h.growthPerUnit(hs)), nil
}

// Dispatch starts a process if the node is controlled and has room.
func (h *Host) Dispatch(_ context.Context, kind constants.OperationKind, node, target string, units int) (apis.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settle()

	reject := func(format string, args ...any) (apis.Handle, error) {
		return 0, fmt.Errorf("%s x%d on %s: %s: %w", kind, units, node, fmt.Sprintf(format, args...), telemetry.ErrDispatchRejected)
	}
	if !kind.Valid() || units <= 0 {
		return reject("bad request")
	}
	hs, ok := h.hosts[node]
	if !ok || !hs.spec.Controlled {
		return reject("node not under control")
	}
	tgt, err := h.lookupTarget(target)
	if err != nil {
		return reject("%v", err)
	}
	need := float64(units) * h.world.UnitCostGB
	if free := hs.spec.CapacityGB - h.usedGB(node); need > free+1e-9 {
		return reject("needs %.2fGB, %.2fGB free", need, free)
	}

	now := h.clock.Now()
	d := h.duration(kind, tgt)
	p := &process{
		Process: apis.Process{
			Handle: h.nextHandle,
			Node:   node,
			Target: target,
			Kind:   kind,
			Units:  units,
		},
		finishAt: now.Add(time.Duration(d * float64(time.Millisecond))),
	}
	h.nextHandle++
	h.procs[p.Handle] = p
	klog.V(5).Infof("sim: started %s x%d against %s on %s (pid %d, %.0fms)", kind, units, target, node, p.Handle, d)
	return p.Handle, nil
}

func (h *Host) ListProcesses(_ context.Context, node string) ([]apis.Process, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settle()
	if _, ok := h.hosts[node]; !ok {
		return nil, fmt.Errorf("%s: %w", node, telemetry.ErrUnknownNode)
	}
	var out []apis.Process
	for _, p := range h.procs {
		if p.Node == node {
			out = append(out, p.Process)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

// Kill ends a process without applying its effect.
func (h *Host) Kill(handle apis.Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.procs[handle]; !ok {
		return false
	}
	delete(h.procs, handle)
	return true
}

// settle applies every process that has finished by now, oldest first.
func (h *Host) settle() {
	now := h.clock.Now()
	var done []*process
	for _, p := range h.procs {
		if !p.finishAt.After(now) {
			done = append(done, p)
		}
	}
	sort.Slice(done, func(i, j int) bool {
		if !done[i].finishAt.Equal(done[j].finishAt) {
			return done[i].finishAt.Before(done[j].finishAt)
		}
		return done[i].Handle < done[j].Handle
	})
	for _, p := range done {
		delete(h.procs, p.Handle)
		if hs, ok := h.hosts[p.Target]; ok && hs.target != nil {
			h.apply(p.Kind, p.Units, hs)
		}
	}
}

func (h *Host) apply(kind constants.OperationKind, units int, hs *host) {
	t := hs.target
	n := float64(units)
	switch kind {
	case constants.Stabilize:
		t.Integrity = math.Max(t.MinIntegrity, t.Integrity-n*h.world.StabilizeEffect)
	case constants.Extract:
		frac := math.Min(1, n*h.extractPerUnit(hs))
		t.Yield = math.Max(0, t.Yield-t.Yield*frac)
		t.Integrity += n * h.world.ExtractCost
	case constants.Restore:
		grown := (t.Yield + n) * math.Pow(1+h.growthPerUnit(hs), n)
		t.Yield = math.Min(t.MaxYield, grown)
		t.Integrity += n * h.world.RestoreCost
	}
	klog.V(5).Infof("sim: %s x%d landed on %s (integrity %.3f, yield %.0f)", kind, units, t.ID, t.Integrity, t.Yield)
}

func (h *Host) duration(kind constants.OperationKind, hs *host) float64 {
	t := hs.target
	stab := hs.spec.Target.BaseStabilizeMs * (1 + (t.Integrity-t.MinIntegrity)/100)
	switch kind {
	case constants.Restore:
		return stab * restoreDurationRatio
	case constants.Extract:
		return stab * extractDurationRatio
	}
	return stab
}

func (h *Host) usedGB(node string) float64 {
	used := h.hosts[node].baseUsedGB
	for _, p := range h.procs {
		if p.Node == node {
			used += float64(p.Units) * h.world.UnitCostGB
		}
	}
	return used
}

func (h *Host) extractPerUnit(hs *host) float64 {
	if v := hs.spec.Target.ExtractPerUnit; v > 0 {
		return v
	}
	return h.world.ExtractPerUnit
}

func (h *Host) growthPerUnit(hs *host) float64 {
	if v := hs.spec.Target.GrowthPerUnit; v > 0 {
		return v
	}
	return h.world.GrowthPerUnit
}

func (h *Host) lookupTarget(id string) (*host, error) {
	hs, ok := h.hosts[id]
	if !ok || hs.target == nil {
		return nil, fmt.Errorf("%s: %w", id, telemetry.ErrUnknownTarget)
	}
	return hs, nil
}

var _ telemetry.Host = (*Host)(nil)
