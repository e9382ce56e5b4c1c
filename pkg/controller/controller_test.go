package controller_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	testingclock "k8s.io/utils/clock/testing"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/capacity"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/controller"
	"github.com/cheeseonhead/bb-for-fun/pkg/decision"
	"github.com/cheeseonhead/bb-for-fun/pkg/port"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry/fake"
)

type harness struct {
	host  *fake.Host
	clock *testingclock.FakeClock
	ports controller.Ports
	nodes *port.Writer
	ctrl  *controller.Controller
}

func testConfig() controller.Config {
	pool := func(r constants.Reservation) capacity.PoolOptions {
		return capacity.PoolOptions{ControlNode: "home", Reservation: r, UnitCostGB: 1.75}
	}
	return controller.Config{
		ScheduleInterval: 20 * time.Millisecond,
		StatusInterval:   10 * time.Millisecond,
		SchedulerPool:    pool(constants.ReserveScheduler),
		StatusPool:       pool(constants.ReserveStatus),
		Decision:         decision.DefaultConfig(),
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		host:  fake.NewHost(),
		clock: testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		ports: controller.Ports{
			Nodes:   port.New("nodes"),
			Ranking: port.New("ranking"),
			Status:  port.New("status"),
		},
	}
	h.host.SkillLevel = 10
	h.host.AddNode(apis.NodeState{ID: "home", TotalGB: 4096, Controlled: true, Owned: true})
	h.host.AddTarget(apis.TargetState{
		ID:            "t1",
		Integrity:     45,
		MinIntegrity:  5,
		Yield:         100,
		MaxYield:      10000,
		RequiredSkill: 1,
	})

	var err error
	if h.nodes, err = h.ports.Nodes.Claim("topology"); err != nil {
		t.Fatalf("claim nodes: %v", err)
	}
	if h.ctrl, err = controller.NewController(h.host, h.ports, h.clock, testConfig()); err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return h
}

func (h *harness) publishNodes(t *testing.T, ids ...string) {
	t.Helper()
	if err := h.nodes.Publish(&apis.NodeSet{Hosts: ids, PublishedAt: h.clock.Now()}); err != nil {
		t.Fatalf("publish nodes: %v", err)
	}
}

func (h *harness) schedule(t *testing.T) {
	t.Helper()
	if err := h.ctrl.ScheduleOnce(context.Background()); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
}

func (h *harness) status(t *testing.T) apis.StatusSnapshot {
	t.Helper()
	if err := h.ctrl.StatusOnce(context.Background()); err != nil {
		t.Fatalf("StatusOnce: %v", err)
	}
	var snap apis.StatusSnapshot
	if !h.ports.Status.Read(&snap) {
		t.Fatal("no status snapshot published")
	}
	return snap
}

func (h *harness) ranking(t *testing.T) apis.Ranking {
	t.Helper()
	var r apis.Ranking
	if !h.ports.Ranking.Read(&r) {
		t.Fatal("no ranking published")
	}
	return r
}

// finish completes every live process, applying fn to the target first.
func (h *harness) finish(fn func(*apis.TargetState)) {
	fn(h.host.Targets["t1"])
	for _, c := range h.host.AcceptedCalls() {
		h.host.Kill(c.Handle)
	}
}

func TestNewController_SecondClaimFails(t *testing.T) {
	h := newHarness(t)
	_, err := controller.NewController(h.host, h.ports, h.clock, testConfig())
	if !errors.Is(err, port.ErrWriterClaimed) {
		t.Fatalf("expected ErrWriterClaimed, got %v", err)
	}
}

func TestScheduleOnce_NoNodeSetIsNoOp(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.ScheduleOnce(context.Background())
	if !errors.Is(err, telemetry.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if len(h.host.Calls) != 0 {
		t.Errorf("dispatched without a node set: %+v", h.host.Calls)
	}
	var r apis.Ranking
	if h.ports.Ranking.Read(&r) {
		t.Error("ranking published on a no-op cycle")
	}

	if err := h.ctrl.StatusOnce(context.Background()); !errors.Is(err, telemetry.ErrNoData) {
		t.Fatalf("status: expected ErrNoData, got %v", err)
	}
}

func TestSchedule_StabilizeThenRestoreThenHarvest(t *testing.T) {
	h := newHarness(t)
	h.publishNodes(t, "home", "t1")

	// Cycle 1: integrity is 40 above the floor, so 800 stabilize units and
	// nothing else, even though yield is low.
	h.schedule(t)
	calls := h.host.AcceptedCalls()
	if len(calls) != 1 || calls[0].Kind != constants.Stabilize || calls[0].Units != 800 {
		t.Fatalf("cycle 1 calls = %+v, want one stabilize x800", calls)
	}
	if r := h.ranking(t); len(r.Targets) != 1 || r.Targets[0].Phase != constants.PhaseStabilize || r.Targets[0].Placed != 800 {
		t.Fatalf("cycle 1 ranking = %+v", r.Targets)
	}

	// Cycle 2: the stabilize units are still running.
	h.schedule(t)
	if n := len(h.host.AcceptedCalls()); n != 1 {
		t.Fatalf("cycle 2 re-dispatched covered demand: %d calls", n)
	}
	if r := h.ranking(t); r.Targets[0].Phase != constants.PhaseSaturated {
		t.Fatalf("cycle 2 phase = %s, want saturated", r.Targets[0].Phase)
	}

	// The stabilize batch lands; status prunes it.
	h.finish(func(t *apis.TargetState) { t.Integrity = t.MinIntegrity })
	h.status(t)
	if n := h.ctrl.Tracked(); n != 0 {
		t.Fatalf("tracked after completion = %d, want 0", n)
	}

	// Cycle 3: stabilize demand is zero, so restore goes out.
	h.schedule(t)
	calls = h.host.AcceptedCalls()
	wantRestore := int(math.Ceil(math.Log(100) / math.Log1p(0.01)))
	if len(calls) != 2 || calls[1].Kind != constants.Restore || calls[1].Units != wantRestore {
		t.Fatalf("cycle 3 calls = %+v, want restore x%d", calls, wantRestore)
	}

	h.finish(func(t *apis.TargetState) { t.Yield = t.MaxYield })
	h.status(t)

	// Cycle 4: stable, so one harvest batch in extract, restore, stabilize order.
	h.schedule(t)
	calls = h.host.AcceptedCalls()[2:]
	want := []constants.OperationKind{constants.Extract, constants.Restore, constants.Stabilize}
	if len(calls) != len(want) {
		t.Fatalf("cycle 4 calls = %+v", calls)
	}
	for i, k := range want {
		if calls[i].Kind != k {
			t.Errorf("harvest call %d = %s, want %s", i, calls[i].Kind, k)
		}
	}

	// Cycle 5: the batch is in flight.
	h.schedule(t)
	if n := len(h.host.AcceptedCalls()); n != 5 {
		t.Fatalf("cycle 5 dispatched again: %d calls", n)
	}
	if r := h.ranking(t); r.Targets[0].Phase != constants.PhaseBusy {
		t.Fatalf("cycle 5 phase = %s, want busy", r.Targets[0].Phase)
	}
}

func TestStatusOnce_AggregatesInFlightWork(t *testing.T) {
	h := newHarness(t)
	h.publishNodes(t, "home", "t1")
	h.schedule(t)

	h.clock.Step(400 * time.Millisecond)
	snap := h.status(t)

	if snap.Pool.Nodes != 1 {
		t.Errorf("pool nodes = %d, want 1", snap.Pool.Nodes)
	}
	// The fake host does not charge dispatched units against the node.
	if want := 4096 - 32.0; math.Abs(snap.Pool.FreeGB-want) > 1e-6 {
		t.Errorf("pool free = %v, want %v", snap.Pool.FreeGB, want)
	}
	if len(snap.Targets) != 1 {
		t.Fatalf("targets = %+v", snap.Targets)
	}
	ts := snap.Targets[0]
	if ts.Target != "t1" || ts.Stable || ts.Phase != constants.PhaseStabilize || ts.Score <= 0 {
		t.Errorf("target status = %+v", ts)
	}
	if math.Abs(ts.YieldPct-1) > 1e-9 {
		t.Errorf("yield pct = %v, want 1", ts.YieldPct)
	}
	if len(ts.Operations) != 1 {
		t.Fatalf("operations = %+v", ts.Operations)
	}
	op := ts.Operations[0]
	if op.Kind != constants.Stabilize || op.Processes != 1 || op.Units != 800 || op.MaxRemainingMs != 600 {
		t.Errorf("operation = %+v", op)
	}
}

func TestSchedule_ExhaustedPoolStarves(t *testing.T) {
	h := newHarness(t)
	// Only the reservation's worth of room on the control node.
	h.host.AddNode(apis.NodeState{ID: "home", TotalGB: 21, Controlled: true, Owned: true})
	h.publishNodes(t, "home", "t1")

	h.schedule(t)
	if len(h.host.Calls) != 0 {
		t.Fatalf("dispatched into an empty pool: %+v", h.host.Calls)
	}
	r := h.ranking(t)
	if len(r.Targets) != 1 {
		t.Fatalf("ranking = %+v", r.Targets)
	}
	if rt := r.Targets[0]; rt.Phase != constants.PhaseStarved || rt.Placed != 0 || rt.Unplaced != 800 {
		t.Errorf("ranked target = %+v", rt)
	}
}

func TestSchedule_RejectedDispatchLeavesBacklog(t *testing.T) {
	h := newHarness(t)
	h.host.AddNode(apis.NodeState{ID: "pserv-0", TotalGB: 1024, Controlled: true})
	h.host.Reject = func(_ constants.OperationKind, node, _ string, _ int) bool { return node == "home" }
	h.publishNodes(t, "home", "pserv-0", "t1")

	h.schedule(t)
	calls := h.host.AcceptedCalls()
	if len(calls) != 1 || calls[0].Node != "pserv-0" {
		t.Fatalf("accepted = %+v", calls)
	}
	rt := h.ranking(t).Targets[0]
	if rt.Placed != calls[0].Units || rt.Placed+rt.Unplaced != 800 {
		t.Errorf("ranked target = %+v", rt)
	}
}

func TestStatus_AdoptsUntrackedProcess(t *testing.T) {
	h := newHarness(t)
	h.publishNodes(t, "home", "t1")
	h.host.Processes["home"] = []apis.Process{{
		Handle: 900, Node: "home", Target: "t1", Kind: constants.Stabilize, Units: 800,
	}}

	snap := h.status(t)
	if n := h.ctrl.Tracked(); n != 1 {
		t.Fatalf("tracked = %d, want adopted process", n)
	}
	if len(snap.Targets) != 1 || len(snap.Targets[0].Operations) != 1 {
		t.Fatalf("snapshot = %+v", snap.Targets)
	}

	// The adopted units cover the stabilize demand.
	h.schedule(t)
	if len(h.host.Calls) != 0 {
		t.Errorf("dispatched despite adopted work: %+v", h.host.Calls)
	}
}

func TestSchedule_SkipsOwnedAndUnreachableTargets(t *testing.T) {
	h := newHarness(t)
	h.host.AddTarget(apis.TargetState{ID: "home", Integrity: 1, MinIntegrity: 1, MaxYield: 10})
	h.host.AddTarget(apis.TargetState{ID: "hard", Integrity: 1, MinIntegrity: 1, MaxYield: 10, RequiredSkill: 99})
	h.publishNodes(t, "home", "hard", "t1")

	h.schedule(t)
	r := h.ranking(t)
	if len(r.Targets) != 1 || r.Targets[0].Target != "t1" {
		t.Fatalf("ranking = %+v", r.Targets)
	}
}

func TestRun_PublishesUntilCancelled(t *testing.T) {
	h := newHarness(t)
	h.publishNodes(t, "home", "t1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	err := wait.PollUntilContextTimeout(context.Background(), 5*time.Millisecond, 5*time.Second, true,
		func(context.Context) (bool, error) {
			var snap apis.StatusSnapshot
			return h.ports.Status.Read(&snap), nil
		})
	if err != nil {
		t.Fatalf("no status published: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// interleavingHost runs a hook once, right after the first node listing,
// so work can land between the status cycle's listing and its reconcile.
type interleavingHost struct {
	*fake.Host
	afterList func()
}

func (h *interleavingHost) ListProcesses(ctx context.Context, node string) ([]apis.Process, error) {
	procs, err := h.Host.ListProcesses(ctx, node)
	if hook := h.afterList; hook != nil {
		h.afterList = nil
		hook()
	}
	return procs, err
}

func TestStatus_KeepsDispatchRecordedDuringListing(t *testing.T) {
	h := newHarness(t)
	h.publishNodes(t, "home", "t1")
	ctx := context.Background()

	host := &interleavingHost{Host: h.host}
	ports := controller.Ports{Nodes: h.ports.Nodes, Ranking: port.New("ranking"), Status: port.New("status")}
	ctrl, err := controller.NewController(host, ports, h.clock, testConfig())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	host.afterList = func() {
		if err := ctrl.ScheduleOnce(ctx); err != nil {
			t.Errorf("ScheduleOnce during listing: %v", err)
		}
	}

	if err := ctrl.StatusOnce(ctx); err != nil {
		t.Fatalf("StatusOnce: %v", err)
	}
	if n := len(h.host.AcceptedCalls()); n != 1 {
		t.Fatalf("accepted during listing = %d, want 1", n)
	}
	if n := ctrl.Tracked(); n != 1 {
		t.Fatalf("tracked after status = %d, want the running stabilize batch", n)
	}

	if err := ctrl.ScheduleOnce(ctx); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if calls := h.host.AcceptedCalls(); len(calls) != 1 {
		t.Fatalf("running batch dispatched again: %+v", calls)
	}

	// A later listing sees the process and keeps it.
	if err := ctrl.StatusOnce(ctx); err != nil {
		t.Fatalf("StatusOnce: %v", err)
	}
	if n := ctrl.Tracked(); n != 1 {
		t.Errorf("tracked = %d, want 1", n)
	}
}
