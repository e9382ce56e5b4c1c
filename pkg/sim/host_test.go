package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/port"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
)

func loadTestHost(t *testing.T) (*Host, *testingclock.FakeClock) {
	t.Helper()
	w, err := LoadWorld("testdata/world.yaml")
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewHost(*w, clk), clk
}

func TestLoadWorld_DefaultsAndOverrides(t *testing.T) {
	w, err := LoadWorld("testdata/world.yaml")
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if w.UnitCostGB != 2 {
		t.Errorf("unit cost = %v, want file value 2", w.UnitCostGB)
	}
	if w.ExtractCost != 0.002 {
		t.Errorf("extract cost = %v, want default 0.002", w.ExtractCost)
	}
	if len(w.Hosts) != 4 || w.Hosts[3].Target == nil {
		t.Fatalf("hosts = %+v", w.Hosts)
	}
}

func TestWorld_Validate(t *testing.T) {
	w := DefaultWorld()
	w.Hosts = []HostSpec{{ID: "a"}, {ID: "a"}}
	if err := w.Validate(); err == nil {
		t.Error("duplicate host accepted")
	}

	w.Hosts = []HostSpec{{ID: "a", Target: &TargetSpec{Integrity: 1, MinIntegrity: 2, BaseStabilizeMs: 1}}}
	if err := w.Validate(); err == nil {
		t.Error("integrity below minimum accepted")
	}
}

func TestHost_QueriesReflectWorld(t *testing.T) {
	h, _ := loadTestHost(t)
	ctx := context.Background()

	tgt, err := h.Target(ctx, "joesguns")
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if tgt.Integrity != 15 || tgt.MaxYield != 10000 || tgt.RequiredSkill != 10 {
		t.Errorf("target = %+v", tgt)
	}
	if _, err := h.Target(ctx, "home"); !errors.Is(err, telemetry.ErrUnknownTarget) {
		t.Errorf("home as target err = %v", err)
	}

	// 10s base, 10 above floor -> 11s.
	if d, _ := h.Duration(ctx, constants.Stabilize, "joesguns"); math.Abs(d-11000) > 1e-9 {
		t.Errorf("stabilize duration = %v, want 11000", d)
	}
	if d, _ := h.Duration(ctx, constants.Extract, "joesguns"); math.Abs(d-2750) > 1e-9 {
		t.Errorf("extract duration = %v, want 2750", d)
	}

	n, err := h.Node(ctx, "home")
	if err != nil || n.TotalGB != 64 || n.UsedGB != 4 || !n.Controlled || !n.Owned {
		t.Errorf("home = %+v, %v", n, err)
	}
	if n, _ := h.Node(ctx, "foreign"); n.Controlled {
		t.Error("foreign reported as controlled")
	}
}

func TestHost_DispatchChargesCapacityAndRejects(t *testing.T) {
	h, _ := loadTestHost(t)
	ctx := context.Background()

	pid, err := h.Dispatch(ctx, constants.Stabilize, "pserv-0", "joesguns", 4)
	if err != nil || pid == 0 {
		t.Fatalf("Dispatch: %v, pid %d", err, pid)
	}
	if n, _ := h.Node(ctx, "pserv-0"); n.UsedGB != 8 {
		t.Errorf("used = %v, want 8", n.UsedGB)
	}

	if _, err := h.Dispatch(ctx, constants.Stabilize, "pserv-0", "joesguns", 1); !errors.Is(err, telemetry.ErrDispatchRejected) {
		t.Errorf("full node err = %v", err)
	}
	if _, err := h.Dispatch(ctx, constants.Stabilize, "foreign", "joesguns", 1); !errors.Is(err, telemetry.ErrDispatchRejected) {
		t.Errorf("foreign node err = %v", err)
	}
	if _, err := h.Dispatch(ctx, constants.Stabilize, "home", "home", 1); !errors.Is(err, telemetry.ErrDispatchRejected) {
		t.Errorf("non-target err = %v", err)
	}

	procs, err := h.ListProcesses(ctx, "pserv-0")
	if err != nil || len(procs) != 1 || procs[0].Handle != pid || procs[0].Kind != constants.Stabilize {
		t.Fatalf("processes = %+v, %v", procs, err)
	}
}

func TestHost_EffectsLandOnCompletion(t *testing.T) {
	h, clk := loadTestHost(t)
	ctx := context.Background()

	if _, err := h.Dispatch(ctx, constants.Stabilize, "home", "joesguns", 10); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	clk.Step(10 * time.Second)
	if tgt, _ := h.Target(ctx, "joesguns"); tgt.Integrity != 15 {
		t.Fatalf("integrity moved before completion: %v", tgt.Integrity)
	}

	clk.Step(2 * time.Second)
	tgt, _ := h.Target(ctx, "joesguns")
	if math.Abs(tgt.Integrity-10) > 1e-9 {
		t.Fatalf("integrity = %v, want 10", tgt.Integrity)
	}
	if procs, _ := h.ListProcesses(ctx, "home"); len(procs) != 0 {
		t.Fatalf("finished process still listed: %+v", procs)
	}

	if _, err := h.Dispatch(ctx, constants.Stabilize, "home", "joesguns", 29); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	clk.Step(time.Minute)
	if tgt, _ := h.Target(ctx, "joesguns"); tgt.Integrity != 5 {
		t.Fatalf("integrity = %v, want clamped to 5", tgt.Integrity)
	}
}

func TestHost_RestoreAndExtract(t *testing.T) {
	h, clk := loadTestHost(t)
	ctx := context.Background()

	units, err := h.RestoreUnits(ctx, "joesguns", 10)
	if err != nil {
		t.Fatalf("RestoreUnits: %v", err)
	}
	if want := math.Log(10) / math.Log(1.1); math.Abs(units-want) > 1e-9 {
		t.Errorf("RestoreUnits = %v, want %v", units, want)
	}

	if _, err := h.Dispatch(ctx, constants.Restore, "home", "joesguns", 25); err != nil {
		t.Fatalf("Dispatch restore: %v", err)
	}
	clk.Step(time.Minute)
	tgt, _ := h.Target(ctx, "joesguns")
	if tgt.Yield != 10000 {
		t.Errorf("yield = %v, want capped at 10000", tgt.Yield)
	}
	if math.Abs(tgt.Integrity-15.1) > 1e-9 {
		t.Errorf("integrity = %v, want 15.1", tgt.Integrity)
	}

	if _, err := h.Dispatch(ctx, constants.Extract, "home", "joesguns", 10); err != nil {
		t.Fatalf("Dispatch extract: %v", err)
	}
	clk.Step(time.Minute)
	tgt, _ = h.Target(ctx, "joesguns")
	if math.Abs(tgt.Yield-9800) > 1e-6 {
		t.Errorf("yield after extract = %v, want 9800", tgt.Yield)
	}
}

func TestHost_KillSkipsEffect(t *testing.T) {
	h, clk := loadTestHost(t)
	ctx := context.Background()

	pid, _ := h.Dispatch(ctx, constants.Stabilize, "home", "joesguns", 10)
	if !h.Kill(pid) {
		t.Fatal("Kill reported unknown pid")
	}
	clk.Step(time.Minute)
	if tgt, _ := h.Target(ctx, "joesguns"); tgt.Integrity != 15 {
		t.Errorf("killed process changed integrity to %v", tgt.Integrity)
	}
}

func TestTopology_PublishesHostSet(t *testing.T) {
	h, clk := loadTestHost(t)
	p := port.New("topology")
	w, _ := p.Claim("sim")

	if err := NewTopology(h, w, clk).PublishOnce(); err != nil {
		t.Fatalf("PublishOnce: %v", err)
	}
	var ns apis.NodeSet
	if !p.Read(&ns) {
		t.Fatal("no node set published")
	}
	want := []string{"foreign", "home", "joesguns", "pserv-0"}
	if len(ns.Hosts) != len(want) {
		t.Fatalf("hosts = %v", ns.Hosts)
	}
	for i := range want {
		if ns.Hosts[i] != want[i] {
			t.Errorf("hosts[%d] = %s, want %s", i, ns.Hosts[i], want[i])
		}
	}
}
