package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/capacity"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/decision"
	"github.com/cheeseonhead/bb-for-fun/pkg/port"
	"github.com/cheeseonhead/bb-for-fun/pkg/telemetry"
	"github.com/cheeseonhead/bb-for-fun/pkg/tracker"
)

// Writer names claimed on the ports this controller publishes to.
const (
	SchedulerOwner = "scheduler"
	StatusOwner    = "status"
)

type Config struct {
	ScheduleInterval time.Duration
	StatusInterval   time.Duration
	SchedulerPool    capacity.PoolOptions
	StatusPool       capacity.PoolOptions
	Decision         decision.Config
}

// Ports wires the controller to its neighbours. Nodes is read-only here;
// Ranking and Status are claimed for writing.
type Ports struct {
	Nodes   *port.Port
	Ranking *port.Port
	Status  *port.Port
}

type Controller struct {
	host  telemetry.Host
	clock clock.PassiveClock

	nodes   *port.Port
	ranking *port.Port

	rankingWriter *port.Writer
	statusWriter  *port.Writer

	// Custom components
	tracker   *tracker.Tracker
	scorer    *decision.Scorer
	engine    *decision.Engine
	allocator *capacity.Allocator

	config Config
}

func NewController(host telemetry.Host, ports Ports, clk clock.PassiveClock, config Config) (*Controller, error) {
	rw, err := ports.Ranking.Claim(SchedulerOwner)
	if err != nil {
		return nil, err
	}
	sw, err := ports.Status.Claim(StatusOwner)
	if err != nil {
		return nil, err
	}
	return &Controller{
		host:          host,
		clock:         clk,
		nodes:         ports.Nodes,
		ranking:       ports.Ranking,
		rankingWriter: rw,
		statusWriter:  sw,
		tracker:       tracker.New(clk),
		scorer:        decision.NewScorer(host, config.Decision),
		engine:        decision.NewEngine(host, config.Decision),
		allocator:     capacity.NewAllocator(host, clk),
		config:        config,
	}, nil
}

// Run starts the scheduling and status loops and blocks until ctx is done.
// The loops share nothing but the tracker and the ranking port.
func (c *Controller) Run(ctx context.Context) error {
	defer utilruntime.HandleCrash()

	klog.Info("Starting fleet scheduler")
	go wait.UntilWithContext(ctx, c.runScheduleCycle, c.config.ScheduleInterval)
	go wait.UntilWithContext(ctx, c.runStatusCycle, c.config.StatusInterval)

	klog.Info("Started loops")
	<-ctx.Done()
	klog.Info("Shutting down loops")
	return nil
}

func (c *Controller) runScheduleCycle(ctx context.Context) {
	start := c.clock.Now()
	outcome := guard("schedule", func() error { return c.ScheduleOnce(ctx) })
	scheduleCycles.WithLabelValues(outcome).Inc()
	scheduleDuration.Observe(c.clock.Since(start).Seconds())
}

func (c *Controller) runStatusCycle(ctx context.Context) {
	outcome := guard("status", func() error { return c.StatusOnce(ctx) })
	statusCycles.WithLabelValues(outcome).Inc()
}

// guard runs one cycle and turns its result into an outcome label. A
// panic is recovered here so the loop keeps going.
func guard(name string, cycle func() error) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			utilruntime.HandleError(fmt.Errorf("%s cycle panicked: %v", name, r))
			outcome = constants.OutcomePanic
		}
	}()

	err := cycle()
	switch {
	case errors.Is(err, telemetry.ErrNoData):
		klog.V(2).Infof("Skipping %s cycle: %v", name, err)
		return constants.OutcomeNoData
	case err != nil:
		utilruntime.HandleError(fmt.Errorf("%s cycle: %w", name, err))
		return constants.OutcomeError
	}
	return constants.OutcomeOK
}

// ScheduleOnce runs one scheduling cycle: rank targets, then plan and
// place each in score order against one shared pool.
func (c *Controller) ScheduleOnce(ctx context.Context) error {
	var ns apis.NodeSet
	if !c.nodes.Read(&ns) {
		return fmt.Errorf("node set: %w", telemetry.ErrNoData)
	}

	nodes := telemetry.CollectNodes(ctx, c.host, ns.Hosts)
	pool := capacity.BuildPool(nodes, c.config.SchedulerPool)
	poolFreeGB.Set(pool.FreeGB())
	poolNodes.Set(float64(pool.Len()))

	owned := sets.New[string]()
	for _, n := range nodes {
		if n.Owned {
			owned.Insert(n.ID)
		}
	}

	targets, err := telemetry.CollectTargets(ctx, c.host, ns.Hosts)
	if err != nil {
		return err
	}
	skill, err := c.host.Skill(ctx)
	if err != nil {
		return fmt.Errorf("query skill: %w", err)
	}

	ranked := c.scorer.Rank(ctx, targets, skill, owned)
	ranking := &apis.Ranking{
		CycleAt: c.clock.Now(),
		Targets: make([]apis.RankedTarget, 0, len(ranked)),
	}
	for _, sc := range ranked {
		entry, err := c.scheduleTarget(ctx, sc, pool)
		if err != nil {
			klog.Warningf("Skipping %s this cycle: %v", sc.Target, err)
			continue
		}
		ranking.Targets = append(ranking.Targets, entry)
	}

	klog.V(3).Infof("Scheduled %d targets, %d units left in pool", len(ranking.Targets), pool.FreeUnits())
	return c.rankingWriter.Publish(ranking)
}

// scheduleTarget re-reads the target, plans against what is already in
// flight and places the plan.
func (c *Controller) scheduleTarget(ctx context.Context, sc apis.TargetScore, pool *capacity.Pool) (apis.RankedTarget, error) {
	entry := apis.RankedTarget{TargetScore: sc}

	t, err := c.host.Target(ctx, sc.Target)
	if err != nil {
		return entry, err
	}
	plan, err := c.engine.Decide(ctx, *t, c.tracker.InFlight(sc.Target))
	if err != nil {
		return entry, err
	}
	entry.Phase = plan.Phase

	want := plan.Units()
	if want == 0 {
		return entry, nil
	}
	ds := c.allocator.AllocateAll(ctx, plan.Requests, pool)
	c.tracker.Record(ds...)

	entry.Placed = capacity.Placed(ds)
	entry.Unplaced = want - entry.Placed
	if entry.Placed == 0 {
		entry.Phase = constants.PhaseStarved
	}
	return entry, nil
}

// StatusOnce reconciles the tracker against the fleet and publishes a
// snapshot. Targets come from the latest ranking, followed by any other
// target with work still in flight.
func (c *Controller) StatusOnce(ctx context.Context) error {
	var ns apis.NodeSet
	if !c.nodes.Read(&ns) {
		return fmt.Errorf("node set: %w", telemetry.ErrNoData)
	}

	// A scheduling cycle may record dispatches while the listing runs.
	mark := c.tracker.Mark()
	live, err := telemetry.ListFleetProcesses(ctx, c.host, ns.Hosts)
	if err != nil {
		return err
	}
	agg := c.tracker.Reconcile(ctx, live, c.host, mark)

	pool := capacity.BuildPool(telemetry.CollectNodes(ctx, c.host, ns.Hosts), c.config.StatusPool)
	snap := &apis.StatusSnapshot{
		Timestamp: c.clock.Now(),
		Pool:      pool.Summary(),
	}

	var ranking apis.Ranking
	ranked := make(map[string]apis.RankedTarget)
	var order []string
	if c.ranking.Read(&ranking) {
		for _, rt := range ranking.Targets {
			ranked[rt.Target] = rt
			order = append(order, rt.Target)
		}
	}
	for _, id := range agg.Targets() {
		if _, ok := ranked[id]; !ok {
			order = append(order, id)
		}
	}

	for _, id := range order {
		t, err := c.host.Target(ctx, id)
		if err != nil {
			if !errors.Is(err, telemetry.ErrUnknownTarget) {
				klog.Warningf("Failed to read %s for status: %v", id, err)
			}
			continue
		}
		rt := ranked[id]
		snap.Targets = append(snap.Targets, apis.TargetStatus{
			Target:     id,
			Score:      rt.Score,
			Phase:      rt.Phase,
			YieldPct:   t.YieldPct(),
			Stable:     decision.IsStable(*t),
			Operations: agg.Summaries(id),
		})
	}
	return c.statusWriter.Publish(snap)
}

// Tracked is the number of processes the tracker currently holds.
func (c *Controller) Tracked() int {
	return c.tracker.Len()
}
