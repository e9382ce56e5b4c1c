package tracker

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
)

// Estimator supplies fresh duration estimates.
type Estimator interface {
	Duration(ctx context.Context, kind constants.OperationKind, id string) (float64, error)
}

// Entry is one tracked process.
type Entry struct {
	Handle    apis.Handle
	Node      string
	Target    string
	Kind      constants.OperationKind
	Units     int
	StartedAt time.Time
	// Adopted entries were first seen in a process listing rather than
	// recorded at dispatch, so StartedAt is when they were first seen.
	Adopted bool

	seq Mark
}

// Mark orders entries against process listings. An entry recorded after
// a mark was taken is newer than any listing made after that mark.
type Mark uint64

// Tracker remembers dispatched operations until the host stops listing
// them. Records are added at dispatch time and removed only when a
// reconcile finds the handle gone; there is no completion callback.
type Tracker struct {
	mu      sync.RWMutex
	clock   clock.PassiveClock
	entries map[apis.Handle]*Entry
	seq     Mark
}

func New(clk clock.PassiveClock) *Tracker {
	return &Tracker{
		clock:   clk,
		entries: make(map[apis.Handle]*Entry),
	}
}

// Record starts tracking accepted dispatches.
func (t *Tracker) Record(ds ...apis.Dispatch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range ds {
		t.seq++
		t.entries[d.Handle] = &Entry{
			Handle:    d.Handle,
			Node:      d.Node,
			Target:    d.Target,
			Kind:      d.Kind,
			Units:     d.Units,
			StartedAt: d.DispatchedAt,
			seq:       t.seq,
		}
	}
	trackedProcesses.Set(float64(len(t.entries)))
}

// Mark returns the current position in the record sequence. Take it
// before listing live processes and hand it to Reconcile.
func (t *Tracker) Mark() Mark {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}

// Len is the number of tracked processes.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Get returns the entry for a handle.
func (t *Tracker) Get(h apis.Handle) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// InFlight sums tracked units against target per kind. Entries linger
// until the next reconcile, so this can briefly overcount.
func (t *Tracker) InFlight(target string) map[constants.OperationKind]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[constants.OperationKind]int)
	for _, e := range t.entries {
		if e.Target == target {
			out[e.Kind] += e.Units
		}
	}
	return out
}

// Reconcile matches tracked entries against the fleet's live processes,
// listed after mark was taken. Live processes nobody recorded are
// adopted; entries recorded by mark whose handle is no longer live are
// pruned. Entries recorded after mark are kept since the listing may
// predate them. The result aggregates what is still running.
func (t *Tracker) Reconcile(ctx context.Context, live []apis.Process, est Estimator, mark Mark) Aggregate {
	now := t.clock.Now()
	agg := make(Aggregate)
	seen := sets.New[apis.Handle]()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range live {
		seen.Insert(p.Handle)

		e, ok := t.entries[p.Handle]
		if !ok {
			if !p.Kind.Valid() || p.Target == "" {
				continue
			}
			e = &Entry{
				Handle:    p.Handle,
				Node:      p.Node,
				Target:    p.Target,
				Kind:      p.Kind,
				Units:     p.Units,
				StartedAt: now,
				Adopted:   true,
			}
			t.entries[p.Handle] = e
			adoptedTotal.Inc()
			klog.V(4).Infof("Adopted untracked %s process %d against %s", p.Kind, p.Handle, p.Target)
		}

		units := p.Units
		if units <= 0 {
			units = e.Units
		}

		remaining := 0.0
		duration, err := est.Duration(ctx, e.Kind, e.Target)
		if err != nil {
			klog.V(2).Infof("No %s duration for %s: %v", e.Kind, e.Target, err)
		} else {
			elapsed := float64(now.Sub(e.StartedAt).Milliseconds())
			remaining = math.Max(0, duration-elapsed)
		}
		agg.add(e.Target, e.Kind, units, remaining)
	}

	pruned := 0
	for h, e := range t.entries {
		if seen.Has(h) || e.seq > mark {
			continue
		}
		delete(t.entries, h)
		pruned++
	}
	if pruned > 0 {
		prunedTotal.Add(float64(pruned))
		klog.V(4).Infof("Pruned %d finished processes", pruned)
	}

	trackedProcesses.Set(float64(len(t.entries)))
	for _, k := range constants.OperationKinds {
		inflightUnits.WithLabelValues(string(k)).Set(float64(agg.units(k)))
	}
	return agg
}

// Aggregate is per-target, per-kind in-flight work.
type Aggregate map[string]map[constants.OperationKind]*apis.OperationSummary

func (a Aggregate) add(target string, kind constants.OperationKind, units int, remainingMs float64) {
	byKind, ok := a[target]
	if !ok {
		byKind = make(map[constants.OperationKind]*apis.OperationSummary)
		a[target] = byKind
	}
	s, ok := byKind[kind]
	if !ok {
		s = &apis.OperationSummary{Kind: kind}
		byKind[kind] = s
	}
	s.Processes++
	s.Units += units
	// A batch is only done when its slowest member is.
	s.MaxRemainingMs = math.Max(s.MaxRemainingMs, remainingMs)
}

func (a Aggregate) units(kind constants.OperationKind) int {
	n := 0
	for _, byKind := range a {
		if s, ok := byKind[kind]; ok {
			n += s.Units
		}
	}
	return n
}

// Summaries returns target's in-flight work in harvest order.
func (a Aggregate) Summaries(target string) []apis.OperationSummary {
	byKind := a[target]
	if len(byKind) == 0 {
		return nil
	}
	out := make([]apis.OperationSummary, 0, len(byKind))
	for _, k := range constants.OperationKinds {
		if s, ok := byKind[k]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Targets lists every target with work in flight, sorted.
func (a Aggregate) Targets() []string {
	out := make([]string, 0, len(a))
	for id := range a {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
