package v1alpha1

import (
	"fmt"
	"math"
	"time"

	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
)

// APIVersion is stamped on every record crossing a port.
const APIVersion = "fleet.bb/v1alpha1"

// Record kinds.
const (
	KindNodeSet        = "NodeSet"
	KindRanking        = "Ranking"
	KindStatusSnapshot = "StatusSnapshot"
)

// NodeSet is the discovered host set published by the topology component.
type NodeSet struct {
	Hosts       []string  `json:"hosts"`
	PublishedAt time.Time `json:"publishedAt"`
}

func (*NodeSet) RecordKind() string { return KindNodeSet }

func (n *NodeSet) Validate() error {
	seen := make(map[string]struct{}, len(n.Hosts))
	for i, h := range n.Hosts {
		if h == "" {
			return fmt.Errorf("hosts[%d]: empty id", i)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("hosts[%d]: duplicate id %q", i, h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

// RankedTarget is one target's entry in a scheduling cycle's result.
type RankedTarget struct {
	TargetScore
	Phase    constants.Phase `json:"phase"`
	Placed   int             `json:"placed"`
	Unplaced int             `json:"unplaced"`
}

// Ranking is what one scheduling cycle decided, in score order.
type Ranking struct {
	CycleAt time.Time      `json:"cycleAt"`
	Targets []RankedTarget `json:"targets"`
}

func (*Ranking) RecordKind() string { return KindRanking }

func (r *Ranking) Validate() error {
	if r.CycleAt.IsZero() {
		return fmt.Errorf("cycleAt not set")
	}
	for i, t := range r.Targets {
		if t.Target == "" {
			return fmt.Errorf("targets[%d]: empty id", i)
		}
		if math.IsNaN(t.Score) || math.IsInf(t.Score, 0) {
			return fmt.Errorf("targets[%d]: non-finite score", i)
		}
		if t.Unplaced < 0 || t.Placed < 0 {
			return fmt.Errorf("targets[%d]: negative unit count", i)
		}
	}
	return nil
}

// OperationSummary aggregates the in-flight processes of one kind against
// one target.
type OperationSummary struct {
	Kind           constants.OperationKind `json:"kind"`
	Processes      int                     `json:"processes"`
	Units          int                     `json:"units"`
	MaxRemainingMs float64                 `json:"maxRemainingMs"`
}

// TargetStatus is the per-target part of a StatusSnapshot.
type TargetStatus struct {
	Target     string             `json:"target"`
	Score      float64            `json:"score"`
	YieldPct   float64            `json:"yieldPct"`
	Stable     bool               `json:"stable"`
	Phase      constants.Phase    `json:"phase,omitempty"`
	Operations []OperationSummary `json:"operations,omitempty"`
}

// StatusSnapshot is a point-in-time view of the fleet for display.
type StatusSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Pool      PoolSummary    `json:"pool"`
	Targets   []TargetStatus `json:"targets"`
}

func (*StatusSnapshot) RecordKind() string { return KindStatusSnapshot }

func (s *StatusSnapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp not set")
	}
	if s.Pool.Nodes < 0 || s.Pool.FreeGB < 0 {
		return fmt.Errorf("pool summary out of range")
	}
	for i, t := range s.Targets {
		if t.Target == "" {
			return fmt.Errorf("targets[%d]: empty id", i)
		}
		for _, op := range t.Operations {
			if !op.Kind.Valid() {
				return fmt.Errorf("targets[%d]: unknown operation kind %q", i, op.Kind)
			}
		}
	}
	return nil
}
