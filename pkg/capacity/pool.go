package capacity

import (
	"math"
	"sort"

	"k8s.io/klog/v2"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
)

// capacityEpsilon absorbs float noise when dividing free capacity into
// whole units.
const capacityEpsilon = 1e-9

// PoolOptions controls which nodes a pool admits.
type PoolOptions struct {
	// ControlNode has Reservation withheld before admission.
	ControlNode string
	Reservation constants.Reservation
	UnitCostGB  float64
}

// Pool is the capacity one allocation pass may consume, largest free
// node first. It is built fresh for each pass and mutated in place as
// units are placed; it is not safe to share between passes.
type Pool struct {
	unitCost float64
	nodes    []*apis.CapacityNode
}

// BuildPool admits every controlled node with more than one unit of free
// capacity, after withholding the reservation on the control node.
//
// Largest-free-first keeps big requests on few nodes, which means fewer
// dispatches and fewer handles to track.
func BuildPool(nodes []apis.NodeState, opts PoolOptions) *Pool {
	p := &Pool{unitCost: opts.UnitCostGB}
	for _, n := range nodes {
		if !n.Controlled {
			continue
		}
		free := math.Max(0, n.TotalGB-n.UsedGB)
		if n.ID == opts.ControlNode {
			free = math.Max(0, free-float64(opts.Reservation))
		}
		if free <= opts.UnitCostGB {
			klog.V(5).Infof("Pool: skipping %s with %.2fGB free", n.ID, free)
			continue
		}
		p.nodes = append(p.nodes, &apis.CapacityNode{
			ID:      n.ID,
			TotalGB: n.TotalGB,
			UsedGB:  n.UsedGB,
			FreeGB:  free,
		})
	}

	sort.SliceStable(p.nodes, func(i, j int) bool {
		if p.nodes[i].FreeGB != p.nodes[j].FreeGB {
			return p.nodes[i].FreeGB > p.nodes[j].FreeGB
		}
		return p.nodes[i].ID < p.nodes[j].ID
	})
	return p
}

// UnitCost is the capacity one unit occupies.
func (p *Pool) UnitCost() float64 { return p.unitCost }

// Len is the number of admitted nodes.
func (p *Pool) Len() int { return len(p.nodes) }

// Nodes returns a copy of the pool in allocation order.
func (p *Pool) Nodes() []apis.CapacityNode {
	out := make([]apis.CapacityNode, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = *n
	}
	return out
}

// FreeGB is the total free capacity left in the pool.
func (p *Pool) FreeGB() float64 {
	total := 0.0
	for _, n := range p.nodes {
		total += n.FreeGB
	}
	return total
}

// FreeUnits is how many whole units still fit, node by node.
func (p *Pool) FreeUnits() int {
	units := 0
	for _, n := range p.nodes {
		units += p.fit(n)
	}
	return units
}

// Exhausted reports whether no further unit fits anywhere.
func (p *Pool) Exhausted() bool { return p.FreeUnits() == 0 }

// Summary condenses the pool for status consumers.
func (p *Pool) Summary() apis.PoolSummary {
	s := apis.PoolSummary{Nodes: len(p.nodes), FreeUnits: p.FreeUnits()}
	for _, n := range p.nodes {
		s.TotalGB += n.TotalGB
		s.UsedGB += n.UsedGB
		s.FreeGB += n.FreeGB
	}
	return s
}

func (p *Pool) fit(n *apis.CapacityNode) int {
	if p.unitCost <= 0 || n.FreeGB <= 0 {
		return 0
	}
	return int(math.Floor(n.FreeGB/p.unitCost + capacityEpsilon))
}

// take charges units against n.
func (p *Pool) take(n *apis.CapacityNode, units int) {
	gb := float64(units) * p.unitCost
	n.UsedGB += gb
	n.FreeGB = math.Max(0, n.FreeGB-gb)
}
