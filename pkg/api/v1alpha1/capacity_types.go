package v1alpha1

// NodeState is a point-in-time reading of one capacity node.
type NodeState struct {
	ID      string  `json:"id"`
	TotalGB float64 `json:"totalGB"`
	UsedGB  float64 `json:"usedGB"`

	// Controlled nodes accept dispatches.
	Controlled bool `json:"controlled"`

	// Owned nodes belong to the actor and are never targets.
	Owned bool `json:"owned"`
}

// CapacityNode is a node admitted into a capacity pool. FreeGB already
// has any reservation applied.
type CapacityNode struct {
	ID      string
	TotalGB float64
	UsedGB  float64
	FreeGB  float64
}

// PoolSummary condenses a capacity pool for status consumers.
type PoolSummary struct {
	Nodes     int     `json:"nodes"`
	TotalGB   float64 `json:"totalGB"`
	UsedGB    float64 `json:"usedGB"`
	FreeGB    float64 `json:"freeGB"`
	FreeUnits int     `json:"freeUnits"`
}
