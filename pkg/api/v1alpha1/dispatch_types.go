package v1alpha1

import (
	"time"

	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
)

// Handle identifies one running execution process on the host.
type Handle int

// OperationRequest asks for units of one operation against one target.
type OperationRequest struct {
	Kind   constants.OperationKind
	Target string
	Units  int
}

// Dispatch is one accepted execution request on one node.
type Dispatch struct {
	Handle       Handle
	Node         string
	Target       string
	Kind         constants.OperationKind
	Units        int
	DispatchedAt time.Time
}

// Process is one live execution process as reported by the host.
type Process struct {
	Handle Handle
	Node   string
	Target string
	Kind   constants.OperationKind
	Units  int
}
