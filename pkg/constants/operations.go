package constants

import "fmt"

// OperationKind identifies which operation an execution unit performs
// against a target. It travels with every dispatch, process listing and
// tracked record.
type OperationKind string

const (
	// Stabilize lowers a target's integrity toward its minimum.
	Stabilize OperationKind = "stabilize"
	// Restore refills a target's yield reserve toward its maximum.
	Restore OperationKind = "restore"
	// Extract removes a fraction of a target's yield reserve.
	Extract OperationKind = "extract"
)

// OperationKinds lists every kind in harvest-batch dispatch order.
var OperationKinds = []OperationKind{Extract, Restore, Stabilize}

func (k OperationKind) String() string { return string(k) }

// Valid reports whether k is one of the known kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case Stabilize, Restore, Extract:
		return true
	}
	return false
}

// ParseOperationKind converts a string into an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	k := OperationKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
	return k, nil
}
