package constants

// This file centralizes node-related constants.

// DefaultControlNode is the node the scheduler itself runs on.
const DefaultControlNode = "home"

// Reservation is capacity withheld on the control node for fleet
// management processes before the remainder is offered to allocation.
// Each component that builds a pool reserves its own amount.
type Reservation float64

const (
	// ReserveScheduler is withheld when the scheduling cycle builds its pool.
	ReserveScheduler Reservation = 20
	// ReserveStatus is withheld when the status cycle summarizes the pool.
	ReserveStatus Reservation = 32
)
