package domain

import "time"

// TicketHistory is an immutable audit trail entry for one state transition.
type TicketHistory struct {
	ID        int64
	TicketID  int64
	ActorID   int64
	OldState  *TicketState
	NewState  TicketState
	Details   map[string]any
	CreatedAt time.Time
}
