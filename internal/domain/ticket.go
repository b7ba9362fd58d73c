package domain

import (
	"slices"
	"time"
)

// TicketState enumerates lifecycle states for office hours tickets.
type TicketState string

const (
	TicketStateQueued   TicketState = "QUEUED"
	TicketStateCalled   TicketState = "CALLED"
	TicketStateClosed   TicketState = "CLOSED"
	TicketStateCanceled TicketState = "CANCELED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s TicketState) IsTerminal() bool {
	return s == TicketStateClosed || s == TicketStateCanceled
}

// ActiveStates are the non-terminal states counted by the one-active-ticket rule.
var ActiveStates = []TicketState{TicketStateQueued, TicketStateCalled}

// Resolution holds the staff write-up captured when a ticket is closed.
type Resolution struct {
	MeetingSummary    string
	SolutionsUsed     string
	ConceptsForReview string
}

// IsEmpty reports whether every resolution field is blank.
func (r Resolution) IsEmpty() bool {
	return isBlank(r.MeetingSummary) && isBlank(r.SolutionsUsed) && isBlank(r.ConceptsForReview)
}

// Ticket is the aggregate for a single help request.
type Ticket struct {
	ID            int64
	OfficeHoursID int64
	State         TicketState
	Description   Description
	Resolution    *Resolution
	CreatorIDs    []int64
	CallerID      *int64
	HaveConcerns  bool
	CallerNotes   string
	CreatedAt     time.Time
	CalledAt      *time.Time
	ClosedAt      *time.Time
}

// Type returns the classification selected by the ticket's description.
func (t *Ticket) Type() TicketType {
	if t.Description == nil {
		return ""
	}
	return t.Description.Type()
}

// IsActive reports whether the ticket is QUEUED or CALLED.
func (t *Ticket) IsActive() bool {
	return slices.Contains(ActiveStates, t.State)
}

// HasCreator reports whether userID filed (or co-filed) the ticket.
func (t *Ticket) HasCreator(userID int64) bool {
	return slices.Contains(t.CreatorIDs, userID)
}

// Clone returns a deep copy so callers cannot mutate stored state through shared pointers.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.CreatorIDs = slices.Clone(t.CreatorIDs)
	if t.Resolution != nil {
		res := *t.Resolution
		cp.Resolution = &res
	}
	if t.CallerID != nil {
		id := *t.CallerID
		cp.CallerID = &id
	}
	if t.CalledAt != nil {
		ts := *t.CalledAt
		cp.CalledAt = &ts
	}
	if t.ClosedAt != nil {
		ts := *t.ClosedAt
		cp.ClosedAt = &ts
	}
	return &cp
}
