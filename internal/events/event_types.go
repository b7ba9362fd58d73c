package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/office-hours/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketCalled   EventType = "ticket_called"
	EventTicketCanceled EventType = "ticket_canceled"
	EventTicketClosed   EventType = "ticket_closed"
)

// AllTicketEvents lists every lifecycle event type.
var AllTicketEvents = []EventType{
	EventTicketCreated,
	EventTicketCalled,
	EventTicketCanceled,
	EventTicketClosed,
}

// Event represents a lifecycle transition emitted by services.
type Event struct {
	ID            string              `json:"id"`
	Type          EventType           `json:"type"`
	TicketID      int64               `json:"ticket_id"`
	OfficeHoursID int64               `json:"office_hours_id"`
	ActorID       int64               `json:"actor_id"`
	OldState      *domain.TicketState `json:"old_state,omitempty"`
	NewState      domain.TicketState  `json:"new_state"`
	Timestamp     time.Time           `json:"timestamp"`
	Payload       map[string]any      `json:"payload,omitempty"`
}

// NewTransitionEvent builds an event for a ticket that moved from old (nil on
// creation) to the ticket's current state.
func NewTransitionEvent(eventType EventType, actorID int64, old *domain.TicketState, ticket *domain.Ticket, at time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		TicketID:      ticket.ID,
		OfficeHoursID: ticket.OfficeHoursID,
		ActorID:       actorID,
		OldState:      old,
		NewState:      ticket.State,
		Timestamp:     at,
		Payload:       map[string]any{"type": string(ticket.Type())},
	}
}
