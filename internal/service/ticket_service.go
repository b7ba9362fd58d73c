package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/clock"
	"github.com/spec-kit/office-hours/internal/domain"
	"github.com/spec-kit/office-hours/internal/events"
	"github.com/spec-kit/office-hours/internal/repository"
	apperrors "github.com/spec-kit/office-hours/pkg/util/errorutil"
)

// PermissionOracle resolves an identity's standing for an office hours session.
type PermissionOracle interface {
	RoleFor(ctx context.Context, userID, sessionID int64) (domain.Role, error)
}

// TicketService owns the ticket lifecycle: the state machine, the
// one-active-ticket rule and the role gates on every transition.
type TicketService struct {
	tickets    repository.TicketRepository
	roster     PermissionOracle
	policy     *auth.Policy
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Roster     PermissionOracle
	Policy     *auth.Policy
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	OfficeHoursID int64
	Description   domain.Description
}

// TicketCloseInput carries the staff write-up recorded at close.
type TicketCloseInput struct {
	Resolution   domain.Resolution
	HaveConcerns bool
	CallerNotes  string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	svc := &TicketService{
		tickets:    deps.TicketRepo,
		roster:     deps.Roster,
		policy:     deps.Policy,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
	if svc.clock == nil {
		svc.clock = clock.Real()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// CreateTicket files a new QUEUED ticket for a requester of the session.
func (s *TicketService) CreateTicket(ctx context.Context, actorID int64, input TicketCreateInput) (*domain.Ticket, error) {
	if err := validateDescription(input.Description); err != nil {
		return nil, err
	}

	role, err := s.roleFor(ctx, actorID, input.OfficeHoursID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Allowed(auth.Subjects(role, false), auth.ActionCreate) {
		return nil, apperrors.NewPermissionDenied("only requesters of this office hours session may create tickets",
			map[string]any{"office_hours_id": input.OfficeHoursID})
	}

	ticket := &domain.Ticket{
		OfficeHoursID: input.OfficeHoursID,
		State:         domain.TicketStateQueued,
		Description:   input.Description,
		CreatorIDs:    []int64{actorID},
		CreatedAt:     s.clock.Now(),
	}

	guard := func(active []domain.Ticket) error {
		if len(active) == 0 {
			return nil
		}
		return apperrors.NewPermissionDenied("requester already has an active ticket in this session",
			map[string]any{"ticket_id": active[0].ID})
	}
	if err := s.tickets.Create(ctx, ticket, guard); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.NewTransitionEvent(events.EventTicketCreated, actorID, nil, ticket, ticket.CreatedAt))
	return ticket, nil
}

// GetTicket returns a ticket to staff of its session or to one of its creators.
func (s *TicketService) GetTicket(ctx context.Context, actorID, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	role, err := s.roleFor(ctx, actorID, ticket.OfficeHoursID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Allowed(auth.Subjects(role, ticket.HasCreator(actorID)), auth.ActionView) {
		return nil, apperrors.NewPermissionDenied("ticket not visible to this user", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// ListQueue returns the session's active tickets, oldest first. Staff see the
// whole queue; requesters see only their own tickets.
func (s *TicketService) ListQueue(ctx context.Context, actorID, sessionID int64) ([]domain.Ticket, error) {
	role, err := s.roleFor(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Allowed(auth.Subjects(role, false), auth.ActionList) {
		return nil, apperrors.NewPermissionDenied("not a member of this office hours session",
			map[string]any{"office_hours_id": sessionID})
	}

	filter := repository.TicketFilter{SessionID: &sessionID, States: domain.ActiveStates}
	if role != domain.RoleStaff {
		filter.RequesterID = &actorID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// CallTicket moves a QUEUED ticket to CALLED with the actor as caller.
func (s *TicketService) CallTicket(ctx context.Context, actorID, ticketID int64) (*domain.Ticket, error) {
	return s.transition(ctx, actorID, ticketID, auth.ActionCall, domain.TicketStateCalled, events.EventTicketCalled,
		func(t *domain.Ticket, now time.Time) {
			caller := actorID
			t.CallerID = &caller
			if t.CalledAt == nil {
				t.CalledAt = &now
			}
		})
}

// CancelTicket moves a QUEUED or CALLED ticket to CANCELED. The caller, if
// any, is kept.
func (s *TicketService) CancelTicket(ctx context.Context, actorID, ticketID int64) (*domain.Ticket, error) {
	return s.transition(ctx, actorID, ticketID, auth.ActionCancel, domain.TicketStateCanceled, events.EventTicketCanceled, nil)
}

// CloseTicket records the resolution of a CALLED ticket and moves it to CLOSED.
func (s *TicketService) CloseTicket(ctx context.Context, actorID, ticketID int64, input TicketCloseInput) (*domain.Ticket, error) {
	if input.Resolution.IsEmpty() {
		return nil, apperrors.NewValidationError("resolution is required to close a ticket",
			map[string]any{"fields": []string{"meeting_summary", "solutions_used", "concepts_for_review"}})
	}
	return s.transition(ctx, actorID, ticketID, auth.ActionClose, domain.TicketStateClosed, events.EventTicketClosed,
		func(t *domain.Ticket, now time.Time) {
			res := input.Resolution
			t.Resolution = &res
			t.HaveConcerns = input.HaveConcerns
			t.CallerNotes = input.CallerNotes
			if t.ClosedAt == nil {
				t.ClosedAt = &now
			}
		})
}

// transition runs the role gate and the state guard against the locked row,
// so no concurrent transition can slip in between the check and the write.
func (s *TicketService) transition(
	ctx context.Context,
	actorID, ticketID int64,
	action auth.Action,
	next domain.TicketState,
	eventType events.EventType,
	mutate func(t *domain.Ticket, now time.Time),
) (*domain.Ticket, error) {
	current, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	// The session of a ticket never changes, so its role can be resolved before locking.
	role, err := s.roleFor(ctx, actorID, current.OfficeHoursID)
	if err != nil {
		return nil, err
	}

	var old domain.TicketState
	var at time.Time
	updated, err := s.tickets.Update(ctx, ticketID, func(t *domain.Ticket) error {
		if !s.policy.Allowed(auth.Subjects(role, t.HasCreator(actorID)), action) {
			return apperrors.NewPermissionDenied("not permitted to "+string(action)+" this ticket",
				map[string]any{"ticket_id": ticketID})
		}
		if !isValidTransition(t.State, next) {
			return apperrors.NewPermissionDenied("ticket state does not allow "+string(action),
				map[string]any{"ticket_id": ticketID, "state": t.State})
		}
		old = t.State
		at = s.clock.Now()
		t.State = next
		if mutate != nil {
			mutate(t, at)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.NewTransitionEvent(eventType, actorID, &old, updated, at))
	return updated, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return ticket, nil
}

func (s *TicketService) roleFor(ctx context.Context, actorID, sessionID int64) (domain.Role, error) {
	role, err := s.roster.RoleFor(ctx, actorID, sessionID)
	if err != nil {
		return domain.RoleNone, apperrors.NewInternalError(err)
	}
	return role, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func validateDescription(d domain.Description) error {
	if d == nil {
		return apperrors.NewValidationError("ticket type is required", map[string]any{"field": "type"})
	}
	if err := d.Validate(); err != nil {
		details := map[string]any{"type": d.Type()}
		var fe interface{ Field() string }
		if errors.As(err, &fe) {
			details["field"] = fe.Field()
		}
		return apperrors.NewValidationError(err.Error(), details)
	}
	return nil
}

var allowedTransitions = map[domain.TicketState][]domain.TicketState{
	domain.TicketStateQueued:   {domain.TicketStateCalled, domain.TicketStateCanceled},
	domain.TicketStateCalled:   {domain.TicketStateClosed, domain.TicketStateCanceled},
	domain.TicketStateClosed:   {},
	domain.TicketStateCanceled: {},
}

func isValidTransition(current, next domain.TicketState) bool {
	return slices.Contains(allowedTransitions[current], next)
}
