package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/office-hours/internal/domain"
	"github.com/spec-kit/office-hours/internal/events"
	"github.com/spec-kit/office-hours/internal/repository"
)

// AuditService records lifecycle events to ticket history.
type AuditService struct {
	dispatcher events.Dispatcher
	history    repository.TicketHistoryRepository
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, history repository.TicketHistoryRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTicketEvents {
		a.dispatcher.Subscribe(eventType, a.handleTransition)
	}
}

func (a *AuditService) handleTransition(ctx context.Context, event events.Event) error {
	a.logger.Info("TicketTransition",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Int64("ticket_id", event.TicketID),
		zap.Int64("office_hours_id", event.OfficeHoursID),
		zap.Int64("actor_id", event.ActorID),
		zap.String("new_state", string(event.NewState)))

	if a.history == nil {
		return nil
	}
	details := map[string]any{"event_id": event.ID}
	for k, v := range event.Payload {
		details[k] = v
	}
	entry := &domain.TicketHistory{
		TicketID:  event.TicketID,
		ActorID:   event.ActorID,
		OldState:  event.OldState,
		NewState:  event.NewState,
		Details:   details,
		CreatedAt: event.Timestamp,
	}
	if err := a.history.Create(ctx, entry); err != nil {
		a.logger.Error("record ticket history", zap.Int64("ticket_id", event.TicketID), zap.Error(err))
		return err
	}
	return nil
}
