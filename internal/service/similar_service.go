package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/domain"
	"github.com/spec-kit/office-hours/internal/matching"
	"github.com/spec-kit/office-hours/internal/repository"
	apperrors "github.com/spec-kit/office-hours/pkg/util/errorutil"
)

// SimilarService finds closed tickets resembling an open one.
type SimilarService struct {
	tickets *TicketService
	repo    repository.TicketRepository
	ranker  matching.Ranker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewSimilarService wires retrieval on top of the lifecycle service's store and roster.
func NewSimilarService(tickets *TicketService, ranker matching.Ranker) *SimilarService {
	return &SimilarService{
		tickets: tickets,
		repo:    tickets.tickets,
		ranker:  ranker,
		logger:  tickets.logger,
		tracer:  otel.Tracer("office-hours/service"),
	}
}

// FindSimilar returns closed tickets the oracle ranked as similar to ticketID,
// in the oracle's order. Only staff of the ticket's session may search.
func (s *SimilarService) FindSimilar(ctx context.Context, actorID, ticketID int64) ([]domain.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "similar.find",
		trace.WithAttributes(attribute.Int64("ticket.id", ticketID)))
	defer span.End()

	open, err := s.tickets.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	role, err := s.tickets.roleFor(ctx, actorID, open.OfficeHoursID)
	if err != nil {
		return nil, err
	}
	if !s.tickets.policy.Allowed(auth.Subjects(role, open.HasCreator(actorID)), auth.ActionSimilar) {
		return nil, apperrors.NewPermissionDenied("only staff may search similar tickets",
			map[string]any{"ticket_id": ticketID})
	}

	corpus, err := s.repo.ListWithFilter(ctx, repository.TicketFilter{
		States: []domain.TicketState{domain.TicketStateClosed},
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	corpus = excludeTicket(corpus, open.ID)
	span.SetAttributes(attribute.Int("similar.corpus_size", len(corpus)))
	if len(corpus) == 0 {
		return []domain.Ticket{}, nil
	}

	ranked, err := s.ranker.Rank(ctx, matching.QueryFor(open.Description), corpus)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle failed")
		s.logger.Error("similarity oracle failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
		return nil, apperrors.NewProviderFault(err)
	}

	ids := selectCorpusIDs(ranked, corpus)
	if dropped := len(ranked) - len(ids); dropped > 0 {
		s.logger.Debug("dropped oracle ids", zap.Int64("ticket_id", ticketID), zap.Int("dropped", dropped))
	}
	if len(ids) == 0 {
		return []domain.Ticket{}, nil
	}

	// Re-read current records; the oracle is trusted only for identifier selection.
	found, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	byID := make(map[int64]domain.Ticket, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}

	result := make([]domain.Ticket, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			result = append(result, t)
		}
	}
	span.SetAttributes(attribute.Int("similar.results", len(result)))
	return result, nil
}

// selectCorpusIDs keeps the first occurrence of every ranked id that belongs to corpus.
func selectCorpusIDs(ranked []int64, corpus []domain.Ticket) []int64 {
	known := make(map[int64]struct{}, len(corpus))
	for _, t := range corpus {
		known[t.ID] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(ranked))
	ids := make([]int64, 0, len(ranked))
	for _, id := range ranked {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func excludeTicket(tickets []domain.Ticket, id int64) []domain.Ticket {
	out := tickets[:0]
	for _, t := range tickets {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
