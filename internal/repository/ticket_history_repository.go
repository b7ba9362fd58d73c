package repository

import (
	"context"
	"maps"
	"sync"
	"time"


	"github.com/spec-kit/office-hours/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool PgxConn
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool PgxConn) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO office_hours__ticket_history (ticket_id, actor_id, old_state, new_state, details)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.ActorID,
		history.OldState,
		history.NewState,
		history.Details,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, actor_id, old_state, new_state, details, created_at
        FROM office_hours__ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ActorID,
			&history.OldState,
			&history.NewState,
			&history.Details,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

type memoryTicketHistoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.TicketHistory
}

// NewMemoryTicketHistoryRepository builds an in-process audit log.
func NewMemoryTicketHistoryRepository() TicketHistoryRepository {
	return &memoryTicketHistoryRepository{}
}

func (r *memoryTicketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	history.ID = r.nextID
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	entry := *history
	entry.Details = maps.Clone(history.Details)
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryTicketHistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, e := range r.entries {
		if e.TicketID == ticketID {
			result = append(result, e)
		}
	}
	return result, nil
}
