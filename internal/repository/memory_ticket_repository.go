package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/spec-kit/office-hours/internal/domain"
)

// memoryTicketRepository keeps tickets in process memory. Writes to one ticket
// are serialized by a per-ticket lock and creations by a per-(session, requester)
// lock, mirroring the row and advisory locks of the postgres repository.
type memoryTicketRepository struct {
	mu             sync.RWMutex
	tickets        map[int64]*domain.Ticket
	nextID         int64
	rowLocks       keyedMutex
	requesterLocks keyedMutex
}

// NewMemoryTicketRepository builds an in-process ticket store.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{tickets: make(map[int64]*domain.Ticket)}
}

func (r *memoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket, guard CreateGuard) error {
	creators := slices.Clone(ticket.CreatorIDs)
	slices.Sort(creators)
	for _, creatorID := range creators {
		unlock := r.requesterLocks.Lock(requesterLockKey(ticket.OfficeHoursID, creatorID))
		defer unlock()
	}

	if guard != nil {
		var active []domain.Ticket
		r.mu.RLock()
		for _, t := range r.tickets {
			if t.OfficeHoursID != ticket.OfficeHoursID || !t.IsActive() {
				continue
			}
			if slices.ContainsFunc(creators, t.HasCreator) {
				active = append(active, *t.Clone())
			}
		}
		r.mu.RUnlock()
		if err := guard(active); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = r.nextID
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *memoryTicketRepository) Update(ctx context.Context, id int64, apply UpdateFunc) (*domain.Ticket, error) {
	unlock := r.rowLocks.Lock(fmt.Sprintf("ticket:%d", id))
	defer unlock()

	r.mu.RLock()
	stored, ok := r.tickets[id]
	var ticket *domain.Ticket
	if ok {
		ticket = stored.Clone()
	}
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if err := apply(ticket); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.tickets[id] = ticket.Clone()
	r.mu.Unlock()
	return ticket, nil
}

func (r *memoryTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (r *memoryTicketRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	if len(ids) == 0 {
		return []domain.Ticket{}, nil
	}
	return r.ListWithFilter(ctx, TicketFilter{IDs: ids})
}

func (r *memoryTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	result := []domain.Ticket{}
	for _, t := range r.tickets {
		if matchesFilter(t, filter) {
			result = append(result, *t.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b domain.Ticket) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if filter.Limit > 0 {
		offset := max(filter.Offset, 0)
		if offset >= len(result) {
			return []domain.Ticket{}, nil
		}
		end := min(offset+filter.Limit, len(result))
		result = result[offset:end]
	}
	return result, nil
}

func matchesFilter(t *domain.Ticket, filter TicketFilter) bool {
	if filter.SessionID != nil && t.OfficeHoursID != *filter.SessionID {
		return false
	}
	if filter.RequesterID != nil && !t.HasCreator(*filter.RequesterID) {
		return false
	}
	if len(filter.States) > 0 && !slices.Contains(filter.States, t.State) {
		return false
	}
	if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, t.ID) {
		return false
	}
	return true
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is held and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
