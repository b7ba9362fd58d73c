package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/office-hours/internal/domain"
)

var errBusy = errors.New("requester busy")

func newTicket(sessionID, requesterID int64, createdAt time.Time) *domain.Ticket {
	return &domain.Ticket{
		OfficeHoursID: sessionID,
		State:         domain.TicketStateQueued,
		Description:   domain.ConceptualDescription{ConceptHelp: "recursion"},
		CreatorIDs:    []int64{requesterID},
		CreatedAt:     createdAt,
	}
}

func TestMemoryCreateAssignsIDsAndClones(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()

	ticket := newTicket(1, 10, time.Now())
	require.NoError(t, repo.Create(ctx, ticket, nil))
	assert.Equal(t, int64(1), ticket.ID)

	ticket.State = domain.TicketStateClosed
	stored, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateQueued, stored.State)

	again, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, again)
}

func TestMemoryGetMissing(t *testing.T) {
	repo := NewMemoryTicketRepository()
	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(context.Background(), 404, func(*domain.Ticket) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdateAbortLeavesTicketUntouched(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	ticket := newTicket(1, 10, time.Now())
	require.NoError(t, repo.Create(ctx, ticket, nil))

	_, err := repo.Update(ctx, ticket.ID, func(tk *domain.Ticket) error {
		tk.State = domain.TicketStateCalled
		return errBusy
	})
	require.ErrorIs(t, err, errBusy)

	stored, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateQueued, stored.State)
}

func TestMemoryUpdateSerializesPerTicket(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	ticket := newTicket(1, 10, time.Now())
	require.NoError(t, repo.Create(ctx, ticket, nil))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, ticket.ID, func(tk *domain.Ticket) error {
				if tk.State != domain.TicketStateQueued {
					return errBusy
				}
				tk.State = domain.TicketStateCalled
				return nil
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryCreateGuardSeesActiveTickets(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	guard := func(active []domain.Ticket) error {
		if len(active) > 0 {
			return errBusy
		}
		return nil
	}

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Create(ctx, newTicket(1, 10, time.Now()), guard); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())

	// Another session is independent.
	require.NoError(t, repo.Create(ctx, newTicket(2, 10, time.Now()), guard))
}

func TestMemoryListWithFilter(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	first := newTicket(1, 10, base.Add(2*time.Minute))
	second := newTicket(1, 11, base.Add(time.Minute))
	other := newTicket(2, 10, base)
	other.State = domain.TicketStateClosed
	for _, tk := range []*domain.Ticket{first, second, other} {
		require.NoError(t, repo.Create(ctx, tk, nil))
	}

	session := int64(1)
	queue, err := repo.ListWithFilter(ctx, TicketFilter{SessionID: &session, States: domain.ActiveStates})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, second.ID, queue[0].ID)
	assert.Equal(t, first.ID, queue[1].ID)

	requester := int64(10)
	mine, err := repo.ListWithFilter(ctx, TicketFilter{RequesterID: &requester})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	closed, err := repo.ListWithFilter(ctx, TicketFilter{States: []domain.TicketState{domain.TicketStateClosed}})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, other.ID, closed[0].ID)

	paged, err := repo.ListWithFilter(ctx, TicketFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, second.ID, paged[0].ID)

	byIDs, err := repo.ListByIDs(ctx, []int64{first.ID, 999})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)

	empty, err := repo.ListByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryRoster(t *testing.T) {
	roster := NewMemoryRosterRepository()
	roster.Assign(1, 10, domain.RosterRoleStudent)
	roster.Assign(1, 20, domain.RosterRoleUTA)

	role, err := roster.RoleFor(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleRequester, role)

	role, err = roster.RoleFor(context.Background(), 20, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, role)

	role, err = roster.RoleFor(context.Background(), 20, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, role)
}

func TestMemoryRosterSeed(t *testing.T) {
	roster := NewMemoryRosterRepository()
	require.NoError(t, roster.Seed("1:10:student, 1:20:GTA,"))

	role, err := roster.RoleFor(context.Background(), 20, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, role)

	assert.Error(t, roster.Seed("1:10"))
	assert.Error(t, roster.Seed("1:x:UTA"))
	assert.Error(t, roster.Seed("1:10:AMBASSADOR"))
}
