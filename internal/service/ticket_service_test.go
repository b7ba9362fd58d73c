package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/clock"
	"github.com/spec-kit/office-hours/internal/domain"
	"github.com/spec-kit/office-hours/internal/events"
	"github.com/spec-kit/office-hours/internal/repository"
	apperrors "github.com/spec-kit/office-hours/pkg/util/errorutil"
)

const (
	session      int64 = 1
	otherSession int64 = 2

	studentA int64 = 10
	studentB int64 = 11
	staffX   int64 = 20
	staffY   int64 = 21
	outsider int64 = 99
)

type fixture struct {
	svc     *TicketService
	repo    repository.TicketRepository
	history repository.TicketHistoryRepository
	roster  *repository.MemoryRosterRepository
	clock   *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	policy, err := auth.NewPolicy()
	require.NoError(t, err)

	roster := repository.NewMemoryRosterRepository()
	roster.Assign(session, studentA, domain.RosterRoleStudent)
	roster.Assign(session, studentB, domain.RosterRoleStudent)
	roster.Assign(session, staffX, domain.RosterRoleUTA)
	roster.Assign(session, staffY, domain.RosterRoleInstructor)
	roster.Assign(otherSession, studentA, domain.RosterRoleStudent)
	roster.Assign(otherSession, staffX, domain.RosterRoleGTA)

	repo := repository.NewMemoryTicketRepository()
	history := repository.NewMemoryTicketHistoryRepository()
	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, history, nil).RegisterHandlers()

	fake := clock.NewFake(time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC))
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Roster:     roster,
		Policy:     policy,
		Clock:      fake,
		Dispatcher: dispatcher,
	})
	return &fixture{svc: svc, repo: repo, history: history, roster: roster, clock: fake}
}

func conceptual(text string) TicketCreateInput {
	return TicketCreateInput{OfficeHoursID: session, Description: domain.ConceptualDescription{ConceptHelp: text}}
}

func resolution() TicketCloseInput {
	return TicketCloseInput{Resolution: domain.Resolution{MeetingSummary: "walked through it", SolutionsUsed: "whiteboard"}}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, code), "want %s, got %v", code, err)
}

func TestCreateTicketScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateQueued, t1.State)
	assert.Equal(t, []int64{studentA}, t1.CreatorIDs)
	assert.Equal(t, f.clock.Now(), t1.CreatedAt)
	assert.Nil(t, t1.CalledAt)
	assert.Nil(t, t1.CallerID)

	_, err = f.svc.CreateTicket(ctx, studentA, conceptual("Y"))
	assertCode(t, err, apperrors.CodePermissionDenied)

	// Another session is a separate queue.
	_, err = f.svc.CreateTicket(ctx, studentA, TicketCreateInput{OfficeHoursID: otherSession, Description: domain.ConceptualDescription{ConceptHelp: "Z"}})
	require.NoError(t, err)
}

func TestCreateTicketRequiresRequesterStanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTicket(ctx, outsider, conceptual("X"))
	assertCode(t, err, apperrors.CodePermissionDenied)

	_, err = f.svc.CreateTicket(ctx, staffX, conceptual("X"))
	assertCode(t, err, apperrors.CodePermissionDenied)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTicket(ctx, studentA, TicketCreateInput{OfficeHoursID: session})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.svc.CreateTicket(ctx, studentA, TicketCreateInput{
		OfficeHoursID: session,
		Description:   domain.AssignmentDescription{AssignmentSection: "EX01", CodeToEnglish: "loop"},
	})
	assertCode(t, err, apperrors.CodeValidation)
	assert.Equal(t, "concepts_needed_description", apperrors.ToDomainError(err).Details["field"])

	queue, err := f.svc.ListQueue(ctx, staffX, session)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestCallAndCloseScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	called, err := f.svc.CallTicket(ctx, staffX, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateCalled, called.State)
	require.NotNil(t, called.CallerID)
	assert.Equal(t, staffX, *called.CallerID)
	require.NotNil(t, called.CalledAt)
	calledAt := *called.CalledAt
	assert.Equal(t, f.clock.Now(), calledAt)

	_, err = f.svc.CallTicket(ctx, staffY, t1.ID)
	assertCode(t, err, apperrors.CodePermissionDenied)

	f.clock.Advance(10 * time.Minute)
	input := resolution()
	input.HaveConcerns = true
	input.CallerNotes = "needs review"
	closed, err := f.svc.CloseTicket(ctx, staffY, t1.ID, input)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateClosed, closed.State)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, f.clock.Now(), *closed.ClosedAt)
	assert.Equal(t, calledAt, *closed.CalledAt)
	assert.Equal(t, staffX, *closed.CallerID)
	assert.Equal(t, "walked through it", closed.Resolution.MeetingSummary)
	assert.True(t, closed.HaveConcerns)
	assert.Equal(t, "needs review", closed.CallerNotes)

	_, err = f.svc.CloseTicket(ctx, staffY, t1.ID, resolution())
	assertCode(t, err, apperrors.CodePermissionDenied)

	// The requester is free to queue again once the ticket is resolved.
	_, err = f.svc.CreateTicket(ctx, studentA, conceptual("next"))
	require.NoError(t, err)
}

func TestCloseRequiresResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)
	_, err = f.svc.CallTicket(ctx, staffX, t1.ID)
	require.NoError(t, err)

	_, err = f.svc.CloseTicket(ctx, staffX, t1.ID, TicketCloseInput{Resolution: domain.Resolution{MeetingSummary: "   "}})
	assertCode(t, err, apperrors.CodeValidation)

	stored, err := f.repo.GetByID(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateCalled, stored.State)
	assert.Nil(t, stored.Resolution)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)

	_, err = f.svc.CancelTicket(ctx, studentB, t1.ID)
	assertCode(t, err, apperrors.CodePermissionDenied)
	_, err = f.svc.CancelTicket(ctx, outsider, t1.ID)
	assertCode(t, err, apperrors.CodePermissionDenied)

	canceled, err := f.svc.CancelTicket(ctx, studentA, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateCanceled, canceled.State)
	assert.Nil(t, canceled.Resolution)

	_, err = f.svc.CancelTicket(ctx, staffX, t1.ID)
	assertCode(t, err, apperrors.CodePermissionDenied)

	// Canceling a called ticket keeps the caller on record.
	t2, err := f.svc.CreateTicket(ctx, studentA, conceptual("Y"))
	require.NoError(t, err)
	_, err = f.svc.CallTicket(ctx, staffX, t2.ID)
	require.NoError(t, err)
	canceled, err = f.svc.CancelTicket(ctx, staffY, t2.ID)
	require.NoError(t, err)
	require.NotNil(t, canceled.CallerID)
	assert.Equal(t, staffX, *canceled.CallerID)
	assert.NotNil(t, canceled.CalledAt)
	assert.Nil(t, canceled.ClosedAt)
}

func TestMissingTicketIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CallTicket(ctx, staffX, 404)
	assertCode(t, err, apperrors.CodeNotFound)
	_, err = f.svc.CancelTicket(ctx, staffX, 404)
	assertCode(t, err, apperrors.CodeNotFound)
	_, err = f.svc.CloseTicket(ctx, staffX, 404, resolution())
	assertCode(t, err, apperrors.CodeNotFound)
	_, err = f.svc.GetTicket(ctx, staffX, 404)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestTransitionsOutsideTableAreDenied(t *testing.T) {
	type step func(f *fixture, id int64) error
	call := func(f *fixture, id int64) error { _, err := f.svc.CallTicket(context.Background(), staffX, id); return err }
	cancel := func(f *fixture, id int64) error { _, err := f.svc.CancelTicket(context.Background(), staffX, id); return err }
	closeT := func(f *fixture, id int64) error {
		_, err := f.svc.CloseTicket(context.Background(), staffX, id, resolution())
		return err
	}

	cases := []struct {
		name  string
		setup []step
		try   step
	}{
		{"queued to closed", nil, closeT},
		{"called to called", []step{call}, call},
		{"closed to called", []step{call, closeT}, call},
		{"closed to canceled", []step{call, closeT}, cancel},
		{"canceled to called", []step{cancel}, call},
		{"canceled to closed", []step{cancel}, closeT},
		{"canceled to canceled", []step{cancel}, cancel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ticket, err := f.svc.CreateTicket(context.Background(), studentA, conceptual("X"))
			require.NoError(t, err)
			for _, s := range tc.setup {
				require.NoError(t, s(f, ticket.ID))
			}
			before, err := f.repo.GetByID(context.Background(), ticket.ID)
			require.NoError(t, err)

			assertCode(t, tc.try(f, ticket.ID), apperrors.CodePermissionDenied)

			after, err := f.repo.GetByID(context.Background(), ticket.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestRequesterCannotCallOrClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)

	_, err = f.svc.CallTicket(ctx, studentA, t1.ID)
	assertCode(t, err, apperrors.CodePermissionDenied)

	// Staff of a different session have no standing here.
	other, err := f.svc.CreateTicket(ctx, studentA, TicketCreateInput{OfficeHoursID: otherSession, Description: domain.ConceptualDescription{ConceptHelp: "Z"}})
	require.NoError(t, err)
	_, err = f.svc.CallTicket(ctx, staffY, other.ID)
	assertCode(t, err, apperrors.CodePermissionDenied)
}

func TestConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)

	var wins, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		actor := staffX
		if i%2 == 1 {
			actor = staffY
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CallTicket(ctx, actor, t1.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.IsCode(err, apperrors.CodePermissionDenied):
				denied.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(19), denied.Load())

	history, err := f.history.ListByTicket(ctx, t1.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestConcurrentCancelAndCloseHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)
	_, err = f.svc.CallTicket(ctx, staffX, t1.ID)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := f.svc.CancelTicket(ctx, studentA, t1.ID); err == nil {
			wins.Add(1)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := f.svc.CloseTicket(ctx, staffY, t1.ID, resolution()); err == nil {
			wins.Add(1)
		}
	}()
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestConcurrentCreatesKeepOneActiveTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CreateTicket(ctx, studentA, conceptual("X")); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())

	queue, err := f.svc.ListQueue(ctx, staffX, session)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestGetTicketIsStableAndScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)

	first, err := f.svc.GetTicket(ctx, studentA, t1.ID)
	require.NoError(t, err)
	second, err := f.svc.GetTicket(ctx, staffX, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = f.svc.GetTicket(ctx, studentB, t1.ID)
	assertCode(t, err, apperrors.CodePermissionDenied)
}

func TestListQueueScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateTicket(ctx, studentA, conceptual("A"))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	b, err := f.svc.CreateTicket(ctx, studentB, conceptual("B"))
	require.NoError(t, err)

	staffQueue, err := f.svc.ListQueue(ctx, staffX, session)
	require.NoError(t, err)
	require.Len(t, staffQueue, 2)
	assert.Equal(t, a.ID, staffQueue[0].ID)
	assert.Equal(t, b.ID, staffQueue[1].ID)

	mine, err := f.svc.ListQueue(ctx, studentB, session)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, b.ID, mine[0].ID)

	_, err = f.svc.ListQueue(ctx, outsider, session)
	assertCode(t, err, apperrors.CodePermissionDenied)
}

func TestTransitionsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, err := f.svc.CreateTicket(ctx, studentA, conceptual("X"))
	require.NoError(t, err)
	_, err = f.svc.CallTicket(ctx, staffX, t1.ID)
	require.NoError(t, err)
	_, err = f.svc.CloseTicket(ctx, staffX, t1.ID, resolution())
	require.NoError(t, err)

	history, err := f.history.ListByTicket(ctx, t1.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Nil(t, history[0].OldState)
	assert.Equal(t, domain.TicketStateQueued, history[0].NewState)
	assert.Equal(t, studentA, history[0].ActorID)

	require.NotNil(t, history[2].OldState)
	assert.Equal(t, domain.TicketStateCalled, *history[2].OldState)
	assert.Equal(t, domain.TicketStateClosed, history[2].NewState)
	assert.Equal(t, staffX, history[2].ActorID)
	assert.NotEmpty(t, history[2].Details["event_id"])
}
