package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/office-hours/internal/domain"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// TicketFilter is the predicate for ticket queries. Nil/empty fields do not filter.
type TicketFilter struct {
	SessionID   *int64
	RequesterID *int64
	States      []domain.TicketState
	IDs         []int64
	Limit       int
	Offset      int
}

// CreateGuard inspects the requester's active tickets in the target session
// while creation is serialized for that requester. A non-nil error aborts the insert.
type CreateGuard func(active []domain.Ticket) error

// UpdateFunc validates and mutates a ticket while its row is locked.
// A non-nil error aborts the write and is returned unchanged.
type UpdateFunc func(ticket *domain.Ticket) error

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, guard CreateGuard) error
	Update(ctx context.Context, id int64, apply UpdateFunc) (*domain.Ticket, error)
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

// PgxConn is the part of *pgxpool.Pool the postgres repositories use.
type PgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ticketRepository struct {
	pool PgxConn
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool PgxConn) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.office_hours_id, t.type, t.state,
        t.concept_help_description, t.assignment_section_description, t.code_to_english_description,
        t.concepts_needed_description, t.tactics_tried,
        t.meeting_summary, t.solutions_used, t.concepts_for_review,
        t.have_concerns, t.caller_notes, t.caller_id, t.created_at, t.called_at, t.closed_at,
        ARRAY(SELECT c.user_id FROM office_hours__ticket_creator c WHERE c.ticket_id = t.id ORDER BY c.user_id) AS creator_ids`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, guard CreateGuard) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	creators := slices.Clone(ticket.CreatorIDs)
	slices.Sort(creators)
	// Sorted lock order keeps concurrent multi-creator inserts deadlock free.
	for _, creatorID := range creators {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			requesterLockKey(ticket.OfficeHoursID, creatorID)); err != nil {
			return fmt.Errorf("lock requester %d: %w", creatorID, err)
		}
	}

	if guard != nil {
		const activeQuery = `
        SELECT ` + ticketColumns + `
        FROM office_hours__ticket t
        WHERE t.office_hours_id=$1 AND t.state = ANY($2)
          AND EXISTS (SELECT 1 FROM office_hours__ticket_creator c WHERE c.ticket_id = t.id AND c.user_id = ANY($3))`
		rows, err := tx.Query(ctx, activeQuery, ticket.OfficeHoursID, stateStrings(domain.ActiveStates), creators)
		if err != nil {
			return err
		}
		active, err := scanTickets(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if err := guard(active); err != nil {
			return err
		}
	}

	cols := descriptionColumns(ticket.Description)
	const insert = `
        INSERT INTO office_hours__ticket (office_hours_id, type, state,
            concept_help_description, assignment_section_description, code_to_english_description,
            concepts_needed_description, tactics_tried, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id`
	if err := tx.QueryRow(ctx, insert,
		ticket.OfficeHoursID,
		ticket.Type(),
		ticket.State,
		cols.conceptHelp,
		cols.assignmentSection,
		cols.codeToEnglish,
		cols.conceptsNeeded,
		cols.tacticsTried,
		ticket.CreatedAt,
	).Scan(&ticket.ID); err != nil {
		return err
	}

	for _, creatorID := range creators {
		if _, err := tx.Exec(ctx,
			`INSERT INTO office_hours__ticket_creator (ticket_id, user_id) VALUES ($1,$2)`,
			ticket.ID, creatorID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) Update(ctx context.Context, id int64, apply UpdateFunc) (*domain.Ticket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT `+ticketColumns+` FROM office_hours__ticket t WHERE t.id=$1 FOR UPDATE OF t`, id)
	if err != nil {
		return nil, err
	}
	locked, err := scanTickets(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, ErrNotFound
	}
	ticket := &locked[0]

	if err := apply(ticket); err != nil {
		return nil, err
	}

	var res domain.Resolution
	if ticket.Resolution != nil {
		res = *ticket.Resolution
	}
	const update = `
        UPDATE office_hours__ticket SET state=$1, meeting_summary=$2, solutions_used=$3, concepts_for_review=$4,
            have_concerns=$5, caller_notes=$6, caller_id=$7, called_at=$8, closed_at=$9
        WHERE id=$10`
	cmd, err := tx.Exec(ctx, update,
		ticket.State,
		nullIfResolutionMissing(ticket, res.MeetingSummary),
		nullIfResolutionMissing(ticket, res.SolutionsUsed),
		nullIfResolutionMissing(ticket, res.ConceptsForReview),
		ticket.HaveConcerns,
		ticket.CallerNotes,
		ticket.CallerID,
		ticket.CalledAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	tickets, err := r.ListWithFilter(ctx, TicketFilter{IDs: []int64{id}})
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, ErrNotFound
	}
	return &tickets[0], nil
}

func (r *ticketRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	if len(ids) == 0 {
		return []domain.Ticket{}, nil
	}
	return r.ListWithFilter(ctx, TicketFilter{IDs: ids})
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM office_hours__ticket t`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.SessionID != nil {
		args = append(args, *filter.SessionID)
		clauses = append(clauses, fmt.Sprintf("t.office_hours_id=$%d", len(args)))
	}
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM office_hours__ticket_creator c WHERE c.ticket_id = t.id AND c.user_id=$%d)", len(args)))
	}
	if len(filter.States) > 0 {
		args = append(args, stateStrings(filter.States))
		clauses = append(clauses, fmt.Sprintf("t.state = ANY($%d)", len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		clauses = append(clauses, fmt.Sprintf("t.id = ANY($%d)", len(args)))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at ASC, t.id ASC`, base, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ticketRow mirrors the office_hours__ticket columns before they are folded
// into the domain's tagged description.
type ticketRow struct {
	ID                int64
	OfficeHoursID     int64
	Type              domain.TicketType
	State             domain.TicketState
	ConceptHelp       *string
	AssignmentSection *string
	CodeToEnglish     *string
	ConceptsNeeded    *string
	TacticsTried      *string
	MeetingSummary    *string
	SolutionsUsed     *string
	ConceptsForReview *string
	HaveConcerns      bool
	CallerNotes       string
	CallerID          *int64
	CreatedAt         time.Time
	CalledAt          *time.Time
	ClosedAt          *time.Time
	CreatorIDs        []int64
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var row ticketRow
		if err := rows.Scan(
			&row.ID,
			&row.OfficeHoursID,
			&row.Type,
			&row.State,
			&row.ConceptHelp,
			&row.AssignmentSection,
			&row.CodeToEnglish,
			&row.ConceptsNeeded,
			&row.TacticsTried,
			&row.MeetingSummary,
			&row.SolutionsUsed,
			&row.ConceptsForReview,
			&row.HaveConcerns,
			&row.CallerNotes,
			&row.CallerID,
			&row.CreatedAt,
			&row.CalledAt,
			&row.ClosedAt,
			&row.CreatorIDs,
		); err != nil {
			return nil, err
		}
		ticket, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (row ticketRow) toDomain() (domain.Ticket, error) {
	ticket := domain.Ticket{
		ID:            row.ID,
		OfficeHoursID: row.OfficeHoursID,
		State:         row.State,
		CreatorIDs:    row.CreatorIDs,
		CallerID:      row.CallerID,
		HaveConcerns:  row.HaveConcerns,
		CallerNotes:   row.CallerNotes,
		CreatedAt:     row.CreatedAt,
		CalledAt:      row.CalledAt,
		ClosedAt:      row.ClosedAt,
	}
	switch row.Type {
	case domain.TicketTypeConceptualHelp:
		ticket.Description = domain.ConceptualDescription{ConceptHelp: deref(row.ConceptHelp)}
	case domain.TicketTypeAssignmentHelp:
		ticket.Description = domain.AssignmentDescription{
			AssignmentSection: deref(row.AssignmentSection),
			CodeToEnglish:     deref(row.CodeToEnglish),
			ConceptsNeeded:    deref(row.ConceptsNeeded),
			TacticsTried:      deref(row.TacticsTried),
		}
	default:
		return domain.Ticket{}, fmt.Errorf("ticket %d: unknown type %q", row.ID, row.Type)
	}
	if row.State == domain.TicketStateClosed {
		ticket.Resolution = &domain.Resolution{
			MeetingSummary:    deref(row.MeetingSummary),
			SolutionsUsed:     deref(row.SolutionsUsed),
			ConceptsForReview: deref(row.ConceptsForReview),
		}
	}
	return ticket, nil
}

type descriptionCols struct {
	conceptHelp       *string
	assignmentSection *string
	codeToEnglish     *string
	conceptsNeeded    *string
	tacticsTried      *string
}

// descriptionColumns leaves the other classification's columns NULL.
func descriptionColumns(d domain.Description) descriptionCols {
	switch v := d.(type) {
	case domain.ConceptualDescription:
		return descriptionCols{conceptHelp: &v.ConceptHelp}
	case domain.AssignmentDescription:
		return descriptionCols{
			assignmentSection: &v.AssignmentSection,
			codeToEnglish:     &v.CodeToEnglish,
			conceptsNeeded:    &v.ConceptsNeeded,
			tacticsTried:      &v.TacticsTried,
		}
	default:
		return descriptionCols{}
	}
}

func nullIfResolutionMissing(ticket *domain.Ticket, val string) *string {
	if ticket.Resolution == nil {
		return nil
	}
	return &val
}

func requesterLockKey(sessionID, requesterID int64) string {
	return fmt.Sprintf("office_hours:%d:requester:%d", sessionID, requesterID)
}

func stateStrings(states []domain.TicketState) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
