package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/office-hours/internal/domain"
)

// CreateTicketRequest payload. Only the field group selected by Type may be set.
type CreateTicketRequest struct {
	OfficeHoursID                int64             `json:"office_hours_id"`
	Type                         domain.TicketType `json:"type"`
	ConceptHelpDescription       string            `json:"concept_help_description"`
	AssignmentSectionDescription string            `json:"assignment_section_description"`
	CodeToEnglishDescription     string            `json:"code_to_english_description"`
	ConceptsNeededDescription    string            `json:"concepts_needed_description"`
	TacticsTried                 string            `json:"tactics_tried"`
}

// Description converts the flat payload into the tagged description. It
// returns the name of the offending field when the groups are mixed or the
// type is unknown.
func (r CreateTicketRequest) Description() (domain.Description, string) {
	switch r.Type {
	case domain.TicketTypeConceptualHelp:
		assignment := [][2]string{
			{"assignment_section_description", r.AssignmentSectionDescription},
			{"code_to_english_description", r.CodeToEnglishDescription},
			{"concepts_needed_description", r.ConceptsNeededDescription},
			{"tactics_tried", r.TacticsTried},
		}
		for _, f := range assignment {
			if strings.TrimSpace(f[1]) != "" {
				return nil, f[0]
			}
		}
		return domain.ConceptualDescription{ConceptHelp: strings.TrimSpace(r.ConceptHelpDescription)}, ""
	case domain.TicketTypeAssignmentHelp:
		if strings.TrimSpace(r.ConceptHelpDescription) != "" {
			return nil, "concept_help_description"
		}
		return domain.AssignmentDescription{
			AssignmentSection: strings.TrimSpace(r.AssignmentSectionDescription),
			CodeToEnglish:     strings.TrimSpace(r.CodeToEnglishDescription),
			ConceptsNeeded:    strings.TrimSpace(r.ConceptsNeededDescription),
			TacticsTried:      strings.TrimSpace(r.TacticsTried),
		}, ""
	default:
		return nil, "type"
	}
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	MeetingSummary    string `json:"meeting_summary"`
	SolutionsUsed     string `json:"solutions_used"`
	ConceptsForReview string `json:"concepts_for_review"`
	HaveConcerns      bool   `json:"have_concerns"`
	CallerNotes       string `json:"caller_notes"`
}

// ResolutionView is the close-time write-up.
type ResolutionView struct {
	MeetingSummary    string `json:"meeting_summary"`
	SolutionsUsed     string `json:"solutions_used"`
	ConceptsForReview string `json:"concepts_for_review"`
}

// TicketView is the public representation of a ticket.
type TicketView struct {
	ID                           int64              `json:"id"`
	OfficeHoursID                int64              `json:"office_hours_id"`
	Type                         domain.TicketType  `json:"type"`
	State                        domain.TicketState `json:"state"`
	ConceptHelpDescription       string             `json:"concept_help_description,omitempty"`
	AssignmentSectionDescription string             `json:"assignment_section_description,omitempty"`
	CodeToEnglishDescription     string             `json:"code_to_english_description,omitempty"`
	ConceptsNeededDescription    string             `json:"concepts_needed_description,omitempty"`
	TacticsTried                 string             `json:"tactics_tried,omitempty"`
	Resolution                   *ResolutionView    `json:"resolution"`
	CreatorIDs                   []int64            `json:"creator_ids"`
	CallerID                     *int64             `json:"caller_id"`
	HaveConcerns                 bool               `json:"have_concerns"`
	CallerNotes                  string             `json:"caller_notes,omitempty"`
	CreatedAt                    time.Time          `json:"created_at"`
	CalledAt                     *time.Time         `json:"called_at"`
	ClosedAt                     *time.Time         `json:"closed_at"`
}

// NewTicketView maps a domain ticket to its view.
func NewTicketView(t *domain.Ticket) TicketView {
	view := TicketView{
		ID:            t.ID,
		OfficeHoursID: t.OfficeHoursID,
		Type:          t.Type(),
		State:         t.State,
		CreatorIDs:    t.CreatorIDs,
		CallerID:      t.CallerID,
		HaveConcerns:  t.HaveConcerns,
		CallerNotes:   t.CallerNotes,
		CreatedAt:     t.CreatedAt,
		CalledAt:      t.CalledAt,
		ClosedAt:      t.ClosedAt,
	}
	switch d := t.Description.(type) {
	case domain.ConceptualDescription:
		view.ConceptHelpDescription = d.ConceptHelp
	case domain.AssignmentDescription:
		view.AssignmentSectionDescription = d.AssignmentSection
		view.CodeToEnglishDescription = d.CodeToEnglish
		view.ConceptsNeededDescription = d.ConceptsNeeded
		view.TacticsTried = d.TacticsTried
	}
	if t.Resolution != nil {
		view.Resolution = &ResolutionView{
			MeetingSummary:    t.Resolution.MeetingSummary,
			SolutionsUsed:     t.Resolution.SolutionsUsed,
			ConceptsForReview: t.Resolution.ConceptsForReview,
		}
	}
	if view.CreatorIDs == nil {
		view.CreatorIDs = []int64{}
	}
	return view
}

// NewTicketViews maps a list of tickets.
func NewTicketViews(tickets []domain.Ticket) []TicketView {
	items := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketView(&tickets[i]))
	}
	return items
}
