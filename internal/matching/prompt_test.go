package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/office-hours/internal/domain"
)

func TestBuildPromptAssignmentQuery(t *testing.T) {
	query := QueryFor(domain.AssignmentDescription{
		AssignmentSection: "EX02",
		CodeToEnglish:     "loop over list",
		ConceptsNeeded:    "for loops",
		TacticsTried:      "print debugging",
	})
	corpus := []domain.Ticket{
		{
			ID:          4,
			State:       domain.TicketStateClosed,
			Description: domain.ConceptualDescription{ConceptHelp: "recursion base case"},
			Resolution:  &domain.Resolution{MeetingSummary: "drew stack", SolutionsUsed: "diagram", ConceptsForReview: "call stack"},
		},
		{
			ID:          9,
			State:       domain.TicketStateClosed,
			Description: domain.AssignmentDescription{AssignmentSection: "EX01", CodeToEnglish: "sum", ConceptsNeeded: "vars", TacticsTried: "docs"},
		},
	}

	want := "Current Ticket:\n" +
		"assignment_section_description: EX02\n" +
		"code_to_english_description: loop over list\n" +
		"concepts_needed_description: for loops\n" +
		"tactics_tried: print debugging\n" +
		"\nPast Tickets:\n" +
		"ID: 4\n" +
		"Concept Help Description: recursion base case\n" +
		"Meeting Summary: drew stack\n" +
		"Solutions and Tools Used: diagram\n" +
		"Concepts for Review: call stack\n" +
		"---\n" +
		"ID: 9\n" +
		"Assignment Help Description: EX01\n" +
		"Code to English: sum\n" +
		"Concepts Needed: vars\n" +
		"Tactics Tried: docs\n" +
		"Meeting Summary: \n" +
		"Solutions and Tools Used: \n" +
		"Concepts for Review: \n" +
		"---\n" +
		"\nReturn a JSON object like: { \"similar_ticket_ids\": [3, 12, 17] }"

	assert.Equal(t, want, BuildPrompt(query, corpus))
	assert.Equal(t, domain.TicketTypeAssignmentHelp, query.Type)
}

func TestBuildPromptConceptualQueryOnlyUsesItsGroup(t *testing.T) {
	query := QueryFor(domain.ConceptualDescription{ConceptHelp: "pointers"})
	prompt := BuildPrompt(query, nil)

	assert.Equal(t, "Current Ticket:\nconcept_help_description: pointers\n\nPast Tickets:\n\n"+responseInstruction, prompt)
	assert.NotContains(t, prompt, "tactics_tried")
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	query := QueryFor(domain.ConceptualDescription{ConceptHelp: "maps"})
	corpus := []domain.Ticket{{ID: 1, Description: domain.ConceptualDescription{ConceptHelp: "sets"}}}
	assert.Equal(t, BuildPrompt(query, corpus), BuildPrompt(query, corpus))
}
