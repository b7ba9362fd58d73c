package domain

import (
	"errors"
	"strings"
)

// TicketType is the classification of a ticket.
type TicketType string

const (
	TicketTypeConceptualHelp TicketType = "CONCEPTUAL_HELP"
	TicketTypeAssignmentHelp TicketType = "ASSIGNMENT_HELP"
)

// ErrIncompleteDescription is returned when a required descriptive field is blank.
var ErrIncompleteDescription = errors.New("incomplete ticket description")

// Description is the classification-specific payload a requester supplies at creation.
// Exactly one implementation exists per TicketType; the field groups never mix.
type Description interface {
	Type() TicketType
	Validate() error
	isDescription()
}

// ConceptualDescription describes a conceptual-help ticket.
type ConceptualDescription struct {
	ConceptHelp string
}

func (ConceptualDescription) Type() TicketType { return TicketTypeConceptualHelp }
func (ConceptualDescription) isDescription()   {}

// Validate requires the concept description.
func (d ConceptualDescription) Validate() error {
	if isBlank(d.ConceptHelp) {
		return fieldError("concept_help_description")
	}
	return nil
}

// AssignmentDescription describes an assignment-help ticket.
type AssignmentDescription struct {
	AssignmentSection string
	CodeToEnglish     string
	ConceptsNeeded    string
	TacticsTried      string
}

func (AssignmentDescription) Type() TicketType { return TicketTypeAssignmentHelp }
func (AssignmentDescription) isDescription()   {}

// Validate requires every assignment field.
func (d AssignmentDescription) Validate() error {
	switch {
	case isBlank(d.AssignmentSection):
		return fieldError("assignment_section_description")
	case isBlank(d.CodeToEnglish):
		return fieldError("code_to_english_description")
	case isBlank(d.ConceptsNeeded):
		return fieldError("concepts_needed_description")
	case isBlank(d.TacticsTried):
		return fieldError("tactics_tried")
	}
	return nil
}

// DescriptionField is a labeled descriptive value.
type DescriptionField struct {
	Key   string
	Label string
	Value string
}

// Fields returns the description's fields in their fixed order.
func Fields(d Description) []DescriptionField {
	switch v := d.(type) {
	case ConceptualDescription:
		return []DescriptionField{
			{Key: "concept_help_description", Label: "Concept Help Description", Value: v.ConceptHelp},
		}
	case AssignmentDescription:
		return []DescriptionField{
			{Key: "assignment_section_description", Label: "Assignment Help Description", Value: v.AssignmentSection},
			{Key: "code_to_english_description", Label: "Code to English", Value: v.CodeToEnglish},
			{Key: "concepts_needed_description", Label: "Concepts Needed", Value: v.ConceptsNeeded},
			{Key: "tactics_tried", Label: "Tactics Tried", Value: v.TacticsTried},
		}
	default:
		return nil
	}
}

type descriptionFieldError struct {
	field string
}

func (e *descriptionFieldError) Error() string { return e.field + " is required" }

func (e *descriptionFieldError) Unwrap() error { return ErrIncompleteDescription }

// Field names the missing field.
func (e *descriptionFieldError) Field() string { return e.field }

func fieldError(field string) error {
	return &descriptionFieldError{field: field}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
