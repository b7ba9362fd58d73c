// Package matching adapts the external similarity oracle: it encodes tickets
// into a deterministic prompt and validates the identifiers that come back.
package matching

import (
	"context"
	"strconv"
	"strings"

	"github.com/spec-kit/office-hours/internal/domain"
)

// SystemPrompt frames the oracle's task.
const SystemPrompt = "You are an AI assistant helping a team with office hours by finding past office hours tickets that are either conceptually similar or have similar issues to a current one. Return a list of ticket ids that are similar to the one given."

const responseInstruction = `Return a JSON object like: { "similar_ticket_ids": [3, 12, 17] }`

// Ranker returns the identifiers of corpus tickets similar to query, best first.
type Ranker interface {
	Rank(ctx context.Context, query Query, corpus []domain.Ticket) ([]int64, error)
}

// Query is the encoded open ticket: only the field group of its classification.
type Query struct {
	Type   domain.TicketType
	Fields []domain.DescriptionField
}

// QueryFor builds the query for an open ticket's description.
func QueryFor(d domain.Description) Query {
	return Query{Type: d.Type(), Fields: domain.Fields(d)}
}

// BuildPrompt renders the query followed by every corpus ticket, each in the
// fixed field order of its classification, then the response instruction.
func BuildPrompt(query Query, corpus []domain.Ticket) string {
	var b strings.Builder
	b.WriteString("Current Ticket:\n")
	for _, f := range query.Fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		writeLine(&b, f.Key, f.Value)
	}

	b.WriteString("\nPast Tickets:\n")
	for i := range corpus {
		writeTicket(&b, &corpus[i])
	}

	b.WriteString("\n")
	b.WriteString(responseInstruction)
	return b.String()
}

func writeTicket(b *strings.Builder, t *domain.Ticket) {
	writeLine(b, "ID", strconv.FormatInt(t.ID, 10))
	if t.Description != nil {
		for _, f := range domain.Fields(t.Description) {
			writeLine(b, f.Label, f.Value)
		}
	}
	var res domain.Resolution
	if t.Resolution != nil {
		res = *t.Resolution
	}
	writeLine(b, "Meeting Summary", res.MeetingSummary)
	writeLine(b, "Solutions and Tools Used", res.SolutionsUsed)
	writeLine(b, "Concepts for Review", res.ConceptsForReview)
	b.WriteString("---\n")
}

func writeLine(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}
