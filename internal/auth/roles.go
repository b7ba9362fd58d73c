package auth

import (
	"github.com/spec-kit/office-hours/internal/domain"
)

// Policy subjects. OWNER is held in addition to the session role by a ticket's creators.
const (
	SubjectRequester = "REQUESTER"
	SubjectStaff     = "STAFF"
	SubjectOwner     = "OWNER"
)

// Subjects returns the policy subjects held by an actor with the given
// session role, optionally as an owner of the ticket in question.
func Subjects(role domain.Role, owner bool) []string {
	subjects := make([]string, 0, 2)
	switch role {
	case domain.RoleRequester:
		subjects = append(subjects, SubjectRequester)
	case domain.RoleStaff:
		subjects = append(subjects, SubjectStaff)
	}
	if owner {
		subjects = append(subjects, SubjectOwner)
	}
	return subjects
}
