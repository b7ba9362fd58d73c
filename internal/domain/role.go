package domain

// Role is an identity's standing for one office hours session.
type Role string

const (
	RoleNone      Role = "NONE"
	RoleRequester Role = "REQUESTER"
	RoleStaff     Role = "STAFF"
)

// RosterRole enumerates course roster roles as stored by the roster collaborator.
type RosterRole string

const (
	RosterRoleStudent    RosterRole = "STUDENT"
	RosterRoleUTA        RosterRole = "UTA"
	RosterRoleGTA        RosterRole = "GTA"
	RosterRoleInstructor RosterRole = "INSTRUCTOR"
)

// RoleFromRoster collapses a roster role into session standing.
func RoleFromRoster(r RosterRole) Role {
	switch r {
	case RosterRoleStudent:
		return RoleRequester
	case RosterRoleUTA, RosterRoleGTA, RosterRoleInstructor:
		return RoleStaff
	default:
		return RoleNone
	}
}
