package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/office-hours/internal/domain"
)

// RosterRepository resolves an identity's standing for an office hours session.
type RosterRepository interface {
	RoleFor(ctx context.Context, userID, sessionID int64) (domain.Role, error)
}

type rosterRepository struct {
	pool PgxConn
}

// NewRosterRepository reads roster membership maintained by the course roster service.
func NewRosterRepository(pool PgxConn) RosterRepository {
	return &rosterRepository{pool: pool}
}

func (r *rosterRepository) RoleFor(ctx context.Context, userID, sessionID int64) (domain.Role, error) {
	const query = `
        SELECT member_role FROM office_hours__roster
        WHERE office_hours_id=$1 AND user_id=$2`
	var role domain.RosterRole
	if err := r.pool.QueryRow(ctx, query, sessionID, userID).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoleNone, nil
		}
		return domain.RoleNone, err
	}
	return domain.RoleFromRoster(role), nil
}

// MemoryRosterRepository is an in-process roster used in development mode and tests.
type MemoryRosterRepository struct {
	mu      sync.RWMutex
	members map[string]domain.RosterRole
}

// NewMemoryRosterRepository builds an empty roster.
func NewMemoryRosterRepository() *MemoryRosterRepository {
	return &MemoryRosterRepository{members: make(map[string]domain.RosterRole)}
}

// Assign records userID's roster role for sessionID.
func (r *MemoryRosterRepository) Assign(sessionID, userID int64, role domain.RosterRole) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[rosterKey(sessionID, userID)] = role
}

func (r *MemoryRosterRepository) RoleFor(ctx context.Context, userID, sessionID int64) (domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.members[rosterKey(sessionID, userID)]
	if !ok {
		return domain.RoleNone, nil
	}
	return domain.RoleFromRoster(role), nil
}

// Seed assigns every "session:user:ROLE" entry of a comma separated list.
func (r *MemoryRosterRepository) Seed(spec string) error {
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return fmt.Errorf("roster entry %q: want session:user:ROLE", entry)
		}
		sessionID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("roster entry %q: %w", entry, err)
		}
		userID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("roster entry %q: %w", entry, err)
		}
		role := domain.RosterRole(strings.ToUpper(parts[2]))
		if domain.RoleFromRoster(role) == domain.RoleNone {
			return fmt.Errorf("roster entry %q: unknown role %s", entry, parts[2])
		}
		r.Assign(sessionID, userID, role)
	}
	return nil
}

func rosterKey(sessionID, userID int64) string {
	return fmt.Sprintf("%d:%d", sessionID, userID)
}
