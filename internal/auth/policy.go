package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Action is something an actor may do to a ticket.
type Action string

const (
	ActionCreate  Action = "create"
	ActionView    Action = "view"
	ActionList    Action = "list"
	ActionCall    Action = "call"
	ActionCancel  Action = "cancel"
	ActionClose   Action = "close"
	ActionSimilar Action = "similar"
)

const ticketObject = "ticket"

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// defaultRules is the role half of the transition table. State guards are
// evaluated by the lifecycle service.
var defaultRules = [][]string{
	{SubjectRequester, ticketObject, string(ActionCreate)},
	{SubjectRequester, ticketObject, string(ActionList)},
	{SubjectOwner, ticketObject, string(ActionView)},
	{SubjectOwner, ticketObject, string(ActionCancel)},
	{SubjectStaff, ticketObject, string(ActionView)},
	{SubjectStaff, ticketObject, string(ActionList)},
	{SubjectStaff, ticketObject, string(ActionCall)},
	{SubjectStaff, ticketObject, string(ActionCancel)},
	{SubjectStaff, ticketObject, string(ActionClose)},
	{SubjectStaff, ticketObject, string(ActionSimilar)},
}

// Policy decides which effective roles may perform which ticket actions.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPolicy builds the enforcer with the default office hours rules.
func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("parse policy model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := enforcer.AddPolicies(defaultRules); err != nil {
		return nil, fmt.Errorf("load policy rules: %w", err)
	}
	return &Policy{enforcer: enforcer}, nil
}

// Allowed reports whether any of subjects may perform act. Enforcer errors deny.
func (p *Policy) Allowed(subjects []string, act Action) bool {
	for _, sub := range subjects {
		ok, err := p.enforcer.Enforce(sub, ticketObject, string(act))
		if err == nil && ok {
			return true
		}
	}
	return false
}
