// Package permission decides whether a caller may perform an operation on a
// ticket and, for updates, which fields the caller may change.
package permission

import (
	"github.com/spec-kit/helpdesk/internal/domain"
)

// Operation identifies what the caller wants to do.
type Operation string

const (
	OpRead       Operation = "read"
	OpCreate     Operation = "create"
	OpUpdate     Operation = "update"
	OpDelete     Operation = "delete"
	OpComment    Operation = "comment"
	OpTransition Operation = "transition"
	OpViewStats  Operation = "view_stats"
	OpListAgents Operation = "list_agents"
)

// Field names a mutable ticket attribute.
type Field string

const (
	FieldTitle         Field = "title"
	FieldDescription   Field = "description"
	FieldPriority      Field = "priority"
	FieldDepartment    Field = "department"
	FieldStatus        Field = "status"
	FieldAssignedAgent Field = "assigned_agent"
)

// FieldSet is the set of fields a caller may change.
type FieldSet map[Field]struct{}

func newFieldSet(fields ...Field) FieldSet {
	set := make(FieldSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Has reports whether f is in the set. A nil set contains nothing.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Decision is the evaluator's verdict.
type Decision struct {
	Allowed bool
	Fields  FieldSet
	// Reason explains a denial in terms a non-technical user understands.
	Reason string
}

// Relation describes how the caller relates to the ticket.
type Relation int

const (
	RelationAny Relation = iota
	RelationCreator
)

// State constrains the ticket status a rule applies to.
type State int

const (
	StateAny State = iota
	StateOpen
)

type rule struct {
	op       Operation
	roles    []domain.Role
	relation Relation
	state    State
	fields   []Field
}

var (
	everyone = []domain.Role{domain.RoleEmployee, domain.RoleAgent, domain.RoleAdministrator}
	staff    = []domain.Role{domain.RoleAgent, domain.RoleAdministrator}

	managementFields = []Field{FieldStatus, FieldAssignedAgent}
	contentFields    = []Field{FieldTitle, FieldDescription, FieldPriority, FieldDepartment}
)

// rules are checked in order; the first rule whose role, relation and state
// all match grants the operation.
var rules = []rule{
	{op: OpRead, roles: everyone},
	{op: OpCreate, roles: everyone},
	{op: OpUpdate, roles: staff, fields: managementFields},
	{op: OpUpdate, roles: []domain.Role{domain.RoleEmployee}, relation: RelationCreator, state: StateOpen, fields: contentFields},
	{op: OpDelete, roles: []domain.Role{domain.RoleAdministrator}},
	{op: OpDelete, roles: everyone, relation: RelationCreator, state: StateOpen},
	{op: OpComment, roles: everyone},
	{op: OpTransition, roles: staff, fields: []Field{FieldStatus}},
	{op: OpViewStats, roles: staff},
	{op: OpListAgents, roles: staff},
}

var roleDenials = map[Operation]string{
	OpUpdate:     "you do not have permission to edit this ticket",
	OpDelete:     "only an administrator or the person who opened this ticket can delete it",
	OpTransition: "only agents and administrators can change a ticket's status",
	OpViewStats:  "only agents and administrators can view dashboard statistics",
	OpListAgents: "only agents and administrators can see the list of agents",
}

var relationDenials = map[Operation]string{
	OpUpdate: "only the person who opened this ticket can edit it",
	OpDelete: "only an administrator or the person who opened this ticket can delete it",
}

const (
	reasonNotOpen       = "this ticket is no longer open"
	reasonUnauthorized  = "you need to sign in to do this"
	reasonUnknownAction = "this action is not available"
)

// Evaluate maps (caller, ticket, operation) to a decision. ticket may be nil
// for operations that are not tied to an existing ticket (create, view_stats).
func Evaluate(caller *domain.Caller, ticket *domain.Ticket, op Operation) Decision {
	if caller == nil || caller.ID == "" || !caller.Role.IsValid() {
		return Decision{Reason: reasonUnauthorized}
	}

	relation := RelationAny
	open := false
	if ticket != nil {
		if ticket.CreatedBy == caller.ID {
			relation = RelationCreator
		}
		open = ticket.Status == domain.TicketStatusOpen
	}

	roleMatched, relationMatched, known := false, false, false
	for _, r := range rules {
		if r.op != op {
			continue
		}
		known = true
		if !hasRole(r.roles, caller.Role) {
			continue
		}
		roleMatched = true
		if r.relation == RelationCreator && relation != RelationCreator {
			continue
		}
		relationMatched = true
		if r.state == StateOpen && !open {
			continue
		}
		return Decision{Allowed: true, Fields: newFieldSet(r.fields...)}
	}

	switch {
	case !known:
		return Decision{Reason: reasonUnknownAction}
	case relationMatched:
		return Decision{Reason: reasonNotOpen}
	case roleMatched:
		return Decision{Reason: relationDenials[op]}
	default:
		if reason, ok := roleDenials[op]; ok {
			return Decision{Reason: reason}
		}
		return Decision{Reason: reasonUnknownAction}
	}
}

func hasRole(roles []domain.Role, role domain.Role) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
