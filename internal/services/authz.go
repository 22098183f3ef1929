package services

// Actor is the authenticated identity performing a request, as decoded
// from its token. Handlers never pass caller-supplied role or
// ownership facts here: targets are re-resolved from the store first.
type Actor struct {
	ID   string
	Role Role
}

// Operation names one row of the permission table.
type Operation string

const (
	OpCreateGroup   Operation = "group.create"
	OpViewGroup     Operation = "group.view"
	OpManageMembers Operation = "group.members"
	OpDeleteGroup   Operation = "group.delete"
	OpListAccounts  Operation = "account.list"
	OpModifyAccount Operation = "account.modify"
	OpAssignRole    Operation = "account.assign_role"
	OpListResponses Operation = "response.list"
	OpViewAudit     Operation = "audit.view"
)

// Target carries the freshly resolved resource an operation acts on.
// Group-scoped rules require Group to be set; account-scoped rules
// compare AccountID against the actor.
type Target struct {
	Group     *Group
	AccountID string
}

// GroupTarget wraps a resolved group.
func GroupTarget(g *Group) Target { return Target{Group: g} }

// AccountTarget wraps a target account id.
func AccountTarget(id string) Target { return Target{AccountID: id} }

type rule func(actor Actor, t Target) bool

func allowAny(Actor, Target) bool { return true }

// administers allows only actors on the resolved group's admin set.
// A nil or admin-less group denies: never allow-by-default.
func administers(actor Actor, t Target) bool {
	return t.Group != nil && t.Group.HasAdmin(actor.ID)
}

// roleTable is the single authorization decision table. Absent cells
// deny. Keeping every rule here, instead of per-handler conditionals,
// is the point: handlers ask, they do not decide.
var roleTable = map[Operation]map[Role]rule{
	OpCreateGroup:   {RoleGroupAdmin: allowAny, RoleAdmin: allowAny},
	OpViewGroup:     {RoleGroupAdmin: administers, RoleAdmin: allowAny},
	OpManageMembers: {RoleGroupAdmin: administers, RoleAdmin: allowAny},
	OpDeleteGroup:   {RoleAdmin: allowAny},
	OpListAccounts:  {RoleAdmin: allowAny},
	OpModifyAccount: {RoleAdmin: allowAny},
	OpAssignRole:    {RoleAdmin: allowAny},
	OpListResponses: {RoleGroupAdmin: allowAny, RoleAdmin: allowAny},
	OpViewAudit:     {RoleAdmin: allowAny},
}

// selfException reports whether the operation is one an actor may
// always perform against its own account. This is layered on top of
// the role table, independent of it.
func selfException(actor Actor, op Operation, t Target) bool {
	switch op {
	case OpModifyAccount, OpListResponses:
		return t.AccountID != "" && t.AccountID == actor.ID
	}
	return false
}

// Authorize decides whether actor may perform op against target.
// It is a pure function over role and ownership facts and fails
// closed: unknown roles, unknown operations, and unresolved targets
// all deny. The only non-nil result is a forbidden ServiceError.
func Authorize(actor Actor, op Operation, target Target) error {
	if actor.ID == "" || !ValidRole(actor.Role) {
		return NewForbiddenError("permission denied")
	}
	if selfException(actor, op, target) {
		return nil
	}
	rules, ok := roleTable[op]
	if !ok {
		return NewForbiddenError("permission denied")
	}
	r, ok := rules[actor.Role]
	if !ok || !r(actor, target) {
		return NewForbiddenError("permission denied")
	}
	return nil
}
