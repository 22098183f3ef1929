package services

import (
	"crypto/rand"
	"strings"
	"time"
)

type MembershipStore interface {
	GetGroup(id string) (*Group, error)
	FindGroupByName(name string) (*Group, error)
	FindGroupByInviteCode(code string) (*Group, error)
	AddGroup(g *Group) error
	UpdateGroup(g *Group) error
	// DeleteGroup removes the group and clears every member's group
	// reference in the same transaction.
	DeleteGroup(id string) (bool, error)
	ListGroups() ([]*Group, error)
	ListGroupsByAdmin(accountID string) ([]*Group, error)
	ListGroupMembers(groupID string) ([]*Account, error)
	// AddGroupMember and RemoveGroupMember perform the dual write
	// (account group reference + group member list) atomically.
	AddGroupMember(groupID, accountID string) error
	RemoveGroupMember(groupID, accountID string) error
	GetAccount(id string) (*Account, error)
	UpdateAccount(a *Account) error
	AddAudit(e AuditEntry)
}

// MembershipService owns the group/account relation: one group per
// account, and the account's group reference and the group's member
// list always agree.
type MembershipService struct {
	store MembershipStore
	now   func() time.Time
	idGen func(prefix string, n int) string
}

func NewMembershipService(store MembershipStore) *MembershipService {
	return &MembershipService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func(prefix string, n int) string { return prefix + shortID(n) },
	}
}

// CreateGroup creates a group with the actor as creator and sole
// admin. Name uniqueness is checked by lookup; the store's unique
// index backs it against races.
func (s *MembershipService) CreateGroup(actor Actor, name, description string, withInvite bool) (*Group, error) {
	if err := Authorize(actor, OpCreateGroup, Target{}); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewInvalidError("group name is required")
	}
	if existing, err := s.store.FindGroupByName(name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, NewConflictError("group name already exists")
	}

	now := s.now()
	group := &Group{
		ID:          s.idGen("g", 12),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   actor.ID,
		AdminIDs:    []string{actor.ID},
		MemberIDs:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if withInvite {
		code, err := s.newInviteCode()
		if err != nil {
			return nil, err
		}
		group.InviteCode = code
	}
	if err := s.store.AddGroup(group); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: actor.ID, Action: "group.create", Target: group.ID, Note: name})
	return group, nil
}

// GetGroup returns a group if the actor may view it: admins see any
// group, group admins only the groups they administer.
func (s *MembershipService) GetGroup(actor Actor, groupID string) (*Group, error) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, NewNotFoundError("group not found")
	}
	if err := Authorize(actor, OpViewGroup, GroupTarget(group)); err != nil {
		return nil, err
	}
	return group, nil
}

// ListGroups returns all groups for admins, and the administered
// groups for group admins.
func (s *MembershipService) ListGroups(actor Actor) ([]*Group, error) {
	switch actor.Role {
	case RoleAdmin:
		return s.store.ListGroups()
	case RoleGroupAdmin:
		return s.store.ListGroupsByAdmin(actor.ID)
	}
	return nil, NewForbiddenError("permission denied")
}

// ListMembers returns the member accounts of a group the actor may view.
func (s *MembershipService) ListMembers(actor Actor, groupID string) ([]*Account, error) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, NewNotFoundError("group not found")
	}
	if err := Authorize(actor, OpViewGroup, GroupTarget(group)); err != nil {
		return nil, err
	}
	return s.store.ListGroupMembers(groupID)
}

// AddMember puts an account into a group. An account already in a
// different group conflicts; re-adding a member conflicts rather than
// succeeding silently. Both sides of the relation are written in one
// store transaction.
func (s *MembershipService) AddMember(actor Actor, groupID, accountID string) (*Group, error) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, NewNotFoundError("group not found")
	}
	if err := Authorize(actor, OpManageMembers, GroupTarget(group)); err != nil {
		return nil, err
	}
	acct, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, NewNotFoundError("user not found")
	}
	if acct.GroupID != "" && acct.GroupID != groupID {
		return nil, NewConflictError("user already in another group")
	}
	if group.HasMember(accountID) {
		return nil, NewConflictError("user already a member")
	}
	if err := s.store.AddGroupMember(groupID, accountID); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor.ID, Action: "group.member.add", Target: groupID, Note: accountID})
	return s.store.GetGroup(groupID)
}

// RemoveMember takes an account out of a group. An account whose group
// reference points elsewhere is not in this group.
func (s *MembershipService) RemoveMember(actor Actor, groupID, accountID string) (*Group, error) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, NewNotFoundError("group not found")
	}
	if err := Authorize(actor, OpManageMembers, GroupTarget(group)); err != nil {
		return nil, err
	}
	acct, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, NewNotFoundError("user not found")
	}
	if acct.GroupID != groupID {
		return nil, NewNotFoundError("user not in this group")
	}
	if err := s.store.RemoveGroupMember(groupID, accountID); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor.ID, Action: "group.member.remove", Target: groupID, Note: accountID})
	return s.store.GetGroup(groupID)
}

// DeleteGroup removes a group entirely. Admin only. Members' group
// references are cleared in the same transaction so no account is left
// pointing at a missing group.
func (s *MembershipService) DeleteGroup(actor Actor, groupID string) error {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return NewNotFoundError("group not found")
	}
	if err := Authorize(actor, OpDeleteGroup, GroupTarget(group)); err != nil {
		return err
	}
	ok, err := s.store.DeleteGroup(groupID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("group not found")
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor.ID, Action: "group.delete", Target: groupID, Note: group.Name})
	return nil
}

// AssignRole changes an account's role. Admin only. Promoting to
// groupAdmin attaches the account to the given group's admin set (and
// member list, keeping the relation symmetric); any other role detaches
// it from the group it currently administers.
func (s *MembershipService) AssignRole(actor Actor, accountID string, newRole Role, groupID string) (*Account, error) {
	if err := Authorize(actor, OpAssignRole, AccountTarget(accountID)); err != nil {
		return nil, err
	}
	if !ValidRole(newRole) {
		return nil, NewInvalidError("invalid role")
	}
	acct, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, NewNotFoundError("user not found")
	}

	if newRole == RoleGroupAdmin {
		if groupID == "" {
			return nil, NewInvalidError("group id is required for group admins")
		}
		group, err := s.store.GetGroup(groupID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, NewNotFoundError("group not found")
		}
		for _, id := range group.AdminIDs {
			if id == accountID {
				return nil, NewConflictError("user already administers this group")
			}
		}
		if acct.GroupID != "" && acct.GroupID != groupID {
			if err := s.detachFromGroup(acct); err != nil {
				return nil, err
			}
		}
		if !group.HasMember(accountID) {
			if err := s.store.AddGroupMember(groupID, accountID); err != nil {
				return nil, err
			}
		}
		group, err = s.store.GetGroup(groupID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, NewNotFoundError("group not found")
		}
		group.AdminIDs = append(group.AdminIDs, accountID)
		group.UpdatedAt = s.now()
		if err := s.store.UpdateGroup(group); err != nil {
			return nil, err
		}
		acct.GroupID = groupID
	} else if acct.GroupID != "" {
		group, err := s.store.GetGroup(acct.GroupID)
		if err != nil {
			return nil, err
		}
		if group != nil && group.HasAdmin(accountID) {
			if err := s.detachFromGroup(acct); err != nil {
				return nil, err
			}
			acct.GroupID = ""
		}
	}

	acct.Role = newRole
	acct.UpdatedAt = s.now()
	if err := s.store.UpdateAccount(acct); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor.ID, Action: "account.assign_role", Target: accountID, Note: string(newRole)})
	return acct, nil
}

// detachFromGroup removes acct from its current group's admin and
// member lists and clears its group reference.
func (s *MembershipService) detachFromGroup(acct *Account) error {
	group, err := s.store.GetGroup(acct.GroupID)
	if err != nil {
		return err
	}
	if group == nil {
		// dangling reference from before the cascade fix; just clear it
		acct.GroupID = ""
		return nil
	}
	if admins := without(group.AdminIDs, acct.ID); len(admins) != len(group.AdminIDs) {
		group.AdminIDs = admins
		group.UpdatedAt = s.now()
		if err := s.store.UpdateGroup(group); err != nil {
			return err
		}
	}
	if group.HasMember(acct.ID) {
		if err := s.store.RemoveGroupMember(group.ID, acct.ID); err != nil {
			return err
		}
	}
	acct.GroupID = ""
	return nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newInviteCode draws an XXXX-XXXX code of uppercase letters and
// redraws on collision with an existing group's code.
func (s *MembershipService) newInviteCode() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i, b := range buf {
			buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
		}
		code := string(buf[:4]) + "-" + string(buf[4:])
		existing, err := s.store.FindGroupByInviteCode(code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", NewInternalError("could not generate a unique invite code")
}
