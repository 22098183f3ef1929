package services

import "time"

// stubStore is a map-backed store for service tests. It mirrors the
// production stores' contract: returned values are clones, and the
// membership dual write happens under one call.
type stubStore struct {
	accounts     map[string]*Account
	accountOrder []string
	groups       map[string]*Group
	groupOrder   []string
	responses    []*SurveyResponse
	audit        []AuditEntry
	handle       int

	// inviteLookup overrides FindGroupByInviteCode when set.
	inviteLookup func(code string) (*Group, error)
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts: map[string]*Account{},
		groups:   map[string]*Group{},
	}
}

func copyAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func copyGroup(g *Group) *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.AdminIDs = append([]string(nil), g.AdminIDs...)
	c.MemberIDs = append([]string(nil), g.MemberIDs...)
	return &c
}

func (s *stubStore) GetAccount(id string) (*Account, error) {
	return copyAccount(s.accounts[id]), nil
}

func (s *stubStore) FindAccountByEmail(email string) (*Account, error) {
	for _, a := range s.accounts {
		if a.Email == email {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (s *stubStore) FindAccountByUsername(username string) (*Account, error) {
	for _, a := range s.accounts {
		if a.Username == username {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (s *stubStore) AddAccount(a *Account) error {
	s.accounts[a.ID] = copyAccount(a)
	s.accountOrder = append(s.accountOrder, a.ID)
	return nil
}

func (s *stubStore) UpdateAccount(a *Account) error {
	if _, ok := s.accounts[a.ID]; !ok {
		return NewNotFoundError("user not found")
	}
	s.accounts[a.ID] = copyAccount(a)
	return nil
}

func (s *stubStore) DeleteAccount(id string) (bool, error) {
	if _, ok := s.accounts[id]; !ok {
		return false, nil
	}
	delete(s.accounts, id)
	for i, v := range s.accountOrder {
		if v == id {
			s.accountOrder = append(s.accountOrder[:i], s.accountOrder[i+1:]...)
			break
		}
	}
	for _, g := range s.groups {
		g.MemberIDs = without(g.MemberIDs, id)
		g.AdminIDs = without(g.AdminIDs, id)
	}
	return true, nil
}

func (s *stubStore) ListAccounts(offset, limit int, asc bool) ([]*Account, error) {
	ids := append([]string(nil), s.accountOrder...)
	if !asc {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	out := []*Account{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, copyAccount(s.accounts[ids[i]]))
	}
	return out, nil
}

func (s *stubStore) CountAccounts() (int, error) { return len(s.accounts), nil }

func (s *stubStore) CountAccountsSince(t time.Time) (int, error) {
	n := 0
	for _, a := range s.accounts {
		if !a.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func (s *stubStore) NextSurveyHandle() (int, error) {
	s.handle++
	return s.handle, nil
}

func (s *stubStore) IncrementSubmissionCount(accountID string) error {
	a, ok := s.accounts[accountID]
	if !ok {
		return NewNotFoundError("user not found")
	}
	a.SubmissionCount++
	return nil
}

func (s *stubStore) GetGroup(id string) (*Group, error) {
	return copyGroup(s.groups[id]), nil
}

func (s *stubStore) FindGroupByName(name string) (*Group, error) {
	for _, g := range s.groups {
		if g.Name == name {
			return copyGroup(g), nil
		}
	}
	return nil, nil
}

func (s *stubStore) FindGroupByInviteCode(code string) (*Group, error) {
	if s.inviteLookup != nil {
		return s.inviteLookup(code)
	}
	for _, g := range s.groups {
		if g.InviteCode != "" && g.InviteCode == code {
			return copyGroup(g), nil
		}
	}
	return nil, nil
}

func (s *stubStore) AddGroup(g *Group) error {
	s.groups[g.ID] = copyGroup(g)
	s.groupOrder = append(s.groupOrder, g.ID)
	for _, id := range g.MemberIDs {
		if a, ok := s.accounts[id]; ok {
			a.GroupID = g.ID
		}
	}
	return nil
}

func (s *stubStore) UpdateGroup(g *Group) error {
	if _, ok := s.groups[g.ID]; !ok {
		return NewNotFoundError("group not found")
	}
	s.groups[g.ID] = copyGroup(g)
	return nil
}

func (s *stubStore) DeleteGroup(id string) (bool, error) {
	g, ok := s.groups[id]
	if !ok {
		return false, nil
	}
	for _, memberID := range g.MemberIDs {
		if a, ok := s.accounts[memberID]; ok && a.GroupID == id {
			a.GroupID = ""
		}
	}
	delete(s.groups, id)
	for i, v := range s.groupOrder {
		if v == id {
			s.groupOrder = append(s.groupOrder[:i], s.groupOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *stubStore) ListGroups() ([]*Group, error) {
	out := []*Group{}
	for _, id := range s.groupOrder {
		out = append(out, copyGroup(s.groups[id]))
	}
	return out, nil
}

func (s *stubStore) ListGroupsByAdmin(accountID string) ([]*Group, error) {
	out := []*Group{}
	for _, id := range s.groupOrder {
		if s.groups[id].HasAdmin(accountID) {
			out = append(out, copyGroup(s.groups[id]))
		}
	}
	return out, nil
}

func (s *stubStore) ListGroupMembers(groupID string) ([]*Account, error) {
	g, ok := s.groups[groupID]
	if !ok {
		return nil, NewNotFoundError("group not found")
	}
	out := []*Account{}
	for _, id := range g.MemberIDs {
		if a, ok := s.accounts[id]; ok {
			out = append(out, copyAccount(a))
		}
	}
	return out, nil
}

func (s *stubStore) AddGroupMember(groupID, accountID string) error {
	g, ok := s.groups[groupID]
	if !ok {
		return NewNotFoundError("group not found")
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return NewNotFoundError("user not found")
	}
	if g.HasMember(accountID) {
		return NewConflictError("user already a member")
	}
	g.MemberIDs = append(g.MemberIDs, accountID)
	a.GroupID = groupID
	return nil
}

func (s *stubStore) RemoveGroupMember(groupID, accountID string) error {
	g, ok := s.groups[groupID]
	if !ok {
		return NewNotFoundError("group not found")
	}
	g.MemberIDs = without(g.MemberIDs, accountID)
	if a, ok := s.accounts[accountID]; ok && a.GroupID == groupID {
		a.GroupID = ""
	}
	return nil
}

func (s *stubStore) AddResponse(r *SurveyResponse) error {
	c := *r
	c.Answers = append([]int(nil), r.Answers...)
	s.responses = append(s.responses, &c)
	return nil
}

func (s *stubStore) ListResponses() ([]*SurveyResponse, error) {
	return append([]*SurveyResponse{}, s.responses...), nil
}

func (s *stubStore) ListResponsesByAccount(accountID string) ([]*SurveyResponse, error) {
	out := []*SurveyResponse{}
	for _, r := range s.responses {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) ListResponsesByAccounts(accountIDs []string) ([]*SurveyResponse, error) {
	want := map[string]bool{}
	for _, id := range accountIDs {
		want[id] = true
	}
	out := []*SurveyResponse{}
	for _, r := range s.responses {
		if want[r.AccountID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) CountResponses() (int, error) { return len(s.responses), nil }

func (s *stubStore) CountResponsesSince(t time.Time) (int, error) {
	n := 0
	for _, r := range s.responses {
		if !r.SubmittedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func (s *stubStore) AddAudit(e AuditEntry) { s.audit = append(s.audit, e) }

// seedAccount inserts an account directly, bypassing signup.
func (s *stubStore) seedAccount(id, username string, role Role) *Account {
	a := &Account{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: []byte("x"),
		Role:         role,
		SurveyHandle: "WB" + id,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	s.AddAccount(a)
	return a
}

// seedGroup inserts a group and wires its members' group references.
func (s *stubStore) seedGroup(id, name, createdBy string, admins, members []string) *Group {
	g := &Group{
		ID:          id,
		Name:        name,
		Description: name + " group",
		CreatedBy:   createdBy,
		AdminIDs:    append([]string{}, admins...),
		MemberIDs:   append([]string{}, members...),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	s.AddGroup(g)
	return g
}
