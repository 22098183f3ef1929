package api

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wellpulse/server/internal/services"
)

// MemoryStore is a map-backed Store. It backs the tests and
// `-db-url :memory:` runs. Dual writes (account group reference plus
// group member list) happen under a single lock, so the two sides of
// the relation can never disagree.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]*services.Account
	groups        map[string]*services.Group
	responses     []*services.SurveyResponse
	audit         []services.AuditEntry
	handleCounter int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[string]*services.Account{},
		groups:   map[string]*services.Group{},
	}
}

func cloneAccount(a *services.Account) *services.Account {
	if a == nil {
		return nil
	}
	copy := *a
	copy.PasswordHash = append([]byte(nil), a.PasswordHash...)
	return &copy
}

func cloneGroup(g *services.Group) *services.Group {
	if g == nil {
		return nil
	}
	copy := *g
	copy.AdminIDs = append([]string(nil), g.AdminIDs...)
	copy.MemberIDs = append([]string(nil), g.MemberIDs...)
	return &copy
}

func (s *MemoryStore) GetAccount(id string) (*services.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAccount(s.accounts[id]), nil
}

func (s *MemoryStore) FindAccountByEmail(email string) (*services.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindAccountByUsername(username string) (*services.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) AddAccount(a *services.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (s *MemoryStore) UpdateAccount(a *services.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return services.NewNotFoundError("user not found")
	}
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

// DeleteAccount also drops the account from its group's lists so the
// group side never references a missing account.
func (s *MemoryStore) DeleteAccount(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, nil
	}
	if a.GroupID != "" {
		if g, ok := s.groups[a.GroupID]; ok {
			g.MemberIDs = removeID(g.MemberIDs, id)
			g.AdminIDs = removeID(g.AdminIDs, id)
		}
	}
	delete(s.accounts, id)
	return true, nil
}

func (s *MemoryStore) ListAccounts(offset, limit int, asc bool) ([]*services.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*services.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if asc {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []*services.Account{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	out := make([]*services.Account, len(all))
	for i, a := range all {
		out[i] = cloneAccount(a)
	}
	return out, nil
}

func (s *MemoryStore) CountAccounts() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

func (s *MemoryStore) CountAccountsSince(t time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.accounts {
		if !a.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) NextSurveyHandle() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleCounter++
	return s.handleCounter, nil
}

func (s *MemoryStore) IncrementSubmissionCount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return services.NewNotFoundError("user not found")
	}
	a.SubmissionCount++
	return nil
}

func (s *MemoryStore) GetGroup(id string) (*services.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGroup(s.groups[id]), nil
}

func (s *MemoryStore) FindGroupByName(name string) (*services.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Name == name {
			return cloneGroup(g), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindGroupByInviteCode(code string) (*services.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.InviteCode != "" && g.InviteCode == code {
			return cloneGroup(g), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) AddGroup(g *services.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (s *MemoryStore) UpdateGroup(g *services.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		return services.NewNotFoundError("group not found")
	}
	s.groups[g.ID] = cloneGroup(g)
	return nil
}

// DeleteGroup clears every member's group reference along with the
// group record itself.
func (s *MemoryStore) DeleteGroup(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	return true, nil
}

func (s *MemoryStore) ListGroups() ([]*services.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListGroupsByAdmin(accountID string) ([]*services.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Group{}
	for _, g := range s.groups {
		if g.HasAdmin(accountID) {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListGroupMembers(groupID string) ([]*services.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, services.NewNotFoundError("group not found")
	}
	out := make([]*services.Account, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if a, ok := s.accounts[id]; ok {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

func (s *MemoryStore) AddGroupMember(groupID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return services.NewNotFoundError("group not found")
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return services.NewNotFoundError("user not found")
	}
	for _, id := range g.MemberIDs {
		if id == accountID {
			return services.NewConflictError("user already a member")
		}
	}
	a.GroupID = groupID
	g.MemberIDs = append(g.MemberIDs, accountID)
	return nil
}

func (s *MemoryStore) RemoveGroupMember(groupID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return services.NewNotFoundError("group not found")
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return services.NewNotFoundError("user not found")
	}
	if a.GroupID == groupID {
		a.GroupID = ""
	}
	g.MemberIDs = removeID(g.MemberIDs, accountID)
	return nil
}

func (s *MemoryStore) AddResponse(r *services.SurveyResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *r
	copy.Answers = append([]int(nil), r.Answers...)
	s.responses = append(s.responses, &copy)
	return nil
}

func (s *MemoryStore) ListResponses() ([]*services.SurveyResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*services.SurveyResponse(nil), s.responses...), nil
}

func (s *MemoryStore) ListResponsesByAccount(accountID string) ([]*services.SurveyResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.SurveyResponse{}
	for _, r := range s.responses {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListResponsesByAccounts(accountIDs []string) ([]*services.SurveyResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		want[id] = true
	}
	out := []*services.SurveyResponse{}
	for _, r := range s.responses {
		if want[r.AccountID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountResponses() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.responses), nil
}

func (s *MemoryStore) CountResponsesSince(t time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.responses {
		if !r.SubmittedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AddAudit(e services.AuditEntry) {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	s.mu.Unlock()
}

func (s *MemoryStore) ListAudit() []services.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
