package services

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AccountStore interface {
	GetAccount(id string) (*Account, error)
	FindAccountByEmail(email string) (*Account, error)
	FindAccountByUsername(username string) (*Account, error)
	UpdateAccount(a *Account) error
	DeleteAccount(id string) (bool, error)
	ListAccounts(offset, limit int, asc bool) ([]*Account, error)
	CountAccounts() (int, error)
	CountAccountsSince(t time.Time) (int, error)
	GetGroup(id string) (*Group, error)
	AddAudit(e AuditEntry)
}

type AccountService struct {
	store AccountStore
	now   func() time.Time
}

func NewAccountService(store AccountStore) *AccountService {
	return &AccountService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// AccountUpdate carries the mutable profile fields. Role, group
// reference, survey handle and submission counter have no update path
// here: roles move through AssignRole, membership through the
// membership service, and the handle never changes at all.
type AccountUpdate struct {
	Username       string `json:"username,omitempty"`
	Email          string `json:"email,omitempty"`
	Password       string `json:"password,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Update modifies an account's profile. Any actor may update itself;
// only admins may update others.
func (s *AccountService) Update(actor Actor, accountID string, upd AccountUpdate) (*Account, error) {
	if err := Authorize(actor, OpModifyAccount, AccountTarget(accountID)); err != nil {
		return nil, err
	}
	acct, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, NewNotFoundError("user not found")
	}

	if upd.Password != "" {
		if len(upd.Password) < 6 {
			return nil, NewInvalidError("password must be at least 6 characters long")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		acct.PasswordHash = hash
	}
	if upd.Username != "" && upd.Username != acct.Username {
		if len(upd.Username) < 4 || len(upd.Username) > 20 {
			return nil, NewInvalidError("username must be between 4 and 20 characters long")
		}
		if !usernamePattern.MatchString(upd.Username) {
			return nil, NewInvalidError("username must contain only lowercase letters and numbers")
		}
		if existing, err := s.store.FindAccountByUsername(upd.Username); err != nil {
			return nil, err
		} else if existing != nil && existing.ID != acct.ID {
			return nil, NewConflictError("username already taken")
		}
		acct.Username = upd.Username
	}
	if upd.Email != "" && upd.Email != acct.Email {
		if existing, err := s.store.FindAccountByEmail(upd.Email); err != nil {
			return nil, err
		} else if existing != nil && existing.ID != acct.ID {
			return nil, NewConflictError("email already taken")
		}
		acct.Email = upd.Email
	}
	if upd.ProfilePicture != "" {
		acct.ProfilePicture = upd.ProfilePicture
	}

	acct.UpdatedAt = s.now()
	if err := s.store.UpdateAccount(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// Delete removes an account. Self-deletion is always allowed; deleting
// other accounts is admin-only.
func (s *AccountService) Delete(actor Actor, accountID string) error {
	if err := Authorize(actor, OpModifyAccount, AccountTarget(accountID)); err != nil {
		return err
	}
	ok, err := s.store.DeleteAccount(accountID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("user not found")
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor.ID, Action: "account.delete", Target: accountID})
	return nil
}

// Details returns the actor's own account with its group resolved.
func (s *AccountService) Details(actor Actor) (*Account, *Group, error) {
	acct, err := s.store.GetAccount(actor.ID)
	if err != nil {
		return nil, nil, err
	}
	if acct == nil {
		return nil, nil, NewNotFoundError("user not found")
	}
	var group *Group
	if acct.GroupID != "" {
		group, err = s.store.GetGroup(acct.GroupID)
		if err != nil {
			return nil, nil, err
		}
	}
	return acct, group, nil
}

type AccountPage struct {
	Accounts       []*Account `json:"users"`
	Total          int        `json:"total_users"`
	LastMonthTotal int        `json:"last_month_users"`
}

// List returns a page of all accounts with totals. Admin only.
func (s *AccountService) List(actor Actor, startIndex, limit int, sortDirection string) (*AccountPage, error) {
	if err := Authorize(actor, OpListAccounts, Target{}); err != nil {
		return nil, err
	}
	if startIndex < 0 {
		startIndex = 0
	}
	if limit <= 0 {
		limit = 9
	}
	asc := strings.EqualFold(sortDirection, "asc")
	accounts, err := s.store.ListAccounts(startIndex, limit, asc)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountAccounts()
	if err != nil {
		return nil, err
	}
	lastMonth, err := s.store.CountAccountsSince(s.now().AddDate(0, -1, 0))
	if err != nil {
		return nil, err
	}
	return &AccountPage{Accounts: accounts, Total: total, LastMonthTotal: lastMonth}, nil
}
