package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthStore interface {
	FindAccountByEmail(email string) (*Account, error)
	FindAccountByUsername(username string) (*Account, error)
	AddAccount(a *Account) error
	UpdateAccount(a *Account) error
	FindGroupByName(name string) (*Group, error)
	AddGroup(g *Group) error
	NextSurveyHandle() (int, error)
	AddAudit(e AuditEntry)
}

// TokenSigner issues the signed identity assertion {id, role} with the
// given expiry. The auth service never validates tokens itself.
type TokenSigner func(id string, role Role, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type SignupRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	Role             Role   `json:"role,omitempty"`
	GroupName        string `json:"group_name,omitempty"`
	GroupDescription string `json:"group_description,omitempty"`
}

type AuthResult struct {
	Token   string   `json:"token"`
	Account *Account `json:"account"`
}

func NewAuthService(store AuthStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  time.Hour,
	}
}

// Signup registers an account. A groupAdmin signup also creates the
// group, with the new account as creator, admin and first member so
// that its group reference and the member list agree from the start.
// The admin role cannot be self-assigned; it is granted via AssignRole.
func (s *AuthService) Signup(req SignupRequest) (*AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || strings.TrimSpace(req.Password) == "" {
		return nil, NewInvalidError("username, email and password are required")
	}
	role := req.Role
	if role == "" {
		role = RoleNormalUser
	}
	switch role {
	case RoleNormalUser:
	case RoleGroupAdmin:
		if strings.TrimSpace(req.GroupName) == "" || strings.TrimSpace(req.GroupDescription) == "" {
			return nil, NewInvalidError("group name and description are required for group admins")
		}
	default:
		return nil, NewInvalidError("invalid role")
	}

	if existing, err := s.store.FindAccountByEmail(email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, NewConflictError("user already exists")
	}
	if existing, err := s.store.FindAccountByUsername(username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, NewConflictError("user already exists")
	}

	groupName := strings.TrimSpace(req.GroupName)
	if role == RoleGroupAdmin {
		if existing, err := s.store.FindGroupByName(groupName); err != nil {
			return nil, err
		} else if existing != nil {
			return nil, NewConflictError("group name already exists")
		}
	}

	handle, err := s.nextSurveyHandle()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now()
	acct := &Account{
		ID:             s.idGen("u", 12),
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		ProfilePicture: defaultProfilePicture,
		Role:           role,
		SurveyHandle:   handle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.AddAccount(acct); err != nil {
		return nil, err
	}

	// The account row must exist before the group references it as
	// creator, admin and first member.
	if role == RoleGroupAdmin {
		group := &Group{
			ID:          s.idGen("g", 12),
			Name:        groupName,
			Description: strings.TrimSpace(req.GroupDescription),
			CreatedBy:   acct.ID,
			AdminIDs:    []string{acct.ID},
			MemberIDs:   []string{acct.ID},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.AddGroup(group); err != nil {
			return nil, err
		}
		acct.GroupID = group.ID
		if err := s.store.UpdateAccount(acct); err != nil {
			return nil, err
		}
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: acct.ID, Action: "account.signup", Target: acct.ID, Note: string(role)})

	if s.signToken == nil {
		return nil, NewInternalError("token signer not configured")
	}
	token, err := s.signToken(acct.ID, acct.Role, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Account: acct}, nil
}

// Signin checks credentials and issues a token. Unknown email and bad
// password are indistinguishable to the caller.
func (s *AuthService) Signin(email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email and password are required")
	}
	acct, err := s.store.FindAccountByEmail(email)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, NewUnauthorizedError("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid email or password")
	}
	if s.signToken == nil {
		return nil, NewInternalError("token signer not configured")
	}
	token, err := s.signToken(acct.ID, acct.Role, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Account: acct}, nil
}

func (s *AuthService) TokenTTL() time.Duration { return s.tokenTTL }

// nextSurveyHandle derives the immutable handle from the store's
// monotonic counter. Handles are assigned exactly once, at signup.
func (s *AuthService) nextSurveyHandle() (string, error) {
	n, err := s.store.NextSurveyHandle()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("WB%04d", n), nil
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
