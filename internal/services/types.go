package services

import "time"

// Role is the capability set attached to an account. The three roles
// are distinct permission sets, not a seniority ladder: a groupAdmin
// can do things to its own groups that an admin-only check would miss.
type Role string

const (
	RoleNormalUser Role = "normalUser"
	RoleGroupAdmin Role = "groupAdmin"
	RoleAdmin      Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleNormalUser, RoleGroupAdmin, RoleAdmin:
		return true
	}
	return false
}

const defaultProfilePicture = "https://cdn.pixabay.com/photo/2015/10/05/22/37/blank-profile-picture-973460_1280.png"

// Account is a registered user. GroupID is exclusive: an account
// belongs to at most one group at a time, and when set it must mirror
// an entry in that group's member list.
type Account struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	PasswordHash    []byte    `json:"-"`
	ProfilePicture  string    `json:"profile_picture,omitempty"`
	Role            Role      `json:"role"`
	GroupID         string    `json:"group_id,omitempty"`
	SurveyHandle    string    `json:"survey_handle"`
	SubmissionCount int       `json:"submission_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Group is an organizational unit. AdminIDs always contains CreatedBy.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	AdminIDs    []string  `json:"admin_ids"`
	MemberIDs   []string  `json:"member_ids"`
	InviteCode  string    `json:"invite_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasAdmin reports whether accountID administers g. The creator always
// counts, even if the admin list was never populated.
func (g *Group) HasAdmin(accountID string) bool {
	if accountID == "" {
		return false
	}
	if g.CreatedBy == accountID {
		return true
	}
	for _, id := range g.AdminIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// HasMember reports whether accountID is in g's member list.
func (g *Group) HasMember(accountID string) bool {
	for _, id := range g.MemberIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// SurveyResponse is one completed questionnaire. Responses are
// immutable once recorded; there is no update or delete path.
type SurveyResponse struct {
	ID           string    `json:"id"`
	Gender       string    `json:"gender"`
	AgeGroup     string    `json:"age_group"`
	Profession   string    `json:"profession"`
	Education    string    `json:"education"`
	Country      string    `json:"country"`
	State        string    `json:"state"`
	City         string    `json:"city"`
	Consent      bool      `json:"consent"`
	Answers      []int     `json:"answers"`
	AccountID    string    `json:"account_id"`
	SurveyHandle string    `json:"survey_handle"`
	Identifier   string    `json:"identifier"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// AuditEntry records a privileged mutation for the admin audit trail.
type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
