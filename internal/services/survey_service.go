package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	answerMin = 1
	answerMax = 5
)

type SurveyStore interface {
	GetAccount(id string) (*Account, error)
	IncrementSubmissionCount(accountID string) error
	AddResponse(r *SurveyResponse) error
	ListResponses() ([]*SurveyResponse, error)
	ListResponsesByAccount(accountID string) ([]*SurveyResponse, error)
	ListResponsesByAccounts(accountIDs []string) ([]*SurveyResponse, error)
	CountResponses() (int, error)
	CountResponsesSince(t time.Time) (int, error)
	ListGroupsByAdmin(accountID string) ([]*Group, error)
}

type SurveyService struct {
	store SurveyStore
	now   func() time.Time
	idGen func(prefix string, n int) string
}

func NewSurveyService(store SurveyStore) *SurveyService {
	return &SurveyService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func(prefix string, n int) string { return prefix + shortID(n) },
	}
}

type SubmissionRequest struct {
	Gender     string `json:"gender"`
	AgeGroup   string `json:"age_group"`
	Profession string `json:"profession"`
	Education  string `json:"education"`
	Country    string `json:"country"`
	State      string `json:"state"`
	City       string `json:"city"`
	Consent    bool   `json:"consent"`
	Answers    []int  `json:"answers"`
}

// Submit records a completed questionnaire for the actor. The response
// is stamped with a server-generated identifier and the submitter's
// immutable survey handle, and the submitter's counter is incremented.
// Repeat submissions are accepted and produce distinct responses.
func (s *SurveyService) Submit(actor Actor, req SubmissionRequest) (*SurveyResponse, error) {
	if actor.ID == "" {
		return nil, NewInvalidError("user id is required")
	}
	if !req.Consent {
		return nil, NewInvalidError("consent is required")
	}
	if len(req.Answers) == 0 {
		return nil, NewInvalidError("answers are required")
	}
	for _, a := range req.Answers {
		if a < answerMin || a > answerMax {
			return nil, NewInvalidError("answers must be between 1 and 5")
		}
	}
	for _, field := range []string{req.Gender, req.AgeGroup, req.Profession, req.Education, req.Country, req.State, req.City} {
		if strings.TrimSpace(field) == "" {
			return nil, NewInvalidError("all demographic fields are required")
		}
	}

	acct, err := s.store.GetAccount(actor.ID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, NewNotFoundError("user not found")
	}

	resp := &SurveyResponse{
		ID:           s.idGen("r", 12),
		Gender:       req.Gender,
		AgeGroup:     req.AgeGroup,
		Profession:   req.Profession,
		Education:    req.Education,
		Country:      req.Country,
		State:        req.State,
		City:         req.City,
		Consent:      req.Consent,
		Answers:      append([]int(nil), req.Answers...),
		AccountID:    acct.ID,
		SurveyHandle: acct.SurveyHandle,
		Identifier:   uuid.NewString(),
		SubmittedAt:  s.now(),
	}
	if err := s.store.AddResponse(resp); err != nil {
		return nil, err
	}
	// The response is already persisted; a failed counter bump is a
	// store failure the caller must see, not hide.
	if err := s.store.IncrementSubmissionCount(acct.ID); err != nil {
		return nil, NewInternalError("response recorded but submission counter not updated: " + err.Error())
	}
	return resp, nil
}

type ResponsePage struct {
	Responses      []*SurveyResponse `json:"surveys"`
	Total          int               `json:"total_surveys"`
	LastMonthTotal int               `json:"last_month_surveys"`
}

// List returns responses visible to the actor. Admins see everything,
// group admins the responses of members of groups they administer, and
// normal users only their own, named explicitly. The page totals cover
// the same visible set: only admins get platform-wide counts.
func (s *SurveyService) List(actor Actor, accountID string) (*ResponsePage, error) {
	var (
		responses []*SurveyResponse
		err       error
	)
	switch actor.Role {
	case RoleAdmin:
		if err := Authorize(actor, OpListResponses, AccountTarget(accountID)); err != nil {
			return nil, err
		}
		if accountID != "" {
			responses, err = s.store.ListResponsesByAccount(accountID)
		} else {
			responses, err = s.store.ListResponses()
		}
	case RoleGroupAdmin:
		if err := Authorize(actor, OpListResponses, AccountTarget(accountID)); err != nil {
			return nil, err
		}
		responses, err = s.listForGroupAdmin(actor, accountID)
	default:
		// Self-listing only: the requested id must be present and match.
		if err := Authorize(actor, OpListResponses, AccountTarget(accountID)); err != nil {
			return nil, err
		}
		responses, err = s.store.ListResponsesByAccount(actor.ID)
	}
	if err != nil {
		return nil, err
	}

	cutoff := s.now().AddDate(0, -1, 0)
	if actor.Role == RoleAdmin {
		total, err := s.store.CountResponses()
		if err != nil {
			return nil, err
		}
		lastMonth, err := s.store.CountResponsesSince(cutoff)
		if err != nil {
			return nil, err
		}
		return &ResponsePage{Responses: responses, Total: total, LastMonthTotal: lastMonth}, nil
	}

	// Non-admin totals must not reveal anything beyond the listed set.
	lastMonth := 0
	for _, r := range responses {
		if !r.SubmittedAt.Before(cutoff) {
			lastMonth++
		}
	}
	return &ResponsePage{Responses: responses, Total: len(responses), LastMonthTotal: lastMonth}, nil
}

// listForGroupAdmin scopes listing to members of administered groups.
// With an explicit accountID the target must be one of those members
// (or the actor itself).
func (s *SurveyService) listForGroupAdmin(actor Actor, accountID string) ([]*SurveyResponse, error) {
	if accountID == actor.ID && accountID != "" {
		return s.store.ListResponsesByAccount(actor.ID)
	}
	groups, err := s.store.ListGroupsByAdmin(actor.ID)
	if err != nil {
		return nil, err
	}
	memberIDs := make([]string, 0)
	seen := map[string]bool{}
	for _, g := range groups {
		for _, id := range g.MemberIDs {
			if !seen[id] {
				seen[id] = true
				memberIDs = append(memberIDs, id)
			}
		}
	}
	if accountID != "" {
		if !seen[accountID] {
			return nil, NewForbiddenError("permission denied")
		}
		return s.store.ListResponsesByAccount(accountID)
	}
	if len(memberIDs) == 0 {
		return []*SurveyResponse{}, nil
	}
	return s.store.ListResponsesByAccounts(memberIDs)
}
