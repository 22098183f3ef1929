package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	mw "github.com/wellpulse/server/internal/middleware"
	"github.com/wellpulse/server/internal/services"
)

func newTestAPI(t *testing.T) (http.Handler, *MemoryStore, *mw.TokenAuth) {
	t.Helper()
	store := NewMemoryStore()
	tokens := mw.NewTokenAuth("test-secret")
	return NewRouter(store, tokens, time.Hour).Handler(), store, tokens
}

func seedAdmin(t *testing.T, store *MemoryStore, tokens *mw.TokenAuth) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("adminpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if err := store.AddAccount(&services.Account{
		ID: "admin1", Username: "root", Email: "root@example.com",
		PasswordHash: hash, Role: services.RoleAdmin, SurveyHandle: "WB9999",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	tok, err := tokens.SignToken("admin1", services.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return v
}

type authResponse struct {
	Token   string            `json:"token"`
	Account *services.Account `json:"account"`
}

func signupUser(t *testing.T, h http.Handler, req services.SignupRequest) authResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[authResponse](t, rec)
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestAPI(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSignupAndSignin(t *testing.T) {
	h, _, _ := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", services.SignupRequest{
		Username: "alice", Email: "alice@example.com", Password: "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[authResponse](t, rec)
	if res.Token == "" || res.Account.SurveyHandle != "WB0001" {
		t.Fatalf("res = %+v", res)
	}
	cookieSet := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "access_token" && c.Value != "" && c.HttpOnly {
			cookieSet = true
		}
	}
	if !cookieSet {
		t.Fatal("access_token cookie not set")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signin status = %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["success"] != false || body["status_code"] != float64(401) {
		t.Fatalf("error body = %v", body)
	}
}

func TestSignupConflictStatus(t *testing.T) {
	h, _, _ := newTestAPI(t)
	signupUser(t, h, services.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})

	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", services.SignupRequest{
		Username: "alice", Email: "other@example.com", Password: "secret1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRequireAuthOnProtectedRoutes(t *testing.T) {
	h, _, _ := newTestAPI(t)
	for _, path := range []string{"/api/users", "/api/groups", "/api/surveys", "/api/audit"} {
		rec := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want 401", path, rec.Code)
		}
	}
}

func TestForbiddenStatus(t *testing.T) {
	h, _, _ := newTestAPI(t)
	res := signupUser(t, h, services.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})

	for _, path := range []string{"/api/users", "/api/groups", "/api/audit"} {
		rec := doJSON(t, h, http.MethodGet, path, res.Token, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s status = %d, want 403", path, rec.Code)
		}
	}
}

func TestGroupMembershipFlow(t *testing.T) {
	h, _, _ := newTestAPI(t)

	ga := signupUser(t, h, services.SignupRequest{
		Username: "carol", Email: "carol@example.com", Password: "secret1",
		Role: services.RoleGroupAdmin, GroupName: "Research", GroupDescription: "study",
	})
	user := signupUser(t, h, services.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})
	groupID := ga.Account.GroupID

	rec := doJSON(t, h, http.MethodPost, "/api/groups/"+groupID+"/members", ga.Token,
		map[string]string{"user_id": user.Account.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("add member status = %d: %s", rec.Code, rec.Body.String())
	}
	group := decodeBody[services.Group](t, rec)
	if !group.HasMember(user.Account.ID) {
		t.Fatalf("members = %v", group.MemberIDs)
	}

	// Same add again conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/groups/"+groupID+"/members", ga.Token,
		map[string]string{"user_id": user.Account.ID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-add status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/groups/"+groupID+"/members", ga.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list members status = %d", rec.Code)
	}
	members := decodeBody[[]*services.Account](t, rec)
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}

	// The member itself may not view the group roster.
	rec = doJSON(t, h, http.MethodGet, "/api/groups/"+groupID+"/members", user.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member roster status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/groups/"+groupID+"/members/"+user.Account.ID, ga.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove member status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodDelete, "/api/groups/"+groupID+"/members/"+user.Account.ID, ga.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("re-remove status = %d, want 404", rec.Code)
	}
}

func TestDeleteGroupAdminOnly(t *testing.T) {
	h, store, tokens := newTestAPI(t)
	adminTok := seedAdmin(t, store, tokens)

	ga := signupUser(t, h, services.SignupRequest{
		Username: "carol", Email: "carol@example.com", Password: "secret1",
		Role: services.RoleGroupAdmin, GroupName: "Research", GroupDescription: "study",
	})
	groupID := ga.Account.GroupID

	rec := doJSON(t, h, http.MethodDelete, "/api/groups/"+groupID, ga.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("group admin delete status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/api/groups/"+groupID, adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin delete status = %d: %s", rec.Code, rec.Body.String())
	}
	// The former creator no longer references the group.
	rec = doJSON(t, h, http.MethodGet, "/api/users/me", ga.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("details status = %d", rec.Code)
	}
	details := decodeBody[map[string]*json.RawMessage](t, rec)
	var acct services.Account
	if err := json.Unmarshal(*details["user"], &acct); err != nil {
		t.Fatal(err)
	}
	if acct.GroupID != "" {
		t.Fatalf("group reference = %q, want empty", acct.GroupID)
	}
}

func TestSurveyFlow(t *testing.T) {
	h, store, tokens := newTestAPI(t)
	adminTok := seedAdmin(t, store, tokens)
	user := signupUser(t, h, services.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})

	submission := services.SubmissionRequest{
		Gender: "female", AgeGroup: "25-34", Profession: "nurse", Education: "bachelor",
		Country: "Brazil", State: "SP", City: "Campinas", Consent: true,
		Answers: []int{1, 2, 3, 4, 5},
	}
	rec := doJSON(t, h, http.MethodPost, "/api/surveys", user.Token, submission)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[services.SurveyResponse](t, rec)
	if resp.SurveyHandle != user.Account.SurveyHandle || resp.Identifier == "" {
		t.Fatalf("resp = %+v", resp)
	}

	noConsent := submission
	noConsent.Consent = false
	rec = doJSON(t, h, http.MethodPost, "/api/surveys", user.Token, noConsent)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no consent status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/surveys?userId="+user.Account.ID, user.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("self list status = %d: %s", rec.Code, rec.Body.String())
	}
	page := decodeBody[services.ResponsePage](t, rec)
	if len(page.Responses) != 1 || page.Total != 1 {
		t.Fatalf("page = %+v", page)
	}

	// A normal user cannot list without naming itself.
	rec = doJSON(t, h, http.MethodGet, "/api/surveys", user.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unscoped list status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/surveys", adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status = %d", rec.Code)
	}
}

func TestAssignRoleEndpoint(t *testing.T) {
	h, store, tokens := newTestAPI(t)
	adminTok := seedAdmin(t, store, tokens)
	ga := signupUser(t, h, services.SignupRequest{
		Username: "carol", Email: "carol@example.com", Password: "secret1",
		Role: services.RoleGroupAdmin, GroupName: "Research", GroupDescription: "study",
	})
	user := signupUser(t, h, services.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})

	rec := doJSON(t, h, http.MethodPost, "/api/users/assign-role", user.Token, map[string]string{
		"user_id": user.Account.ID, "role": "admin",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("self promote status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/users/assign-role", adminTok, map[string]string{
		"user_id": user.Account.ID, "role": "groupAdmin", "group_id": ga.Account.GroupID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("promote status = %d: %s", rec.Code, rec.Body.String())
	}
	acct := decodeBody[services.Account](t, rec)
	if acct.Role != services.RoleGroupAdmin || acct.GroupID != ga.Account.GroupID {
		t.Fatalf("acct = %+v", acct)
	}
}

func TestAuditEndpoint(t *testing.T) {
	h, store, tokens := newTestAPI(t)
	adminTok := seedAdmin(t, store, tokens)
	signupUser(t, h, services.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})

	rec := doJSON(t, h, http.MethodGet, "/api/audit", adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	entries := decodeBody[[]services.AuditEntry](t, rec)
	if len(entries) == 0 {
		t.Fatal("expected signup audit entry")
	}
}
