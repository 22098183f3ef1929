package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mw "github.com/wellpulse/server/internal/middleware"
	"github.com/wellpulse/server/internal/services"
)

func (rt *Router) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	startIndex, _ := strconv.Atoi(r.URL.Query().Get("startIndex"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := rt.accounts.List(actor, startIndex, limit, r.URL.Query().Get("sortDirection"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) handleUserDetails(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	acct, group, err := rt.accounts.Details(actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct, "group": group})
}

func (rt *Router) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	var upd services.AccountUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	acct, err := rt.accounts.Update(actor, chi.URLParam(r, "userID"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (rt *Router) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	if err := rt.accounts.Delete(actor, chi.URLParam(r, "userID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (rt *Router) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	var req struct {
		UserID  string        `json:"user_id"`
		Role    services.Role `json:"role"`
		GroupID string        `json:"group_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	acct, err := rt.membership.AssignRole(actor, req.UserID, req.Role, req.GroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (rt *Router) handleListAudit(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	if err := services.Authorize(actor, services.OpViewAudit, services.Target{}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.store.ListAudit())
}
