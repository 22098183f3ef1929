package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/wellpulse/server/internal/middleware"
)

func (rt *Router) handleListGroups(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	groups, err := rt.membership.ListGroups(actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (rt *Router) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Invite      bool   `json:"invite,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	group, err := rt.membership.CreateGroup(actor, req.Name, req.Description, req.Invite)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (rt *Router) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	group, err := rt.membership.GetGroup(actor, chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (rt *Router) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	if err := rt.membership.DeleteGroup(actor, chi.URLParam(r, "groupID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "group deleted"})
}

func (rt *Router) handleListMembers(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	members, err := rt.membership.ListMembers(actor, chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (rt *Router) handleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	group, err := rt.membership.AddMember(actor, chi.URLParam(r, "groupID"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (rt *Router) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	group, err := rt.membership.RemoveMember(actor, chi.URLParam(r, "groupID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}
