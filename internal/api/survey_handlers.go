package api

import (
	"net/http"

	mw "github.com/wellpulse/server/internal/middleware"
	"github.com/wellpulse/server/internal/services"
)

func (rt *Router) handleSubmitSurvey(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	var req services.SubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := rt.surveys.Submit(actor, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (rt *Router) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	actor, _ := mw.ActorFromContext(r.Context())
	page, err := rt.surveys.List(actor, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
