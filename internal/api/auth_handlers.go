package api

import (
	"net/http"

	mw "github.com/wellpulse/server/internal/middleware"
	"github.com/wellpulse/server/internal/services"
)

func (rt *Router) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "access_token",
		Value:    token,
		MaxAge:   int(rt.tokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (rt *Router) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := rt.auth.Signup(req)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := rt.auth.Signin(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	if _, ok := mw.ActorFromContext(r.Context()); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]bool{"signed_in": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"signed_in": true})
}

func (rt *Router) handleSignout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "access_token",
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}
