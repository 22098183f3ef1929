package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/wellpulse/server/internal/middleware"
	"github.com/wellpulse/server/internal/services"
)

// Router wires the domain services to HTTP routes. It owns no domain
// logic: handlers decode, delegate and serialize.
type Router struct {
	store      Store
	tokens     *mw.TokenAuth
	auth       *services.AuthService
	accounts   *services.AccountService
	membership *services.MembershipService
	surveys    *services.SurveyService
	tokenTTL   time.Duration
}

func NewRouter(store Store, tokens *mw.TokenAuth, tokenTTL time.Duration) *Router {
	signer := func(id string, role services.Role, ttl time.Duration) (string, error) {
		return tokens.SignToken(id, role, ttl)
	}
	return &Router{
		store:      store,
		tokens:     tokens,
		auth:       services.NewAuthService(store, signer),
		accounts:   services.NewAccountService(store),
		membership: services.NewMembershipService(store),
		surveys:    services.NewSurveyService(store),
		tokenTTL:   tokenTTL,
	}
}

func (rt *Router) Handler() http.Handler {
	root := chi.NewRouter()
	root.Use(chimw.Logger, chimw.Recoverer)
	root.Use(mw.SecureHeaders)

	root.Route("/api", func(r chi.Router) {
		r.Use(mw.CORS, mw.NoCache, rt.tokens.WithAuth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", rt.handleSignup)
			r.Post("/signin", rt.handleSignin)
			r.Get("/check", rt.handleCheckAuth)
			r.Post("/signout", rt.handleSignout)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(mw.RequireAuth)
			r.Get("/", rt.handleListUsers)
			r.Get("/me", rt.handleUserDetails)
			r.Put("/{userID}", rt.handleUpdateUser)
			r.Delete("/{userID}", rt.handleDeleteUser)
			r.Post("/assign-role", rt.handleAssignRole)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Use(mw.RequireAuth)
			r.Get("/", rt.handleListGroups)
			r.Post("/", rt.handleCreateGroup)
			r.Get("/{groupID}", rt.handleGetGroup)
			r.Delete("/{groupID}", rt.handleDeleteGroup)
			r.Get("/{groupID}/members", rt.handleListMembers)
			r.Post("/{groupID}/members", rt.handleAddMember)
			r.Delete("/{groupID}/members/{userID}", rt.handleRemoveMember)
		})

		r.Route("/surveys", func(r chi.Router) {
			r.Use(mw.RequireAuth)
			r.Post("/", rt.handleSubmitSurvey)
			r.Get("/", rt.handleListSurveys)
		})

		r.With(mw.RequireAuth).Get("/audit", rt.handleListAudit)
	})

	root.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": "WellPulse API"})
	})

	return root
}
