package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/wellpulse/server/internal/services"
)

type authCtxKey int

const authKey authCtxKey = 7

// Claims is the signed identity assertion: subject id and role, plus
// expiry. Nothing else about the account is trusted from the token;
// handlers re-resolve state from the store.
type Claims struct {
	ID   string        `json:"id"`
	Role services.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenAuth signs and validates the bearer credential.
type TokenAuth struct {
	secret []byte
}

func NewTokenAuth(secret string) *TokenAuth {
	return &TokenAuth{secret: []byte(secret)}
}

func (ta *TokenAuth) SignToken(id string, role services.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:   id,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ta.secret)
}

func (ta *TokenAuth) parseToken(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) { return ta.secret, nil })
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// tokenFromRequest pulls the credential from the Authorization header
// or, failing that, the access_token cookie the SPA sets.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie("access_token"); err == nil {
		return c.Value
	}
	return ""
}

// WithAuth attaches claims to the request context when a valid token
// is present. Invalid or absent tokens pass through unauthenticated.
func (ta *TokenAuth) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := tokenFromRequest(r); tok != "" {
			if c, err := ta.parseToken(tok); err == nil {
				ctx := context.WithValue(r.Context(), authKey, c)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects unauthenticated requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Value(authKey).(*Claims); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (services.Actor, bool) {
	if c, ok := ctx.Value(authKey).(*Claims); ok && c.ID != "" {
		return services.Actor{ID: c.ID, Role: c.Role}, true
	}
	return services.Actor{}, false
}
