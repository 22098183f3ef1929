package middleware

import "net/http"

// NoCache marks API responses as uncacheable. Everything under /api is
// per-account state behind a credential.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
