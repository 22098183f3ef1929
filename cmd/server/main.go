package main

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wellpulse/server/internal/api"
	"github.com/wellpulse/server/internal/config"
	"github.com/wellpulse/server/internal/db"
	"github.com/wellpulse/server/internal/log"
	mw "github.com/wellpulse/server/internal/middleware"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	store, closeStore, err := openStore(cfg.DBUrl)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	tokens := mw.NewTokenAuth(cfg.TokenSecret)
	handler := api.NewRouter(store, tokens, cfg.TokenTTL).Handler()
	if cfg.StaticDir != "" {
		handler = withStatic(handler, cfg.StaticDir)
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	log.Infof("listening on %s", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// openStore picks the backing store from the DB URL. ":memory:" gets
// the in-process store rather than an in-memory SQLite file, so tests
// and demos need no cgo toolchain.
func openStore(dbURL string) (api.Store, func(), error) {
	if dbURL == ":memory:" {
		log.Warn("using non-persistent in-memory store")
		return api.NewMemoryStore(), func() {}, nil
	}
	s, err := db.Open(dbURL)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}

// withStatic serves built frontend assets for anything outside /api,
// falling back to index.html so client-side routes deep-link.
func withStatic(apiHandler http.Handler, dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") || r.URL.Path == "/health" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path != "" {
			if _, err := os.Stat(dir + "/" + path); err == nil {
				files.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, dir+"/index.html")
	})
}
