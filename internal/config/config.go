package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	StaticDir   string
	Debug       bool
}

// ParseFlags reads configuration from flags, with WELLPULSE_*
// environment variables as fallbacks for deployment.
func ParseFlags() (cfg Config, err error) {
	var host string
	flag.StringVar(&host, "host", "0.0.0.0", "listen host name")
	var port uint
	flag.UintVar(&port, "port", 3000, "listen port number")
	flag.StringVar(&cfg.DBUrl, "db-url", env("WELLPULSE_DB_URL", "wellpulse.sqlite"), "path to SQLite3 DB file, or :memory: for a non-persistent store")
	flag.StringVar(&cfg.TokenSecret, "token-secret", os.Getenv("WELLPULSE_TOKEN_SECRET"), "secret key for signing identity tokens")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", 3600, "token TTL in seconds")
	flag.StringVar(&cfg.StaticDir, "static-dir", os.Getenv("WELLPULSE_STATIC_DIR"), "directory of built frontend assets to serve at /")
	flag.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret (or WELLPULSE_TOKEN_SECRET)")
	}
	return
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
