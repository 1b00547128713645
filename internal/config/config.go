package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the server needs from the environment. The
// gateway holds no storage of its own; the upstream reconciliation API is
// the only authoritative source.
type Config struct {
	ListenAddr      string
	UpstreamBaseURL string
	UpstreamToken   string
	UpstreamEmail   string
	UpstreamPass    string
	AllowedOrigin   string
	CacheTTL        time.Duration
	DebounceWindow  time.Duration
}

func Load() Config {
	return Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		UpstreamBaseURL: getEnv("RECON_API_BASE_URL", "http://localhost:9000"),
		UpstreamToken:   os.Getenv("RECON_API_TOKEN"),
		UpstreamEmail:   os.Getenv("RECON_API_EMAIL"),
		UpstreamPass:    os.Getenv("RECON_API_PASSWORD"),
		AllowedOrigin:   getEnv("CORS_ALLOW_ORIGIN", "http://localhost:3000"),
		CacheTTL:        getDuration("RESPONSE_CACHE_TTL_SECONDS", time.Second, 30*time.Second),
		DebounceWindow:  getDuration("RECORD_OPEN_DEBOUNCE_MS", time.Millisecond, 300*time.Millisecond),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, unit, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return time.Duration(n) * unit
}
