package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all agent configuration.
type Config struct {
	AgentPort string
	GinMode   string
	LogLevel  string
	LogFormat string

	// SQLitePath is the embedded store file. ":memory:" is accepted for tests.
	SQLitePath string

	// APIBaseURL points at the remote LMS API, e.g. https://lms.example.sch.id/api.
	APIBaseURL string
	APITimeout time.Duration

	SyncInterval   time.Duration
	SyncMaxRetries int
	ProbeInterval  time.Duration

	// TimeDriftTolerance bounds the allowed divergence between elapsed
	// device time and elapsed server time before a timed attempt is refused.
	TimeDriftTolerance time.Duration

	BcryptCost     int
	SpoolDir       string
	MaxUploadBytes int64
	// AllowedOrigins controls CORS and WebSocket origin validation for the
	// loopback API. Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		AgentPort:          getEnv("AGENT_PORT", "7311"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "pretty"),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/exstem-client.db"),
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000/api"), "/"),
		APITimeout:         time.Duration(getEnvInt("API_TIMEOUT_SECONDS", 30)) * time.Second,
		SyncInterval:       time.Duration(getEnvInt("SYNC_INTERVAL_SECONDS", 900)) * time.Second,
		SyncMaxRetries:     getEnvInt("SYNC_MAX_RETRIES", 25),
		ProbeInterval:      time.Duration(getEnvInt("PROBE_INTERVAL_SECONDS", 20)) * time.Second,
		TimeDriftTolerance: time.Duration(getEnvInt("TIME_DRIFT_TOLERANCE_MINUTES", 5)) * time.Minute,
		BcryptCost:         getEnvInt("BCRYPT_COST", 10),
		SpoolDir:           getEnv("SPOOL_DIR", "./data/spool"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 25)) * 1024 * 1024,
		AllowedOrigins:     parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
