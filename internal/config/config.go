package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Client
	APIBaseURL  string
	HTTPTimeout time.Duration
	TokenPath   string
	LogLevel    string

	// Cache (dashboard/trend reads)
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string
	TracingOn    bool

	// Dev server (ledgerd)
	LedgerdPort      int
	LedgerdDBPath    string
	LedgerdJWTSecret string
	LedgerdTokenTTL  time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		APIBaseURL:  getEnv("LEDGER_API_URL", "http://localhost:8080"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		TokenPath:   getEnv("LEDGER_TOKEN_PATH", defaultTokenPath()),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingOn:    getEnv("TRACING_ENABLED", "false") == "true",

		LedgerdPort:      getEnvInt("LEDGERD_PORT", 8080),
		LedgerdDBPath:    getEnv("LEDGERD_DB_PATH", "ledgerd.db"),
		LedgerdJWTSecret: getEnv("LEDGERD_JWT_SECRET", "ledgerd-default-dev-secret-change-me"),
		LedgerdTokenTTL:  getEnvDuration("LEDGERD_TOKEN_TTL", 24*time.Hour),
	}
}

// defaultTokenPath stores the session credential next to the user's
// other config, mirroring what the browser client kept in localStorage.
func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".ledgerview-token"
	}
	return filepath.Join(dir, "ledgerview", "token")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
