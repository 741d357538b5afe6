package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingIdentityURL = errors.New("IDENTITY_URL (or SUPABASE_URL) is required")
	ErrMissingIdentityKey = errors.New("IDENTITY_KEY (or SUPABASE_KEY) is required")
)

// Config holds all configuration for the application
type Config struct {
	// Identity service configuration
	Identity IdentityConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Routes configuration
	Routes RoutesConfig

	// Redis Configuration (optional, enables queued sign-out revocation)
	Redis RedisConfig

	// Worker configuration
	Worker WorkerConfig

	// Logging Configuration
	Logging LoggingConfig
}

// IdentityConfig holds the identity service connection settings
type IdentityConfig struct {
	URL     string        // http(s):// for a GoTrue endpoint, sqlite:// for the local provider
	Key     string        // API key, or the token signing secret for the local provider
	Timeout time.Duration // Bound applied to every identity service call

	// ProfilesDatabaseURL points role lookups at a Postgres profiles table
	ProfilesDatabaseURL string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	// Credential submissions allowed per client IP per minute
	CredentialRatePerMinute int
	// Proxies whose X-Forwarded-For is believed; empty trusts none
	TrustedProxies []string
}

// RoutesConfig holds route policy configuration
type RoutesConfig struct {
	PolicyFile string // Optional YAML file overriding the built-in route lists
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port), empty disables the queue
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	SessionPurgeSchedule string // Cron expression for purging expired local sessions
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	identityURL := firstEnv("IDENTITY_URL", "SUPABASE_URL")
	if identityURL == "" {
		return nil, ErrMissingIdentityURL
	}

	identityKey := firstEnv("IDENTITY_KEY", "SUPABASE_KEY")
	if identityKey == "" {
		return nil, ErrMissingIdentityKey
	}

	timeout := 5 * time.Second
	if raw := os.Getenv("IDENTITY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid IDENTITY_TIMEOUT %q", raw)
		}
		timeout = d
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"http://localhost:4321"}
	}

	ratePerMinute := 10
	if raw := os.Getenv("CREDENTIAL_RATE_PER_MINUTE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CREDENTIAL_RATE_PER_MINUTE %q", raw)
		}
		ratePerMinute = n
	}

	purgeSchedule := os.Getenv("SESSION_PURGE_SCHEDULE")
	if purgeSchedule == "" {
		purgeSchedule = "0 * * * *"
	}

	// Logging configuration - defaults suitable for production
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}

	return &Config{
		Identity: IdentityConfig{
			URL:                 identityURL,
			Key:                 identityKey,
			Timeout:             timeout,
			ProfilesDatabaseURL: os.Getenv("PROFILES_DATABASE_URL"),
		},
		HTTP: HTTPConfig{
			Addr:                    addr,
			AllowedOrigins:          origins,
			CredentialRatePerMinute: ratePerMinute,
			TrustedProxies:          splitList(os.Getenv("TRUSTED_PROXIES")),
		},
		Routes: RoutesConfig{
			PolicyFile: os.Getenv("ROUTE_POLICY_FILE"),
		},
		Redis: RedisConfig{
			Address: os.Getenv("REDIS_ADDRESS"),
		},
		Worker: WorkerConfig{
			SessionPurgeSchedule: purgeSchedule,
		},
		Logging: LoggingConfig{
			Level:  logLevel,
			Format: logFormat,
		},
	}, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
