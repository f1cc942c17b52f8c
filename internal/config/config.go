package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the coach service.
type Config struct {
	Port      int
	Version   string
	Provider  ProviderConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
}

// ProviderConfig configures the LLM completion and moderation backends.
type ProviderConfig struct {
	APIKey          string
	Model           string
	ModerationModel string
	MaxRetries      int
	RetryBase       time.Duration
	RetryCap        time.Duration
	ResponseTimeout time.Duration
	PollInterval    time.Duration
}

// Configured reports whether a provider credential is present.
func (p ProviderConfig) Configured() bool { return p.APIKey != "" }

type CacheConfig struct {
	TTL time.Duration
}

type RateLimitConfig struct {
	Window time.Duration
	Limit  int
}

type RedisConfig struct {
	// URL is a redis connection URL (redis://...). Empty disables the
	// distributed limiter/cache; process-local fallbacks are used instead.
	URL string
}

type DatabaseConfig struct {
	// URL is a postgres connection URL. Empty selects the in-memory store.
	URL string
}

type AuthConfig struct {
	// APIKeys is a comma-separated list of bearer keys for learner routes.
	// Empty disables auth (local dev).
	APIKeys string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with the documented
// defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PORT", 8080),
		Version: envStr("COACH_VERSION", "0.1.0"),
		Provider: ProviderConfig{
			APIKey:          envStr("OPENAI_API_KEY", ""),
			Model:           envStr("OPENAI_MODEL", "gpt-4o-mini"),
			ModerationModel: envStr("COACH_MODERATION_MODEL", "omni-moderation-latest"),
			MaxRetries:      envInt("COACH_MAX_RETRIES", 2),
			RetryBase:       envMillis("COACH_RETRY_BASE_MS", 500*time.Millisecond),
			RetryCap:        envMillis("COACH_RETRY_CAP_MS", 4*time.Second),
			ResponseTimeout: envMillis("COACH_RESPONSE_TIMEOUT_MS", 20*time.Second),
			PollInterval:    envMillis("COACH_POLL_INTERVAL_MS", 500*time.Millisecond),
		},
		Cache: CacheConfig{
			TTL: envSeconds("COACH_CACHE_TTL", 300*time.Second),
		},
		RateLimit: RateLimitConfig{
			Window: envSeconds("COACH_RATE_WINDOW", time.Hour),
			Limit:  envInt("COACH_RATE_LIMIT", 40),
		},
		Redis: RedisConfig{
			URL: envStr("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			APIKeys: envStr("COACH_API_KEYS", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "mathquest-coach"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envSeconds reads an integer number of seconds.
func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

// envMillis reads an integer number of milliseconds.
func envMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Millisecond
		}
	}
	return fallback
}
