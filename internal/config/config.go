package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend kinds.
const (
	BackendAzure  = "azure"
	BackendOpenAI = "openai"
	BackendMemory = "memory"
)

// Config holds all application configuration.
// Values are loaded from an optional YAML file, then environment variables,
// with sensible defaults underneath both.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Agent backend
	Backend           string // azure, openai or memory
	BackendEndpoint   string
	BackendAPIKey     string
	BackendAPIVersion string
	AgentID           string

	// Run polling
	PollInterval time.Duration
	MaxPolls     int
	RunTimeout   time.Duration

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	ThreadCacheTTL time.Duration // 0 disables the confirmed-thread cache

	// HTTP edge
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	APIJWTSecret       string // empty disables bearer auth on /api

	// Observability
	TracingEnabled bool
	OTLPEndpoint   string
}

// Load reads configuration from CONFIG_FILE (if set) and the environment.
// Environment variables always win over file values.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		fc = *loaded
	}

	return &Config{
		Port:     getEnvInt("PORT", or(fc.Server.Port, 8080)),
		LogLevel: getEnv("LOG_LEVEL", or(fc.Server.LogLevel, "info")),

		Backend:           strings.ToLower(getEnv("BACKEND", or(fc.Backend.Kind, BackendAzure))),
		BackendEndpoint:   getEnv("BACKEND_ENDPOINT", fc.Backend.Endpoint),
		BackendAPIKey:     getEnv("BACKEND_API_KEY", fc.Backend.APIKey),
		BackendAPIVersion: getEnv("BACKEND_API_VERSION", or(fc.Backend.APIVersion, "2024-05-01-preview")),
		AgentID:           getEnv("AGENT_ID", fc.Backend.AgentID),

		PollInterval: getEnvDuration("POLL_INTERVAL", or(fc.Polling.Interval.Duration, time.Second)),
		MaxPolls:     getEnvInt("MAX_POLLS", or(fc.Polling.MaxPolls, 120)),
		RunTimeout:   getEnvDuration("RUN_TIMEOUT", or(fc.Polling.RunTimeout.Duration, 2*time.Minute)),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", or(fc.Backend.HTTPTimeout.Duration, 30*time.Second)),

		MaxRetries:     getEnvInt("MAX_RETRIES", orPtr(fc.Resilience.MaxRetries, 2)),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", or(fc.Resilience.InitialBackoff.Duration, 200*time.Millisecond)),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", or(fc.Resilience.MaxConcurrency, 50)),

		ThreadCacheTTL: getEnvDuration("THREAD_CACHE_TTL", fc.Cache.ThreadTTL.Duration),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", orList(fc.HTTP.CORSAllowedOrigins, []string{"*"})),
		RateLimitRequests:  getEnvInt("RATE_LIMIT_REQUESTS", orPtr(fc.HTTP.RateLimitRequests, 60)),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", or(fc.HTTP.RateLimitWindow.Duration, time.Minute)),
		APIJWTSecret:       getEnv("API_JWT_SECRET", fc.HTTP.JWTSecret),

		TracingEnabled: getEnvBool("TRACING_ENABLED", fc.Tracing.Enabled),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", or(fc.Tracing.Endpoint, "localhost:4317")),
	}, nil
}

// Validate checks the settings the relay cannot start without.
// Missing backend settings are fatal at startup, never a per-request error.
func (c *Config) Validate() error {
	var errs []error

	if c.AgentID == "" {
		errs = append(errs, errors.New("AGENT_ID is required"))
	}

	switch c.Backend {
	case BackendAzure, BackendOpenAI:
		if c.BackendAPIKey == "" {
			errs = append(errs, fmt.Errorf("BACKEND_API_KEY is required for backend %q", c.Backend))
		}
		if c.Backend == BackendAzure && c.BackendEndpoint == "" {
			errs = append(errs, errors.New("BACKEND_ENDPOINT is required for backend \"azure\""))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown BACKEND %q (want azure, openai or memory)", c.Backend))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.MaxPolls < 1 {
		errs = append(errs, errors.New("MAX_POLLS must be at least 1"))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, errors.New("RUN_TIMEOUT must be positive"))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENCY must be at least 1"))
	}

	return errors.Join(errs...)
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

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

// orPtr is or for file fields where the zero value is a valid setting.
func orPtr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

func orList(v, fallback []string) []string {
	if len(v) == 0 {
		return fallback
	}
	return v
}
