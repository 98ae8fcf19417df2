package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string
	RedisURL    string

	LeadWebhookURL          string
	WebhookRequestTimeout   time.Duration
	WebhookAllowInsecureTLS bool

	PricebookURL      string
	PricebookCacheTTL time.Duration

	TaxRateBps   int
	CurrencyCode string

	DemoGenerateDelay time.Duration
	DemoResendDelay   time.Duration
	DemoSessionTTL    time.Duration
	DemoSweepInterval time.Duration

	AttributionTTL time.Duration
	CookieSecure   bool

	LeadQueueName        string
	LeadQueueConcurrency int

	RateLimitWindow time.Duration
	RateLimitMax    int

	CORSAllowedOrigins []string

	LogFormat string
	LogLevel  string

	TracingEnabled       bool
	TracingEndpoint      string
	TracingSamplingRatio float64

	PprofUser     string
	PprofPassword string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),
		Port:   valueOrDefault(k.String("PORT"), "8080"),

		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		LeadWebhookURL:          strings.TrimSpace(k.String("LEAD_WEBHOOK_URL")),
		WebhookRequestTimeout:   parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "5s"),
		WebhookAllowInsecureTLS: parseBool(k.String("WEBHOOK_ALLOW_INSECURE_TLS")),

		PricebookURL:      strings.TrimSpace(k.String("PRICEBOOK_URL")),
		PricebookCacheTTL: parseDuration(k.String("PRICEBOOK_CACHE_TTL"), "5m"),

		TaxRateBps:   parseInt(k.String("TAX_RATE_BPS"), 1000),
		CurrencyCode: valueOrDefault(k.String("CURRENCY_CODE"), "AUD"),

		DemoGenerateDelay: parseDuration(k.String("DEMO_GENERATE_DELAY"), "1500ms"),
		DemoResendDelay:   parseDuration(k.String("DEMO_RESEND_DELAY"), "1500ms"),
		DemoSessionTTL:    parseDuration(k.String("DEMO_SESSION_TTL"), "30m"),
		DemoSweepInterval: parseDuration(k.String("DEMO_SWEEP_INTERVAL"), "5m"),

		AttributionTTL: parseDuration(k.String("ATTRIBUTION_TTL"), "720h"),
		CookieSecure:   parseBool(k.String("COOKIE_SECURE")),

		LeadQueueName:        valueOrDefault(k.String("LEAD_QUEUE_NAME"), "leads"),
		LeadQueueConcurrency: parseInt(k.String("LEAD_QUEUE_CONCURRENCY"), 4),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 120),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		TracingEnabled:       parseBool(k.String("TRACING_ENABLED")),
		TracingEndpoint:      strings.TrimSpace(k.String("TRACING_ENDPOINT")),
		TracingSamplingRatio: parseFloat(k.String("TRACING_SAMPLING_RATIO"), 1),

		PprofUser:     k.String("PPROF_USER"),
		PprofPassword: k.String("PPROF_PASSWORD"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.LeadWebhookURL == "" {
		return nil, errors.New("LEAD_WEBHOOK_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	v, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
