// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, databases, credentials, rate limiting, purchase thresholds, and
// observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig holds the caller trust credentials.
type AuthConfig struct {
	AgentSecret string // AGENT_SHARED_SECRET: X-Agent-Secret header value
	DemoMode    bool   // DEMO_MODE: enables the admin bearer token
	AdminToken  string // DEMO_ADMIN_TOKEN
	HookToken   string // AGENT_HOOK_TOKEN: static bearer for answer storage
}

// AutoBuyConfig holds the purchase-rule thresholds.
type AutoBuyConfig struct {
	TokenThreshold   int64           // AUTOBUY_TOKEN_THRESHOLD
	BalanceThreshold decimal.Decimal // AUTOBUY_BALANCE_THRESHOLD (USD)
	PurchaseAmount   decimal.Decimal // AUTOBUY_PURCHASE_AMOUNT (USD)
}

// RateLimitConfig holds the sliding-window limits for request intake.
type RateLimitConfig struct {
	Window    time.Duration // RATE_WINDOW
	PerCaller int           // RATE_PER_IP
	Global    int           // RATE_GLOBAL
	RedisAddr string        // REDIS_ADDR; empty keeps the in-memory store
}

// UpstreamConfig holds external service endpoints and credentials.
type UpstreamConfig struct {
	AgentURL          string // AGENT_URL: hook endpoint of the agent runtime
	BackendBaseURL    string // BACKEND_BASE_URL: public URL for callbacks
	OpenRouterAPIKey  string // OPENROUTER_API_KEY
	OpenRouterBaseURL string // OPENROUTER_BASE_URL
	ColosseumAPIKey   string // COLOSSEUM_API_KEY
	ColosseumBaseURL  string // COLOSSEUM_BASE_URL
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogFile        string // optional rotating log file path
	SwaggerEnabled bool

	// Database
	DBDriver string // sqlite|postgres
	DBPath   string // SQLite path
	DBDSN    string // Postgres DSN (when DBDriver == "postgres")

	Auth    AuthConfig
	AutoBuy AutoBuyConfig
	Rate    RateLimitConfig
	Up      UpstreamConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogFile:        getenv("LOG_FILE", ""),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// Database
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:   getenv("DB_PATH", "agent.db"),
		DBDSN:    getenv("DB_DSN", ""),

		Auth: AuthConfig{
			AgentSecret: getenv("AGENT_SHARED_SECRET", ""),
			DemoMode:    getbool("DEMO_MODE", false),
			AdminToken:  getenv("DEMO_ADMIN_TOKEN", ""),
			HookToken:   getenv("AGENT_HOOK_TOKEN", ""),
		},
		AutoBuy: AutoBuyConfig{
			TokenThreshold:   getint64("AUTOBUY_TOKEN_THRESHOLD", 500),
			BalanceThreshold: getdecimal("AUTOBUY_BALANCE_THRESHOLD", "5.00"),
			PurchaseAmount:   getdecimal("AUTOBUY_PURCHASE_AMOUNT", "5.00"),
		},
		Rate: RateLimitConfig{
			Window:    getdur("RATE_WINDOW", time.Minute),
			PerCaller: getint("RATE_PER_IP", 5),
			Global:    getint("RATE_GLOBAL", 10),
			RedisAddr: getenv("REDIS_ADDR", ""),
		},
		Up: UpstreamConfig{
			AgentURL:          getenv("AGENT_URL", ""),
			BackendBaseURL:    getenv("BACKEND_BASE_URL", "http://localhost:8080"),
			OpenRouterAPIKey:  getenv("OPENROUTER_API_KEY", ""),
			OpenRouterBaseURL: getenv("OPENROUTER_BASE_URL", ""),
			ColosseumAPIKey:   getenv("COLOSSEUM_API_KEY", ""),
			ColosseumBaseURL:  getenv("COLOSSEUM_BASE_URL", ""),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "agent-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return cfg, errors.New("DB_DSN must not be empty when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be sqlite or postgres")
	}
	if cfg.Auth.DemoMode && strings.TrimSpace(cfg.Auth.AdminToken) == "" {
		return cfg, errors.New("DEMO_ADMIN_TOKEN must be set when DEMO_MODE is enabled")
	}
	if cfg.AutoBuy.TokenThreshold <= 0 {
		return cfg, errors.New("AUTOBUY_TOKEN_THRESHOLD must be > 0")
	}
	if cfg.AutoBuy.BalanceThreshold.LessThanOrEqual(decimal.Zero) ||
		cfg.AutoBuy.PurchaseAmount.LessThanOrEqual(decimal.Zero) {
		return cfg, errors.New("auto-buy amounts must be positive")
	}
	if cfg.Rate.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.Rate.PerCaller < 1 || cfg.Rate.Global < 1 {
		return cfg, errors.New("rate limits must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps beyond decimal) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getdecimal(k, def string) decimal.Decimal {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(def)
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
