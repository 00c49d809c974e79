package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Environment string
}

type ServerConfig struct {
	Host            string
	Port            int
	BaseURL         string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	MigrationsPath string
	AutoMigrate    bool
}

// AuthConfig describes how identity tokens issued by the external auth
// provider are verified. Tokens are HS256 signed with JWTSecret.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTExpiry   time.Duration
}

type SessionConfig struct {
	CookieName   string
	CookieSecure bool
	MaxAge       time.Duration
}

type RateLimitConfig struct {
	PublicPerMinute        int
	AuthenticatedPerMinute int
	SignInPerMinute        int
	TrustedProxyCIDRs      []string
	// RedisURL, when set, shares budgets between replicas through Redis.
	RedisURL string
}

type CORSConfig struct {
	AllowAllOrigins bool
	AllowedOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	SampleRate   float64
}

// Load reads configuration from the environment. Values from an optional
// YAML file (see LoadFile) are applied first, so the environment always wins.
func Load() (Config, error) {
	return load(nil)
}

func load(file *fileConfig) (Config, error) {
	lookup := envLookup(file)

	env := lookup.str("ENVIRONMENT", "development")
	cfg := Config{
		Server: ServerConfig{
			Host:            lookup.str("SERVER_HOST", "0.0.0.0"),
			Port:            lookup.int("SERVER_PORT", 8080),
			BaseURL:         lookup.str("SERVER_BASE_URL", "http://localhost:8080"),
			ShutdownTimeout: time.Duration(lookup.int("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Database: DatabaseConfig{
			URL:            lookup.str("DATABASE_URL", ""),
			MaxConnections: lookup.int("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        lookup.int("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			MigrationsPath: lookup.str("DATABASE_MIGRATIONS_PATH", ""),
			AutoMigrate:    lookup.bool("DATABASE_AUTO_MIGRATE", false),
		},
		Auth: AuthConfig{
			JWTSecret:   lookup.str("JWT_SECRET", ""),
			JWTIssuer:   lookup.str("JWT_ISSUER", ""),
			JWTAudience: lookup.str("JWT_AUDIENCE", ""),
			JWTExpiry:   time.Duration(lookup.int("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Session: SessionConfig{
			CookieName:   lookup.str("SESSION_COOKIE_NAME", "rsvp_session"),
			CookieSecure: lookup.bool("SESSION_COOKIE_SECURE", env == "production"),
			MaxAge:       time.Duration(lookup.int("SESSION_MAX_AGE_HOURS", 24)) * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:        lookup.int("RATE_LIMIT_PUBLIC", 60),
			AuthenticatedPerMinute: lookup.int("RATE_LIMIT_AUTHENTICATED", 300),
			SignInPerMinute:        lookup.int("RATE_LIMIT_SIGN_IN", 10),
			TrustedProxyCIDRs:      splitList(lookup.str("TRUSTED_PROXY_CIDRS", "")),
			RedisURL:               lookup.str("RATE_LIMIT_REDIS_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  lookup.str("LOG_LEVEL", "info"),
			Format: lookup.str("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      lookup.bool("TRACING_ENABLED", false),
			ServiceName:  lookup.str("TRACING_SERVICE_NAME", "rsvp-server"),
			Exporter:     lookup.str("TRACING_EXPORTER", "stdout"),
			OTLPEndpoint: lookup.str("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   lookup.float("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: env,
	}

	origins := splitList(lookup.str("CORS_ALLOWED_ORIGINS", ""))
	switch env {
	case "development", "test":
		cfg.CORS = CORSConfig{AllowAllOrigins: true, AllowedOrigins: origins}
	default:
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS is required when ENVIRONMENT=%s", env)
		}
		cfg.CORS = CORSConfig{AllowedOrigins: origins}
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if env == "production" && len(cfg.Auth.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		return Config{}, fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1")
	}
	for _, cidr := range cfg.RateLimit.TrustedProxyCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return Config{}, fmt.Errorf("TRUSTED_PROXY_CIDRS: invalid CIDR %q", cidr)
		}
	}
	return cfg, nil
}

// lookupFunc resolves a key from the environment first, then from the
// config file values.
type lookupFunc func(key string) (string, bool)

func envLookup(file *fileConfig) lookupFunc {
	return func(key string) (string, bool) {
		if value := os.Getenv(key); value != "" {
			return value, true
		}
		if file != nil {
			if value, ok := file.values[key]; ok && value != "" {
				return value, true
			}
		}
		return "", false
	}
}

func (l lookupFunc) str(key, fallback string) string {
	if value, ok := l(key); ok {
		return value
	}
	return fallback
}

func (l lookupFunc) int(key string, fallback int) int {
	value, ok := l(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (l lookupFunc) bool(key string, fallback bool) bool {
	value, ok := l(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (l lookupFunc) float(key string, fallback float64) float64 {
	value, ok := l(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
