package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig holds settings read from a YAML file, flattened to the same
// keys used for environment variables.
type fileConfig struct {
	values map[string]string
}

type yamlDocument struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Database struct {
		URL            string `yaml:"url"`
		MaxConnections int    `yaml:"max_connections"`
		MigrationsPath string `yaml:"migrations_path"`
		AutoMigrate    *bool  `yaml:"auto_migrate"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret   string `yaml:"jwt_secret"`
		JWTIssuer   string `yaml:"jwt_issuer"`
		JWTAudience string `yaml:"jwt_audience"`
	} `yaml:"auth"`
	Session struct {
		CookieName   string `yaml:"cookie_name"`
		CookieSecure *bool  `yaml:"cookie_secure"`
	} `yaml:"session"`
	RateLimit struct {
		Public            int      `yaml:"public_per_minute"`
		Authenticated     int      `yaml:"authenticated_per_minute"`
		SignIn            int      `yaml:"sign_in_per_minute"`
		TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
		RedisURL          string   `yaml:"redis_url"`
	} `yaml:"rate_limit"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Tracing struct {
		Enabled      *bool    `yaml:"enabled"`
		Exporter     string   `yaml:"exporter"`
		OTLPEndpoint string   `yaml:"otlp_endpoint"`
		SampleRate   *float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// LoadFile reads a YAML config file and layers the environment on top of it.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	file, err := parseFile(data)
	if err != nil {
		return Config{}, err
	}
	return load(file)
}

func parseFile(data []byte) (*fileConfig, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	values := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			values[key] = value
		}
	}
	setInt := func(key string, value int) {
		if value != 0 {
			values[key] = strconv.Itoa(value)
		}
	}
	setBool := func(key string, value *bool) {
		if value != nil {
			values[key] = strconv.FormatBool(*value)
		}
	}

	set("ENVIRONMENT", doc.Environment)
	set("SERVER_HOST", doc.Server.Host)
	setInt("SERVER_PORT", doc.Server.Port)
	set("SERVER_BASE_URL", doc.Server.BaseURL)
	set("DATABASE_URL", doc.Database.URL)
	setInt("DATABASE_MAX_CONNECTIONS", doc.Database.MaxConnections)
	set("DATABASE_MIGRATIONS_PATH", doc.Database.MigrationsPath)
	setBool("DATABASE_AUTO_MIGRATE", doc.Database.AutoMigrate)
	set("JWT_SECRET", doc.Auth.JWTSecret)
	set("JWT_ISSUER", doc.Auth.JWTIssuer)
	set("JWT_AUDIENCE", doc.Auth.JWTAudience)
	set("SESSION_COOKIE_NAME", doc.Session.CookieName)
	setBool("SESSION_COOKIE_SECURE", doc.Session.CookieSecure)
	setInt("RATE_LIMIT_PUBLIC", doc.RateLimit.Public)
	setInt("RATE_LIMIT_AUTHENTICATED", doc.RateLimit.Authenticated)
	setInt("RATE_LIMIT_SIGN_IN", doc.RateLimit.SignIn)
	set("TRUSTED_PROXY_CIDRS", strings.Join(doc.RateLimit.TrustedProxyCIDRs, ","))
	set("RATE_LIMIT_REDIS_URL", doc.RateLimit.RedisURL)
	set("CORS_ALLOWED_ORIGINS", strings.Join(doc.CORS.AllowedOrigins, ","))
	set("LOG_LEVEL", doc.Logging.Level)
	set("LOG_FORMAT", doc.Logging.Format)
	setBool("TRACING_ENABLED", doc.Tracing.Enabled)
	set("TRACING_EXPORTER", doc.Tracing.Exporter)
	set("TRACING_OTLP_ENDPOINT", doc.Tracing.OTLPEndpoint)
	if doc.Tracing.SampleRate != nil {
		values["TRACING_SAMPLE_RATE"] = strconv.FormatFloat(*doc.Tracing.SampleRate, 'f', -1, 64)
	}

	return &fileConfig{values: values}, nil
}
