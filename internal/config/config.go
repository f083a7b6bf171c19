package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string
	IdPSecret string

	LogLevel string

	RateLimitRPM int
	SessionDays  int

	MailerURL       string
	MailerToken     string
	MailerTimeoutMS int

	InviteTTLDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("CB_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("CB_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("CB_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("CB_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CB_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("CB_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("CB_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("CB_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("CB_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("CB_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("CB_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.IdPSecret = os.Getenv("CB_IDP_SECRET")
	if cfg.IdPSecret == "" {
		return nil, fmt.Errorf("CB_IDP_SECRET is required")
	}

	cfg.LogLevel = getEnvOrDefault("CB_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("CB_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("CB_RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, err
	}

	cfg.SessionDays, err = getEnvIntOrDefault("CB_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	// Empty mailer URL disables delivery; invitations still commit.
	cfg.MailerURL = strings.TrimSpace(os.Getenv("CB_MAILER_URL"))
	cfg.MailerToken = os.Getenv("CB_MAILER_TOKEN")

	cfg.MailerTimeoutMS, err = getEnvIntOrDefault("CB_MAILER_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.MailerTimeoutMS <= 0 || cfg.MailerTimeoutMS > 30000 {
		return nil, fmt.Errorf("CB_MAILER_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.MailerTimeoutMS)
	}

	cfg.InviteTTLDays, err = getEnvIntOrDefault("CB_INVITE_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.InviteTTLDays <= 0 {
		return nil, fmt.Errorf("CB_INVITE_TTL_DAYS must be positive (got: %d)", cfg.InviteTTLDays)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"CB_ENV":               c.Env,
		"CB_HTTP_ADDR":         c.HTTPAddr,
		"CB_BASE_URL":          c.BaseURL,
		"CB_DB_DSN":            redactDSN(c.DBDSN),
		"CB_JWT_SECRET":        "[REDACTED]",
		"CB_IDP_SECRET":        "[REDACTED]",
		"CB_LOG_LEVEL":         c.LogLevel,
		"CB_RATE_LIMIT_RPM":    fmt.Sprintf("%d", c.RateLimitRPM),
		"CB_SESSION_DAYS":      fmt.Sprintf("%d", c.SessionDays),
		"CB_MAILER_URL":        c.MailerURL,
		"CB_MAILER_TOKEN":      "[REDACTED]",
		"CB_MAILER_TIMEOUT_MS": fmt.Sprintf("%d", c.MailerTimeoutMS),
		"CB_INVITE_TTL_DAYS":   fmt.Sprintf("%d", c.InviteTTLDays),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
