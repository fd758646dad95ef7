package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string
	RedisURL    string // empty selects the in-memory session store
	Port        string
	JWTSecret   string

	SessionTTLSeconds int
	AccessTokenTTL    time.Duration
	BlockThreshold    int
	ApprovalThreshold int
	AdminUsers        []string
	SuspiciousIPs     []string // nil selects the built-in denylist
	GeoAPIBaseURL     string
	GeoDevMode        bool
	SweepInterval     time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              "8080",
		SessionTTLSeconds: 300,
		AccessTokenTTL:    15 * time.Minute,
		BlockThreshold:    70,
		ApprovalThreshold: 30,
		AdminUsers:        []string{"admin"},
		SweepInterval:     time.Minute,
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	cfg.RedisURL = os.Getenv("REDIS_URL")

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("SESSION_TTL_SECONDS must be a positive integer, got %q", v)
		}
		cfg.SessionTTLSeconds = ttl
	}

	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be a positive duration, got %q", v)
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("RISK_BLOCK_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RISK_BLOCK_THRESHOLD must be an integer, got %q", v)
		}
		cfg.BlockThreshold = n
	}

	if v := os.Getenv("RISK_APPROVAL_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RISK_APPROVAL_THRESHOLD must be an integer, got %q", v)
		}
		cfg.ApprovalThreshold = n
	}
	if cfg.ApprovalThreshold > cfg.BlockThreshold {
		return nil, fmt.Errorf("RISK_APPROVAL_THRESHOLD (%d) must not exceed RISK_BLOCK_THRESHOLD (%d)",
			cfg.ApprovalThreshold, cfg.BlockThreshold)
	}

	if v := os.Getenv("ADMIN_USERS"); v != "" {
		cfg.AdminUsers = splitList(v)
	}

	if v := os.Getenv("SUSPICIOUS_IPS"); v != "" {
		cfg.SuspiciousIPs = splitList(v)
	}

	cfg.GeoAPIBaseURL = os.Getenv("GEO_API_BASE_URL")
	cfg.GeoDevMode = os.Getenv("GEO_DEV_MODE") == "true"

	if v := os.Getenv("SESSION_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("SESSION_SWEEP_INTERVAL must be a positive duration, got %q", v)
		}
		cfg.SweepInterval = d
	}

	return cfg, nil
}

// IsAdmin reports whether the username is a configured privileged operator.
func (c *Config) IsAdmin(username string) bool {
	for _, admin := range c.AdminUsers {
		if username == admin {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
