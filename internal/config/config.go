// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/bloodctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Table names, matching schema.sql
// --------------------------------------------------------------------------

const (
	RequestsTable      = "blood_requests"
	DonationsTable     = "donations"
	ResponsesTable     = "donor_responses"
	PingLogsTable      = "donor_ping_logs"
	StatesTable        = "escalation_states"
	ProfilesTable      = "donor_profiles"
	NotificationsTable = "notifications"
)

// --------------------------------------------------------------------------
// Config struct populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Redis (realtime donor channels)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Escalation
	PingCooldown        time.Duration // min gap between pings to one donor for one request
	MaxRepings          int           // ping cap per (request, donor), all stages
	StageInterval       time.Duration // delay between escalation hops
	LoopInterval        time.Duration // reping loop period
	MaxEscalationWindow time.Duration // stop escalating after this request age
	TickInterval        time.Duration // scheduler batch period
	TickWorkers         int

	// Matching
	RadiusSmallKm float64
	RadiusLargeKm float64

	// Eligibility
	EligibilityCooldown time.Duration

	// Maintenance
	CleanupInterval  time.Duration
	ReminderInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("S4L_DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or S4L_DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:8000",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		PingCooldown:        time.Duration(envInt("S4L_PING_COOLDOWN_SECONDS", 180)) * time.Second,
		MaxRepings:          envInt("S4L_MAX_REPINGS", 3),
		StageInterval:       time.Duration(envInt("S4L_EMERGENCY_STAGE_INTERVAL_MINUTES", 1)) * time.Minute,
		LoopInterval:        time.Duration(envInt("S4L_EMERGENCY_REPING_INTERVAL_MINUTES", 1)) * time.Minute,
		MaxEscalationWindow: time.Duration(envInt("S4L_EMERGENCY_ESCALATION_MAX_MINUTES", 60)) * time.Minute,
		TickInterval:        time.Duration(envInt("S4L_ESCALATION_TICK_SECONDS", 30)) * time.Second,
		TickWorkers:         envInt("S4L_ESCALATION_TICK_WORKERS", 4),

		RadiusSmallKm: envFloat("S4L_RADIUS_SMALL_KM", 5),
		RadiusLargeKm: envFloat("S4L_RADIUS_LARGE_KM", 10),

		EligibilityCooldown: time.Duration(envInt("S4L_ELIGIBILITY_COOLDOWN_DAYS", 90)) * 24 * time.Hour,

		CleanupInterval:  time.Duration(envInt("S4L_CLEANUP_INTERVAL_MINUTES", 30)) * time.Minute,
		ReminderInterval: time.Duration(envInt("S4L_REMINDER_INTERVAL_MINUTES", 60)) * time.Minute,
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
