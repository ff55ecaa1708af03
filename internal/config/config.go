// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/stockctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

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

	// Stock check scheduler
	SchedulerEnabled bool
	CheckInterval    time.Duration
	CheckWorkers     int
	CycleLockTTL     time.Duration
	UserLockTTL      time.Duration
	ListenerEnabled  bool

	// Push gateway
	PushEnabled       bool
	PushGatewayURL    string
	PushAccessToken   string
	PushTimeout       time.Duration
	PushRatePerSecond float64

	// Redis (cycle lock); empty address uses an in-process lock
	RedisAddrs      []string
	RedisPassword   string
	RedisUseCluster bool

	// Category suggestion
	GeminiAPIKey string
	GeminiModel  string

	// Maintenance
	CleanupInterval       time.Duration
	NotificationRetention time.Duration

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:8081",
			"http://localhost:19006",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		SchedulerEnabled: envBool("SCHEDULER_ENABLED", true),
		CheckInterval:    time.Duration(envInt("CHECK_INTERVAL_MINUTES", 5)) * time.Minute,
		CheckWorkers:     envInt("CHECK_WORKERS", 1),
		CycleLockTTL:     time.Duration(envInt("CYCLE_LOCK_TTL_MINUTES", 10)) * time.Minute,
		UserLockTTL:      time.Duration(envInt("USER_LOCK_TTL_SECONDS", 120)) * time.Second,
		ListenerEnabled:  envBool("LISTENER_ENABLED", true),

		PushEnabled:       envBool("PUSH_ENABLED", true),
		PushGatewayURL:    envOr("PUSH_GATEWAY_URL", "https://exp.host/--/api/v2/push/send"),
		PushAccessToken:   envOr("PUSH_ACCESS_TOKEN", ""),
		PushTimeout:       time.Duration(envInt("PUSH_TIMEOUT_SECONDS", 30)) * time.Second,
		PushRatePerSecond: envFloat("PUSH_RATE_PER_SECOND", 0),

		RedisAddrs:      envList("REDIS_ADDR", nil),
		RedisPassword:   envOr("REDIS_PASSWORD", ""),
		RedisUseCluster: envBool("REDIS_CLUSTER", false),

		GeminiAPIKey: envOr("GEMINI_API_KEY", ""),
		GeminiModel:  envOr("GEMINI_MODEL", "gemini-1.5-flash"),

		CleanupInterval:       time.Duration(envInt("CLEANUP_INTERVAL_HOURS", 6)) * time.Hour,
		NotificationRetention: time.Duration(envInt("NOTIFICATION_RETENTION_DAYS", 30)) * 24 * time.Hour,

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}

	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("CHECK_INTERVAL_MINUTES must be positive")
	}
	if cfg.CheckWorkers < 1 {
		cfg.CheckWorkers = 1
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasRedis reports whether a Redis address is configured.
func (c *Config) HasRedis() bool {
	return len(c.RedisAddrs) > 0
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
