// Package config exposes the gateway's environment-driven configuration.
// A .env file is honored when present so local development matches the
// deployed environment variable surface.
package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

var (
	// Port is the HTTP listen port for the gateway API.
	Port = GetOrDefaultString("PORT", "3000")
	// APIVersion is stamped into response envelopes.
	APIVersion = GetOrDefaultString("API_VERSION", "1.0")

	// SessionSecret signs and verifies bearer tokens. Deployments must
	// override the default.
	SessionSecret = GetOrDefaultString("SESSION_SECRET", "twinmcp-default-secret")
	// APIKeyPrefix marks opaque API keys so they can be told apart from
	// signed bearer tokens sharing the Authorization header.
	APIKeyPrefix = GetOrDefaultString("API_KEY_PREFIX", "tmk_")

	// RedisAddr enables Redis-backed rate limiting and caching when set.
	RedisAddr     = os.Getenv("REDIS_ADDR")
	RedisPassword = os.Getenv("REDIS_PASSWORD")

	// SQLDSN enables durable storage for users, keys, tools and metrics
	// events when set. The core runs fully in memory without it.
	SQLDSN = os.Getenv("SQL_DSN")

	DebugEnabled            = GetOrDefaultBool("DEBUG", false)
	EnablePrometheusMetrics = GetOrDefaultBool("ENABLE_PROMETHEUS_METRICS", true)

	// QueueWorkers bounds concurrent asynchronous job executions.
	QueueWorkers = GetOrDefaultInt("QUEUE_WORKERS", 4)
	// QueueMaxDepth bounds pending jobs; zero means unbounded.
	QueueMaxDepth = GetOrDefaultInt("QUEUE_MAX_DEPTH", 0)
	// JobRetention controls how long terminal jobs stay queryable.
	JobRetention = GetOrDefaultDuration("JOB_RETENTION", time.Hour)

	HealthCheckInterval = GetOrDefaultDuration("HEALTH_CHECK_INTERVAL", 30*time.Second)
	HealthCheckTimeout  = GetOrDefaultDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second)

	// BackendURLs is a comma-separated list of proxied tool backends. When
	// set, stored tool definitions execute against these backends through
	// the load balancer.
	BackendURLs = os.Getenv("BACKEND_URLS")
	// BalancerStrategy selects the backend rotation algorithm.
	BalancerStrategy = GetOrDefaultString("BALANCER_STRATEGY", "round-robin")

	// BackendErrorThreshold is the minimum error count before automatic
	// health demotion kicks in.
	BackendErrorThreshold = GetOrDefaultInt("BACKEND_ERROR_THRESHOLD", 3)
)

// GetOrDefaultString returns the named environment variable or a fallback.
func GetOrDefaultString(env string, defaultValue string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return defaultValue
}

// GetOrDefaultInt returns the named environment variable parsed as int,
// falling back when unset or malformed.
func GetOrDefaultInt(env string, defaultValue int) int {
	v := os.Getenv(env)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetOrDefaultBool returns the named environment variable parsed as bool,
// falling back when unset or malformed.
func GetOrDefaultBool(env string, defaultValue bool) bool {
	v := os.Getenv(env)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetOrDefaultDuration returns the named environment variable parsed as a
// time.Duration, falling back when unset or malformed.
func GetOrDefaultDuration(env string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(env)
	if v == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
