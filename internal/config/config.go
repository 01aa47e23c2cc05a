// Package config provides configuration management for the cache engine
// daemon. It loads settings from environment variables with sensible
// defaults and validates them before the engine starts.
//
// Environment Variables:
//
// Application settings:
//   - PORT: Ops server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Remote tier (Redis):
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - REDIS_OP_TIMEOUT: Per-operation timeout (default: 5s)
//
// Cache engine:
//   - CACHE_PREFIX: Namespace prepended to every remote key (default: "cache:")
//   - CACHE_DEFAULT_TTL: TTL when callers pass none (default: 5m)
//   - CACHE_MAX_LOCAL_ENTRIES: Local tier capacity (default: 1000)
//   - CACHE_MULTI_LEVEL: Use the remote tier (default: true)
//   - CACHE_STATS: Collect hit/miss statistics (default: true)
//   - CACHE_EVENTS: Cross-instance invalidation events (default: false)
//   - CACHE_EVENT_CHANNEL: Pub/sub channel for events (default: "cache:invalidations")
//   - CACHE_JITTER: TTL jitter bound (default: 30s)
//   - CACHE_PENETRATION_THRESHOLD: Consecutive misses before negative caching, 0 disables (default: 0)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the cache engine daemon
type Config struct {
	// Application settings
	Port     string
	LogLevel string

	// Remote tier connection
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	RedisPoolSize  int
	RedisOpTimeout time.Duration

	// Cache engine settings
	CachePrefix          string
	DefaultTTL           time.Duration
	MaxLocalEntries      int
	EnableMultiLevel     bool
	EnableStats          bool
	EnableEvents         bool
	EventChannel         string
	SnowballJitter       time.Duration
	PenetrationThreshold int
}

// Load creates a Config with values from environment variables, falling back
// to defaults. Call Validate before using the result.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisPoolSize:  getEnvInt("REDIS_POOL_SIZE", 10),
		RedisOpTimeout: getEnvDuration("REDIS_OP_TIMEOUT", 5*time.Second),

		CachePrefix:          getEnv("CACHE_PREFIX", "cache:"),
		DefaultTTL:           getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		MaxLocalEntries:      getEnvInt("CACHE_MAX_LOCAL_ENTRIES", 1000),
		EnableMultiLevel:     getEnvBool("CACHE_MULTI_LEVEL", true),
		EnableStats:          getEnvBool("CACHE_STATS", true),
		EnableEvents:         getEnvBool("CACHE_EVENTS", false),
		EventChannel:         getEnv("CACHE_EVENT_CHANNEL", "cache:invalidations"),
		SnowballJitter:       getEnvDuration("CACHE_JITTER", 30*time.Second),
		PenetrationThreshold: getEnvInt("CACHE_PENETRATION_THRESHOLD", 0),
	}
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.RedisDB)
	}
	if c.RedisPoolSize <= 0 {
		return fmt.Errorf("REDIS_POOL_SIZE must be positive, got %d", c.RedisPoolSize)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL must be positive, got %v", c.DefaultTTL)
	}
	if c.MaxLocalEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_LOCAL_ENTRIES must be positive, got %d", c.MaxLocalEntries)
	}
	if c.SnowballJitter < 0 {
		return fmt.Errorf("CACHE_JITTER must not be negative, got %v", c.SnowballJitter)
	}
	if c.PenetrationThreshold < 0 {
		return fmt.Errorf("CACHE_PENETRATION_THRESHOLD must not be negative, got %d", c.PenetrationThreshold)
	}
	if c.EnableEvents && c.EventChannel == "" {
		return fmt.Errorf("CACHE_EVENT_CHANNEL must not be empty when events are enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
