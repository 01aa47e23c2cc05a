package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := Load()

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "localhost:6379", cfg.RedisAddress)
		assert.Equal(t, 0, cfg.RedisDB)
		assert.Equal(t, 10, cfg.RedisPoolSize)
		assert.Equal(t, 5*time.Second, cfg.RedisOpTimeout)
		assert.Equal(t, "cache:", cfg.CachePrefix)
		assert.Equal(t, 5*time.Minute, cfg.DefaultTTL)
		assert.Equal(t, 1000, cfg.MaxLocalEntries)
		assert.True(t, cfg.EnableMultiLevel)
		assert.True(t, cfg.EnableStats)
		assert.False(t, cfg.EnableEvents)
		assert.Equal(t, "cache:invalidations", cfg.EventChannel)
		assert.Equal(t, 30*time.Second, cfg.SnowballJitter)
		assert.Equal(t, 0, cfg.PenetrationThreshold)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("REDIS_ADDRESS", "redis.internal:6380")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("CACHE_DEFAULT_TTL", "10m")
		t.Setenv("CACHE_MAX_LOCAL_ENTRIES", "5000")
		t.Setenv("CACHE_MULTI_LEVEL", "false")
		t.Setenv("CACHE_EVENTS", "true")
		t.Setenv("CACHE_JITTER", "1m")
		t.Setenv("CACHE_PENETRATION_THRESHOLD", "5")

		cfg := Load()

		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "redis.internal:6380", cfg.RedisAddress)
		assert.Equal(t, 3, cfg.RedisDB)
		assert.Equal(t, 10*time.Minute, cfg.DefaultTTL)
		assert.Equal(t, 5000, cfg.MaxLocalEntries)
		assert.False(t, cfg.EnableMultiLevel)
		assert.True(t, cfg.EnableEvents)
		assert.Equal(t, time.Minute, cfg.SnowballJitter)
		assert.Equal(t, 5, cfg.PenetrationThreshold)
	})

	t.Run("malformed values fall back to defaults", func(t *testing.T) {
		t.Setenv("REDIS_DB", "not-a-number")
		t.Setenv("CACHE_STATS", "not-a-bool")
		t.Setenv("CACHE_DEFAULT_TTL", "not-a-duration")

		cfg := Load()

		assert.Equal(t, 0, cfg.RedisDB)
		assert.True(t, cfg.EnableStats)
		assert.Equal(t, 5*time.Minute, cfg.DefaultTTL)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Load()
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"non-numeric port", func(c *Config) { c.Port = "eighty" }},
		{"redis db too high", func(c *Config) { c.RedisDB = 16 }},
		{"negative redis db", func(c *Config) { c.RedisDB = -1 }},
		{"zero pool size", func(c *Config) { c.RedisPoolSize = 0 }},
		{"zero default ttl", func(c *Config) { c.DefaultTTL = 0 }},
		{"zero local entries", func(c *Config) { c.MaxLocalEntries = 0 }},
		{"negative jitter", func(c *Config) { c.SnowballJitter = -time.Second }},
		{"negative penetration threshold", func(c *Config) { c.PenetrationThreshold = -1 }},
		{"events without channel", func(c *Config) {
			c.EnableEvents = true
			c.EventChannel = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
