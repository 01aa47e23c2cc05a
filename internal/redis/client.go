// Package redis implements the remote cache tier on top of go-redis.
//
// All operations are bounded by a per-call timeout and guarded by a circuit
// breaker: once the remote store has failed repeatedly, calls fail fast with
// a remote error until the breaker half-opens. Callers are expected to treat
// any error from this package as a cache miss, never as a fatal condition.
package redis

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	apperrors "cache-engine/internal/common/errors"
	"cache-engine/internal/common/logging"
)

// Config holds connection settings for the remote tier
type Config struct {
	Address   string        `json:"address"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	PoolSize  int           `json:"pool_size"`
	KeyPrefix string        `json:"key_prefix"`
	OpTimeout time.Duration `json:"op_timeout"`
}

// Client wraps a go-redis client as the shared cache tier
type Client struct {
	rdb     *goredis.Client
	config  *Config
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// NewClient connects to the remote tier and verifies the connection
func NewClient(config *Config, logger logging.Logger) (*Client, error) {
	if config == nil {
		return nil, apperrors.ConfigError("redis config is required")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, apperrors.RemoteUnavailableError("failed to connect to Redis", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "remote-tier",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Remote tier circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})

	return &Client{
		rdb:     rdb,
		config:  config,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Close releases the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the remote tier
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// prefixed returns the storage key for a cache key
func (c *Client) prefixed(key string) string {
	return c.config.KeyPrefix + key
}

// execute runs op through the circuit breaker with the configured timeout.
// A key miss (redis.Nil) counts as success so misses never trip the breaker.
func (c *Client) execute(ctx context.Context, op func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return op(opCtx)
	})
	if err != nil {
		return nil, apperrors.RemoteUnavailableError("remote tier operation failed", err)
	}
	return result, nil
}

// Get retrieves a value; the second return reports whether the key exists
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		data, err := c.rdb.Get(ctx, c.prefixed(key)).Bytes()
		if err == goredis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, nil
	}
	return result.([]byte), true, nil
}

type valueWithTTL struct {
	data []byte
	ttl  time.Duration
}

// GetWithTTL retrieves a value together with its remaining TTL in a single
// pipelined round trip. A zero TTL means the key has no expiration.
func (c *Client) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	result, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		pipe := c.rdb.Pipeline()
		getCmd := pipe.Get(ctx, c.prefixed(key))
		ttlCmd := pipe.PTTL(ctx, c.prefixed(key))

		if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
			return nil, err
		}

		data, err := getCmd.Bytes()
		if err == goredis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		ttl := ttlCmd.Val()
		if ttl < 0 {
			// -1: no expiration set, -2: key vanished between commands
			ttl = 0
		}
		return valueWithTTL{data: data, ttl: ttl}, nil
	})
	if err != nil {
		return nil, 0, false, err
	}
	if result == nil {
		return nil, 0, false, nil
	}
	v := result.(valueWithTTL)
	return v.data, v.ttl, true, nil
}

// Set stores a value with the given TTL
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.rdb.Set(ctx, c.prefixed(key), value, ttl).Err()
	})
	return err
}

// Delete removes the given keys and returns how many existed
func (c *Client) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefixed(k)
	}

	result, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		n, err := c.rdb.Del(ctx, prefixed...).Result()
		return int(n), err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// MGet retrieves multiple values in one round trip. The returned slice is
// aligned with keys; absent entries are nil.
func (c *Client) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefixed(k)
	}

	result, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		vals, err := c.rdb.MGet(ctx, prefixed...).Result()
		if err != nil {
			return nil, err
		}

		out := make([][]byte, len(keys))
		for i, v := range vals {
			if v == nil {
				continue
			}
			// go-redis returns MGET results as strings
			if s, ok := v.(string); ok {
				out[i] = []byte(s)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]byte), nil
}

// MSet stores multiple values in one pipelined round trip. TTLs are provided
// per key so batched writes keep their desynchronized expirations.
func (c *Client) MSet(ctx context.Context, entries map[string][]byte, ttls map[string]time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		pipe := c.rdb.Pipeline()
		for key, value := range entries {
			pipe.Set(ctx, c.prefixed(key), value, ttls[key])
		}
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	return err
}

// Keys returns all keys matching the glob pattern, with the client's prefix
// stripped. This issues a KEYS scan over the whole keyspace and must not be
// called on the hot path.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	result, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		keys, err := c.rdb.Keys(ctx, c.prefixed(pattern)).Result()
		if err != nil {
			return nil, err
		}

		stripped := make([]string, 0, len(keys))
		for _, k := range keys {
			if len(k) >= len(c.config.KeyPrefix) {
				stripped = append(stripped, k[len(c.config.KeyPrefix):])
			}
		}
		return stripped, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Exists checks if a key exists
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		n, err := c.rdb.Exists(ctx, c.prefixed(key)).Result()
		return n > 0, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Publish sends a message on a channel for cross-instance coordination
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.rdb.Publish(ctx, channel, payload).Err()
	})
	return err
}

// Subscribe opens a subscription on the given channels. The returned PubSub
// must be closed by the caller.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *goredis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}
