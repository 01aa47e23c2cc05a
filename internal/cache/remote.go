package cache

import (
	"context"
	"time"
)

// RemoteTier is the contract the orchestrator requires from the shared,
// network-accessible cache tier. internal/redis provides the production
// implementation; tests substitute a countable mock.
//
// Error semantics: implementations report network and timeout failures as
// errors, which the orchestrator absorbs and treats as misses. A missing key
// is not an error.
type RemoteTier interface {
	// Get returns the value for key; the bool reports presence.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// GetWithTTL additionally returns the key's remaining TTL so read-through
	// backfill never extends an entry's absolute expiry. Zero means no TTL.
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error)

	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// MGet fetches many keys in one round trip; the result is aligned with
	// keys and absent entries are nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)

	// MSet stores many entries in one pipelined round trip with per-key TTLs.
	MSet(ctx context.Context, entries map[string][]byte, ttls map[string]time.Duration) error

	// Keys lists keys matching a glob pattern. Expensive full-keyspace scan;
	// only invalidation paths may call it.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Exists reports whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
