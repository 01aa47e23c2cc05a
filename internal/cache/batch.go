package cache

import (
	"context"
	"time"

	"cache-engine/internal/common/logging"
)

// batchCoordinator splits multi-key operations between the local and remote
// tiers so a batch of any size costs at most one network round trip.
type batchCoordinator struct {
	local  *LocalTier
	remote RemoteTier // nil when running local-only
	stats  *StatsCollector
	logger logging.Logger

	backfillTTL func() time.Duration
	jitteredTTL func(base time.Duration) time.Duration
}

// mget partitions keys into local hits and misses, resolves the misses with
// a single remote MGet and backfills the local tier with every remote hit.
// Keys absent from both tiers are left out of the result.
func (b *batchCoordinator) mget(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	var missing []string

	for _, key := range keys {
		if value, ok := b.local.Get(key); ok {
			result[key] = value
			b.stats.RecordHit()
		} else {
			missing = append(missing, key)
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	if b.remote == nil {
		for range missing {
			b.stats.RecordMiss()
		}
		return result, nil
	}

	values, err := b.remote.MGet(ctx, missing)
	if err != nil {
		// Degrade to whatever the local tier had
		b.logger.Warn("Remote tier MGet failed, serving local hits only",
			logging.Int("keys", len(missing)),
			logging.Err(err),
		)
		for range missing {
			b.stats.RecordMiss()
		}
		return result, nil
	}

	// MGET does not report remaining TTLs, so backfilled entries get a
	// capped local TTL rather than inheriting the remote expiry
	ttl := b.backfillTTL()
	for i, value := range values {
		if value == nil {
			b.stats.RecordMiss()
			continue
		}
		key := missing[i]
		result[key] = value
		b.local.Set(key, value, ttl, nil)
		b.stats.RecordHit()
	}

	return result, nil
}

// mset writes every entry to the local tier, then flushes the whole batch to
// the remote tier in one pipelined round trip. Each entry gets its own
// jittered TTL so the batch does not expire in a single instant.
func (b *batchCoordinator) mset(ctx context.Context, entries map[string][]byte, baseTTL time.Duration) error {
	ttls := make(map[string]time.Duration, len(entries))
	for key, value := range entries {
		ttl := b.jitteredTTL(baseTTL)
		ttls[key] = ttl
		b.local.Set(key, value, ttl, nil)
		b.stats.RecordSet()
	}

	if b.remote == nil {
		return nil
	}

	if err := b.remote.MSet(ctx, entries, ttls); err != nil {
		// Local writes stand; the tiers may diverge until the next read-through
		b.logger.Warn("Remote tier MSet failed, entries cached locally only",
			logging.Int("entries", len(entries)),
			logging.Err(err),
		)
	}
	return nil
}
