// Package cache implements the multi-tier cache engine: a bounded in-process
// LRU tier in front of a shared remote tier, coordinated with read-through,
// write-through, TTL jitter, single-flight stampede protection, tag-based
// invalidation, batch operations and hit/miss statistics.
package cache

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	apperrors "cache-engine/internal/common/errors"
	"cache-engine/internal/common/logging"
)

// Factory computes a value for GetOrSet on a cache miss
type Factory func(ctx context.Context) ([]byte, error)

// Orchestrator is the engine's public API. Construct one per process with
// NewOrchestrator and share it by reference; Close releases its background
// timers and event subscription.
//
// Reads go local tier first, then remote (read-through with backfill).
// Writes update the local tier synchronously and then the remote tier
// synchronously but best-effort: a failed remote write is logged, never
// rolled back, and never surfaced to the caller. The tiers may therefore
// diverge transiently, with the remote tier as the source of truth on the
// next read-through.
type Orchestrator struct {
	config Config
	logger logging.Logger

	local  *LocalTier
	remote RemoteTier
	stats  *StatsCollector
	batch  *batchCoordinator
	guard  *penetrationGuard
	events *EventBus

	flight  singleflight.Group
	promReg prometheus.Registerer

	cron      *cron.Cron
	closeOnce sync.Once
}

// NewOrchestrator wires the engine. remote may be nil for a local-only cache;
// it is also ignored when EnableMultiLevel is false.
func NewOrchestrator(remote RemoteTier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config: DefaultConfig(),
		remote: remote,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.applyConfigDefaults()

	if o.logger == nil {
		o.logger = logging.GetGlobalLogger()
	}
	if !o.config.EnableMultiLevel {
		o.remote = nil
	}

	o.local = NewLocalTier(o.config.MaxLocalEntries, func(string) {
		o.stats.RecordEviction()
	})

	var prom *promMetrics
	if o.promReg != nil {
		prom = newPromMetrics(o.promReg, func() float64 {
			return float64(o.local.Len())
		})
	}
	o.stats = newStatsCollector(o.config.EnableStats, prom)
	o.guard = newPenetrationGuard(o.config.PenetrationThreshold)

	o.batch = &batchCoordinator{
		local:  o.local,
		remote: o.remote,
		stats:  o.stats,
		logger: o.logger,
		backfillTTL: func() time.Duration {
			if o.config.LocalBackfillTTL < o.config.DefaultTTL {
				return o.config.LocalBackfillTTL
			}
			return o.config.DefaultTTL
		},
		jitteredTTL: o.effectiveTTL,
	}

	if o.config.EnableEvents && o.events != nil {
		o.events.Start(o.applyEvent)
	} else {
		o.events = nil
	}

	o.startTimers()

	o.logger.Info("Cache orchestrator started",
		logging.Int("max_local_entries", o.config.MaxLocalEntries),
		logging.Bool("multi_level", o.remote != nil),
		logging.Bool("stats", o.config.EnableStats),
		logging.Bool("events", o.events != nil),
		logging.Duration("default_ttl", o.config.DefaultTTL),
		logging.Duration("snowball_jitter", o.config.SnowballJitter),
	)
	return o
}

// applyConfigDefaults fills zero fields left by a partial WithConfig
func (o *Orchestrator) applyConfigDefaults() {
	defaults := DefaultConfig()
	if o.config.DefaultTTL <= 0 {
		o.config.DefaultTTL = defaults.DefaultTTL
	}
	if o.config.MaxLocalEntries <= 0 {
		o.config.MaxLocalEntries = defaults.MaxLocalEntries
	}
	if o.config.EventChannel == "" {
		o.config.EventChannel = defaults.EventChannel
	}
	if o.config.LocalBackfillTTL <= 0 {
		o.config.LocalBackfillTTL = defaults.LocalBackfillTTL
	}
	if o.config.SweepInterval <= 0 {
		o.config.SweepInterval = defaults.SweepInterval
	}
	if o.config.StatsLogInterval <= 0 {
		o.config.StatsLogInterval = defaults.StatsLogInterval
	}
}

// startTimers schedules the expired-entry sweep and the stats summary log
func (o *Orchestrator) startTimers() {
	o.cron = cron.New()

	o.cron.Schedule(cron.Every(o.config.SweepInterval), cron.FuncJob(func() {
		if n := o.local.SweepExpired(); n > 0 {
			o.logger.Debug("Swept expired local entries", logging.Int("removed", n))
		}
	}))

	if o.config.EnableStats {
		o.cron.Schedule(cron.Every(o.config.StatsLogInterval), cron.FuncJob(func() {
			stats := o.stats.Snapshot()
			o.logger.Info("Cache stats",
				logging.Any("hits", stats.Hits),
				logging.Any("misses", stats.Misses),
				logging.Any("sets", stats.Sets),
				logging.Any("evictions", stats.Evictions),
				logging.Any("hit_rate", stats.HitRate),
				logging.Int("local_entries", o.local.Len()),
			)
		}))
	}

	o.cron.Start()
}

// Close stops background timers and the event subscription. It does not
// close the remote tier client, which the caller owns.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		if o.cron != nil {
			o.cron.Stop()
		}
		if o.events != nil {
			err = o.events.Close()
		}
		o.logger.Info("Cache orchestrator stopped")
	})
	return err
}

// Get reads key through both tiers. A remote hit backfills the local tier
// with the remaining TTL, never a fresh one, so reading a value cannot
// extend its absolute expiry. Remote failures degrade to a miss.
func (o *Orchestrator) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, apperrors.InvalidKeyError()
	}

	if value, ok := o.local.Get(key); ok {
		o.stats.RecordHit()
		o.guard.reset(key)
		return value, true, nil
	}

	if o.guard.blocked(key) {
		o.stats.RecordMiss()
		return nil, false, nil
	}

	if o.remote == nil {
		o.stats.RecordMiss()
		o.guard.miss(key)
		return nil, false, nil
	}

	value, remaining, found, err := o.remote.GetWithTTL(ctx, key)
	if err != nil {
		o.logger.Warn("Remote tier read failed, treating as miss",
			logging.String("key", key),
			logging.Err(err),
		)
		o.stats.RecordMiss()
		return nil, false, nil
	}
	if !found {
		o.stats.RecordMiss()
		o.guard.miss(key)
		return nil, false, nil
	}

	if remaining <= 0 {
		// Remote entry without expiration; cap its local residency
		remaining = o.config.DefaultTTL
	}
	o.local.Set(key, value, remaining, nil)
	o.stats.RecordHit()
	o.guard.reset(key)
	return value, true, nil
}

// GetOrSet returns the cached value for key, or computes it with factory.
// Concurrent callers for the same absent key are coalesced: factory runs at
// most once per flight and every caller receives the same value or the same
// error. A factory error is propagated to all waiters and nothing is cached.
// A waiter whose ctx is cancelled unblocks alone; the computation continues
// for the rest.
func (o *Orchestrator) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory Factory) ([]byte, error) {
	if key == "" {
		return nil, apperrors.InvalidKeyError()
	}

	if value, found, err := o.Get(ctx, key); err != nil {
		return nil, err
	} else if found {
		return value, nil
	}

	return o.runFlight(ctx, key, ttl, factory, true)
}

// Refresh recomputes key through factory even when a cached value exists,
// coalescing concurrent refreshes the same way GetOrSet coalesces misses
func (o *Orchestrator) Refresh(ctx context.Context, key string, ttl time.Duration, factory Factory) ([]byte, error) {
	if key == "" {
		return nil, apperrors.InvalidKeyError()
	}
	return o.runFlight(ctx, key, ttl, factory, false)
}

// runFlight executes factory under single-flight for key. With recheck set,
// the leader re-reads the local tier first, since a previous flight may have
// populated it between the caller's miss and this call.
func (o *Orchestrator) runFlight(ctx context.Context, key string, ttl time.Duration, factory Factory, recheck bool) ([]byte, error) {
	ch := o.flight.DoChan(key, func() (interface{}, error) {
		if recheck {
			if value, ok := o.local.Get(key); ok {
				return value, nil
			}
		}

		value, err := factory(ctx)
		if err != nil {
			return nil, apperrors.FactoryError(key, err)
		}

		if err := o.Set(ctx, key, value, ttl, nil); err != nil {
			o.logger.Warn("Failed to cache factory result",
				logging.String("key", key),
				logging.Err(err),
			)
		}
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Set stores a value in both tiers. The effective TTL is the base TTL plus a
// random jitter within the configured bound, so keys written together do not
// expire together. The local write always succeeds; the remote write happens
// synchronously before Set returns but its failure is only logged.
func (o *Orchestrator) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if key == "" {
		return apperrors.InvalidKeyError()
	}
	if ttl <= 0 {
		ttl = o.config.DefaultTTL
	}
	effective := o.effectiveTTL(ttl)

	o.local.Set(key, value, effective, tags)
	o.guard.reset(key)
	o.stats.RecordSet()

	if o.remote != nil {
		if err := o.remote.Set(ctx, key, value, effective); err != nil {
			o.logger.Warn("Remote tier write failed, value cached locally only",
				logging.String("key", key),
				logging.Err(err),
			)
		}
	}
	return nil
}

// MGet resolves many keys with at most one remote round trip. Keys absent
// from both tiers are omitted from the result.
func (o *Orchestrator) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	for _, key := range keys {
		if key == "" {
			return nil, apperrors.InvalidKeyError()
		}
	}
	return o.batch.mget(ctx, keys)
}

// MSet stores many entries, flushing the whole batch to the remote tier in
// one pipelined round trip. Each entry receives its own jittered TTL.
func (o *Orchestrator) MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	for key := range entries {
		if key == "" {
			return apperrors.InvalidKeyError()
		}
	}
	if ttl <= 0 {
		ttl = o.config.DefaultTTL
	}
	return o.batch.mset(ctx, entries, ttl)
}

// Delete removes keys from both tiers and returns how many were removed.
// The remote delete is best-effort.
func (o *Orchestrator) Delete(ctx context.Context, keys ...string) (int, error) {
	for _, key := range keys {
		if key == "" {
			return 0, apperrors.InvalidKeyError()
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	localCount := 0
	for _, key := range keys {
		if o.local.Delete(key) {
			localCount++
		}
	}

	count := localCount
	if o.remote != nil {
		remoteCount, err := o.remote.Delete(ctx, keys...)
		if err != nil {
			o.logger.Warn("Remote tier delete failed",
				logging.Int("keys", len(keys)),
				logging.Err(err),
			)
		} else if remoteCount > count {
			// The remote tier may hold keys already evicted locally
			count = remoteCount
		}
	}

	o.stats.RecordDelete(count)
	if o.events != nil {
		o.events.PublishKeys(ctx, keys)
	}
	return count, nil
}

// DeleteByTag removes every local-tier key carrying tag and returns the
// count. The remote tier keeps no tag index, so matching remote entries
// survive until they expire; with events enabled, sibling instances at least
// drop their own local copies.
func (o *Orchestrator) DeleteByTag(ctx context.Context, tag string) (int, error) {
	if tag == "" {
		return 0, apperrors.ValidationError("tag must not be empty")
	}

	count := o.local.DeleteByTag(tag)
	o.stats.RecordDelete(count)
	if o.events != nil {
		o.events.PublishTag(ctx, tag)
	}
	return count, nil
}

// DeletePattern removes every key matching the glob pattern from both tiers.
// It scans the remote keyspace (expensive, never call on the hot path) and
// additionally purges local keys containing the pattern's literal part.
func (o *Orchestrator) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, apperrors.ValidationError("pattern must not be empty")
	}

	deleted := make(map[string]struct{})

	if o.remote != nil {
		keys, err := o.remote.Keys(ctx, pattern)
		if err != nil {
			o.logger.Warn("Remote tier key scan failed",
				logging.String("pattern", pattern),
				logging.Err(err),
			)
		} else if len(keys) > 0 {
			if _, err := o.remote.Delete(ctx, keys...); err != nil {
				o.logger.Warn("Remote tier pattern delete failed",
					logging.String("pattern", pattern),
					logging.Err(err),
				)
			}
			for _, key := range keys {
				o.local.Delete(key)
				deleted[key] = struct{}{}
			}
		}
	}

	for _, key := range o.local.KeysContaining(patternLiteral(pattern)) {
		if o.local.Delete(key) {
			deleted[key] = struct{}{}
		}
	}

	count := len(deleted)
	o.stats.RecordDelete(count)
	if o.events != nil {
		o.events.PublishPattern(ctx, pattern)
	}
	return count, nil
}

// Exists reports whether key is present in either tier without recording a
// hit or miss. Remote failures degrade to not-present.
func (o *Orchestrator) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, apperrors.InvalidKeyError()
	}

	if o.local.Contains(key) {
		return true, nil
	}
	if o.remote == nil {
		return false, nil
	}

	found, err := o.remote.Exists(ctx, key)
	if err != nil {
		o.logger.Warn("Remote tier exists check failed",
			logging.String("key", key),
			logging.Err(err),
		)
		return false, nil
	}
	return found, nil
}

// Clear empties the local tier and deletes every remote key under this
// engine's namespace
func (o *Orchestrator) Clear(ctx context.Context) error {
	o.local.Clear()

	if o.remote != nil {
		keys, err := o.remote.Keys(ctx, "*")
		if err != nil {
			o.logger.Warn("Remote tier key scan failed during clear", logging.Err(err))
		} else if len(keys) > 0 {
			if _, err := o.remote.Delete(ctx, keys...); err != nil {
				o.logger.Warn("Remote tier clear failed", logging.Err(err))
			}
		}
	}

	if o.events != nil {
		o.events.PublishClear(ctx)
	}
	return nil
}

// GetStats returns a snapshot of the engine's counters
func (o *Orchestrator) GetStats() Stats {
	return o.stats.Snapshot()
}

// ResetStats zeroes the engine's counters
func (o *Orchestrator) ResetStats() {
	o.stats.Reset()
}

// LocalLen returns the number of entries resident in the local tier
func (o *Orchestrator) LocalLen() int {
	return o.local.Len()
}

// applyEvent applies an invalidation published by a sibling instance to the
// local tier only; the sibling already handled the remote tier
func (o *Orchestrator) applyEvent(ev invalidationEvent) {
	switch ev.Kind {
	case eventKindKeys:
		for _, key := range ev.Keys {
			o.local.Delete(key)
		}
	case eventKindTag:
		o.local.DeleteByTag(ev.Tag)
	case eventKindPattern:
		for _, key := range o.local.KeysContaining(patternLiteral(ev.Pattern)) {
			o.local.Delete(key)
		}
	case eventKindClear:
		o.local.Clear()
	default:
		o.logger.Debug("Ignoring unknown invalidation event kind",
			logging.String("kind", ev.Kind),
		)
	}
}

// effectiveTTL adds bounded random jitter to a base TTL. The result lies in
// [base, base+SnowballJitter].
func (o *Orchestrator) effectiveTTL(base time.Duration) time.Duration {
	jitter := o.config.SnowballJitter
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(jitter)+1))
}

// patternLiteral strips glob wildcards, leaving the substring used for the
// best-effort local sweep
func patternLiteral(pattern string) string {
	literal := make([]byte, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '*' && pattern[i] != '?' {
			literal = append(literal, pattern[i])
		}
	}
	return string(literal)
}
