package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-engine/internal/testutil"
)

func TestOrchestrator_MGet(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed hits cost one remote round trip", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		engine := newTestEngine(t, mock)

		require.NoError(t, engine.Set(ctx, "local:1", []byte("a"), time.Minute, nil))
		require.NoError(t, engine.Set(ctx, "local:2", []byte("b"), time.Minute, nil))
		mock.Seed("remote:1", []byte("c"), time.Minute)
		mock.Seed("remote:2", []byte("d"), time.Minute)

		result, err := engine.MGet(ctx, []string{"local:1", "remote:1", "local:2", "remote:2", "absent"})
		require.NoError(t, err)

		assert.Equal(t, map[string][]byte{
			"local:1":  []byte("a"),
			"local:2":  []byte("b"),
			"remote:1": []byte("c"),
			"remote:2": []byte("d"),
		}, result)
		assert.Equal(t, 1, mock.CallCount("MGet"))
	})

	t.Run("all keys local skips the remote tier", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		engine := newTestEngine(t, mock)

		require.NoError(t, engine.Set(ctx, "a", []byte("1"), time.Minute, nil))
		require.NoError(t, engine.Set(ctx, "b", []byte("2"), time.Minute, nil))

		result, err := engine.MGet(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Len(t, result, 2)
		assert.Equal(t, 0, mock.CallCount("MGet"))
	})

	t.Run("remote hits are backfilled locally", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		engine := newTestEngine(t, mock)
		mock.Seed("k", []byte("v"), time.Minute)

		_, err := engine.MGet(ctx, []string{"k"})
		require.NoError(t, err)

		// Second batch is served entirely from the local tier
		result, err := engine.MGet(ctx, []string{"k"})
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), result["k"])
		assert.Equal(t, 1, mock.CallCount("MGet"))
	})

	t.Run("backfill TTL is capped", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		engine := newTestEngine(t, mock, WithDefaultTTL(time.Minute))
		mock.Seed("k", []byte("v"), time.Hour)

		_, err := engine.MGet(ctx, []string{"k"})
		require.NoError(t, err)

		info, ok := engine.local.Info("k")
		require.True(t, ok)
		assert.LessOrEqual(t, info.ExpireAt.Sub(info.CreatedAt), time.Minute)
	})

	t.Run("remote failure degrades to local hits", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		engine := newTestEngine(t, mock)
		require.NoError(t, engine.Set(ctx, "local", []byte("a"), time.Minute, nil))
		mock.Seed("remote", []byte("b"), time.Minute)
		mock.ErrorOnMethod["MGet"] = errors.New("connection refused")

		result, err := engine.MGet(ctx, []string{"local", "remote"})
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"local": []byte("a")}, result)
	})

	t.Run("hit and miss counters cover the whole batch", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		engine := newTestEngine(t, mock)
		require.NoError(t, engine.Set(ctx, "local", []byte("a"), time.Minute, nil))
		mock.Seed("remote", []byte("b"), time.Minute)
		engine.ResetStats()

		_, err := engine.MGet(ctx, []string{"local", "remote", "absent"})
		require.NoError(t, err)

		stats := engine.GetStats()
		assert.Equal(t, uint64(2), stats.Hits)
		assert.Equal(t, uint64(1), stats.Misses)
	})

	t.Run("empty key in the batch is rejected", func(t *testing.T) {
		engine := newTestEngine(t, nil)
		_, err := engine.MGet(ctx, []string{"ok", ""})
		assert.Error(t, err)
	})

	t.Run("local-only engine", func(t *testing.T) {
		engine := newTestEngine(t, nil)
		require.NoError(t, engine.Set(ctx, "a", []byte("1"), time.Minute, nil))

		result, err := engine.MGet(ctx, []string{"a", "absent"})
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"a": []byte("1")}, result)
	})
}

func TestOrchestrator_MSet(t *testing.T) {
	ctx := context.Background()

	t.Run("whole batch flushed in one round trip", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		engine := newTestEngine(t, mock)

		entries := map[string][]byte{}
		for i := 0; i < 20; i++ {
			entries[fmt.Sprintf("k%d", i)] = []byte("v")
		}
		require.NoError(t, engine.MSet(ctx, entries, time.Minute))

		assert.Equal(t, 1, mock.CallCount("MSet"))
		assert.Equal(t, 0, mock.CallCount("Set"))
		assert.Equal(t, 20, engine.LocalLen())
		assert.Equal(t, 20, mock.Len())
	})

	t.Run("entries get individual jittered TTLs", func(t *testing.T) {
		base := time.Minute
		jitter := 10 * time.Second
		engine := newTestEngine(t, nil, WithSnowballJitter(jitter))

		entries := map[string][]byte{}
		for i := 0; i < 50; i++ {
			entries[fmt.Sprintf("k%d", i)] = []byte("v")
		}
		require.NoError(t, engine.MSet(ctx, entries, base))

		for key := range entries {
			info, ok := engine.local.Info(key)
			require.True(t, ok)
			ttl := info.ExpireAt.Sub(info.CreatedAt)
			assert.GreaterOrEqual(t, ttl, base)
			assert.LessOrEqual(t, ttl, base+jitter)
		}
	})

	t.Run("remote failure leaves local writes standing", func(t *testing.T) {
		mock := testutil.NewMockRemoteTier()
		mock.ErrorOnMethod["MSet"] = errors.New("connection refused")
		engine := newTestEngine(t, mock)

		require.NoError(t, engine.MSet(ctx, map[string][]byte{"a": []byte("1")}, time.Minute))

		value, found, err := engine.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("1"), value)
	})

	t.Run("set counter covers every entry", func(t *testing.T) {
		engine := newTestEngine(t, nil)

		require.NoError(t, engine.MSet(ctx, map[string][]byte{
			"a": []byte("1"),
			"b": []byte("2"),
			"c": []byte("3"),
		}, time.Minute))

		assert.Equal(t, uint64(3), engine.GetStats().Sets)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		engine := newTestEngine(t, nil)
		err := engine.MSet(ctx, map[string][]byte{"": []byte("v")}, time.Minute)
		assert.Error(t, err)
	})
}
