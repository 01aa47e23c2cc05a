package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTier_GetSet(t *testing.T) {
	tier := NewLocalTier(10, nil)

	t.Run("missing key", func(t *testing.T) {
		value, found := tier.Get("absent")
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("set then get", func(t *testing.T) {
		tier.Set("k1", []byte("v1"), time.Minute, nil)

		value, found := tier.Get("k1")
		require.True(t, found)
		assert.Equal(t, []byte("v1"), value)
	})

	t.Run("access metadata updates on hit", func(t *testing.T) {
		tier.Set("k2", []byte("v2"), time.Minute, nil)

		before, ok := tier.Info("k2")
		require.True(t, ok)
		assert.Equal(t, int64(0), before.AccessCount)

		tier.Get("k2")
		tier.Get("k2")

		after, ok := tier.Info("k2")
		require.True(t, ok)
		assert.Equal(t, int64(2), after.AccessCount)
		assert.False(t, after.LastAccessAt.Before(before.LastAccessAt))
	})

	t.Run("expired entry is removed on access", func(t *testing.T) {
		evicted := 0
		tier := NewLocalTier(10, func(string) { evicted++ })
		tier.Set("gone", []byte("v"), -time.Second, nil)

		value, found := tier.Get("gone")
		assert.False(t, found)
		assert.Nil(t, value)
		assert.Equal(t, 1, evicted)
		assert.Equal(t, 0, tier.Len())
	})

	t.Run("overwrite increments version", func(t *testing.T) {
		tier.Set("versioned", []byte("a"), time.Minute, nil)
		tier.Set("versioned", []byte("b"), time.Minute, nil)
		tier.Set("versioned", []byte("c"), time.Minute, nil)

		info, ok := tier.Info("versioned")
		require.True(t, ok)
		assert.Equal(t, int64(3), info.Version)

		value, found := tier.Get("versioned")
		require.True(t, found)
		assert.Equal(t, []byte("c"), value)
	})

	t.Run("expiry is not before creation", func(t *testing.T) {
		tier.Set("ttl", []byte("v"), time.Hour, nil)
		info, ok := tier.Info("ttl")
		require.True(t, ok)
		assert.True(t, info.ExpireAt.After(info.CreatedAt))
	})
}

func TestLocalTier_LRUEviction(t *testing.T) {
	t.Run("evicts least recently used at capacity", func(t *testing.T) {
		var evicted []string
		tier := NewLocalTier(3, func(key string) { evicted = append(evicted, key) })

		tier.Set("a", []byte("1"), time.Minute, nil)
		tier.Set("b", []byte("2"), time.Minute, nil)
		tier.Set("c", []byte("3"), time.Minute, nil)

		// Touch a and b so c becomes the coldest
		tier.Get("a")
		tier.Get("b")

		tier.Set("d", []byte("4"), time.Minute, nil)

		assert.Equal(t, []string{"c"}, evicted)
		assert.Equal(t, 3, tier.Len())
		_, found := tier.Get("c")
		assert.False(t, found)
	})

	t.Run("overwrite does not evict", func(t *testing.T) {
		var evicted []string
		tier := NewLocalTier(2, func(key string) { evicted = append(evicted, key) })

		tier.Set("a", []byte("1"), time.Minute, nil)
		tier.Set("b", []byte("2"), time.Minute, nil)
		tier.Set("a", []byte("1b"), time.Minute, nil)

		assert.Empty(t, evicted)
		assert.Equal(t, 2, tier.Len())
	})

	t.Run("size never exceeds capacity", func(t *testing.T) {
		tier := NewLocalTier(5, nil)
		for i := 0; i < 50; i++ {
			tier.Set(fmt.Sprintf("k%d", i), []byte("v"), time.Minute, nil)
			assert.LessOrEqual(t, tier.Len(), 5)
		}
	})

	t.Run("eviction order follows access recency", func(t *testing.T) {
		var evicted []string
		tier := NewLocalTier(3, func(key string) { evicted = append(evicted, key) })

		tier.Set("a", []byte("1"), time.Minute, nil)
		tier.Set("b", []byte("2"), time.Minute, nil)
		tier.Set("c", []byte("3"), time.Minute, nil)
		tier.Get("a") // order cold->hot: b, c, a

		tier.Set("d", []byte("4"), time.Minute, nil) // evicts b
		tier.Set("e", []byte("5"), time.Minute, nil) // evicts c

		assert.Equal(t, []string{"b", "c"}, evicted)
	})
}

func TestLocalTier_Tags(t *testing.T) {
	t.Run("delete by tag removes all tagged keys", func(t *testing.T) {
		tier := NewLocalTier(10, nil)
		tier.Set("k1", []byte("v1"), time.Minute, []string{"t"})
		tier.Set("k2", []byte("v2"), time.Minute, []string{"t"})
		tier.Set("k3", []byte("v3"), time.Minute, []string{"other"})

		count := tier.DeleteByTag("t")
		assert.Equal(t, 2, count)

		_, found := tier.Get("k1")
		assert.False(t, found)
		_, found = tier.Get("k2")
		assert.False(t, found)
		_, found = tier.Get("k3")
		assert.True(t, found)
	})

	t.Run("unknown tag", func(t *testing.T) {
		tier := NewLocalTier(10, nil)
		assert.Equal(t, 0, tier.DeleteByTag("nope"))
	})

	t.Run("overwrite replaces tag memberships", func(t *testing.T) {
		tier := NewLocalTier(10, nil)
		tier.Set("k", []byte("v"), time.Minute, []string{"old"})
		tier.Set("k", []byte("v"), time.Minute, []string{"new"})

		assert.Equal(t, 0, tier.DeleteByTag("old"))
		assert.Equal(t, 1, tier.DeleteByTag("new"))
	})

	t.Run("delete removes tag memberships", func(t *testing.T) {
		tier := NewLocalTier(10, nil)
		tier.Set("k", []byte("v"), time.Minute, []string{"t"})

		assert.True(t, tier.Delete("k"))
		assert.Equal(t, 0, tier.DeleteByTag("t"))
	})

	t.Run("eviction removes tag memberships", func(t *testing.T) {
		tier := NewLocalTier(1, nil)
		tier.Set("k1", []byte("v"), time.Minute, []string{"t"})
		tier.Set("k2", []byte("v"), time.Minute, []string{"t"})

		assert.Equal(t, 1, tier.DeleteByTag("t"))
	})
}

func TestLocalTier_SweepExpired(t *testing.T) {
	evicted := 0
	tier := NewLocalTier(10, func(string) { evicted++ })

	tier.Set("live", []byte("v"), time.Hour, nil)
	tier.Set("dead1", []byte("v"), -time.Second, nil)
	tier.Set("dead2", []byte("v"), -time.Second, []string{"t"})

	removed := tier.SweepExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, tier.Len())

	// Swept entries vacated the tag index too
	assert.Equal(t, 0, tier.DeleteByTag("t"))
}

func TestLocalTier_Helpers(t *testing.T) {
	tier := NewLocalTier(10, nil)
	tier.Set("user:1", []byte("a"), time.Minute, nil)
	tier.Set("user:2", []byte("b"), time.Minute, nil)
	tier.Set("order:1", []byte("c"), time.Minute, nil)
	tier.Set("stale", []byte("d"), -time.Second, nil)

	t.Run("contains ignores expired entries", func(t *testing.T) {
		assert.True(t, tier.Contains("user:1"))
		assert.False(t, tier.Contains("stale"))
		assert.False(t, tier.Contains("absent"))
	})

	t.Run("contains does not touch recency", func(t *testing.T) {
		before, _ := tier.Info("user:1")
		tier.Contains("user:1")
		after, _ := tier.Info("user:1")
		assert.Equal(t, before.AccessCount, after.AccessCount)
	})

	t.Run("keys containing substring", func(t *testing.T) {
		keys := tier.KeysContaining("user:")
		assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)
	})

	t.Run("clear empties everything", func(t *testing.T) {
		n := tier.Clear()
		assert.Equal(t, 4, n)
		assert.Equal(t, 0, tier.Len())
	})
}
