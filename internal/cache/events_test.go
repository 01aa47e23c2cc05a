package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-engine/internal/redis"
)

// newEventPair builds two engines sharing one Redis instance and one
// invalidation channel, as two process instances of the same service would
func newEventPair(t *testing.T) (*Orchestrator, *Orchestrator) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	const channel = "cache:invalidations"
	newEngine := func() *Orchestrator {
		engine := NewOrchestrator(client,
			WithSnowballJitter(0),
			WithEvents(true),
			WithEventBus(NewEventBus(client, channel, nil)),
		)
		t.Cleanup(func() { engine.Close() })
		return engine
	}
	a, b := newEngine(), newEngine()
	// Give both subscriptions time to establish before events fly
	time.Sleep(50 * time.Millisecond)
	return a, b
}

func TestEventBus_KeyInvalidation(t *testing.T) {
	ctx := context.Background()
	a, b := newEventPair(t)

	require.NoError(t, a.Set(ctx, "k", []byte("v"), time.Minute, nil))
	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute, nil))

	_, err := a.Delete(ctx, "k")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return !b.local.Contains("k")
	}, 2*time.Second, 10*time.Millisecond, "sibling instance should drop its local copy")
}

func TestEventBus_TagInvalidation(t *testing.T) {
	ctx := context.Background()
	a, b := newEventPair(t)

	require.NoError(t, b.Set(ctx, "k1", []byte("v"), time.Minute, []string{"group"}))
	require.NoError(t, b.Set(ctx, "k2", []byte("v"), time.Minute, []string{"group"}))
	require.NoError(t, b.Set(ctx, "other", []byte("v"), time.Minute, nil))

	_, err := a.DeleteByTag(ctx, "group")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return !b.local.Contains("k1") && !b.local.Contains("k2")
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, b.local.Contains("other"))
}

func TestEventBus_Clear(t *testing.T) {
	ctx := context.Background()
	a, b := newEventPair(t)

	require.NoError(t, b.Set(ctx, "k1", []byte("v"), time.Minute, nil))
	require.NoError(t, b.Set(ctx, "k2", []byte("v"), time.Minute, nil))

	require.NoError(t, a.Clear(ctx))

	assert.Eventually(t, func() bool {
		return b.LocalLen() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventBus_SkipsOwnEvents(t *testing.T) {
	ctx := context.Background()
	a, b := newEventPair(t)

	require.NoError(t, a.Set(ctx, "mine", []byte("v"), time.Minute, nil))
	require.NoError(t, b.Set(ctx, "theirs", []byte("v"), time.Minute, nil))

	// Publish directly so the publisher's own local tier is untouched
	a.events.PublishKeys(ctx, []string{"mine", "theirs"})

	assert.Eventually(t, func() bool {
		return !b.local.Contains("theirs")
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, a.local.Contains("mine"), "publisher must ignore its own event")
}
