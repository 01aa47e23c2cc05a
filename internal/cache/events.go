package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	goredis "github.com/go-redis/redis/v8"

	"cache-engine/internal/common/logging"
)

// Invalidation event kinds carried on the pub/sub channel
const (
	eventKindKeys    = "keys"
	eventKindTag     = "tag"
	eventKindPattern = "pattern"
	eventKindClear   = "clear"
)

// invalidationEvent tells other process instances to drop local-tier state.
// Origin identifies the publishing instance so it can skip its own events.
type invalidationEvent struct {
	Origin  string   `json:"origin"`
	Kind    string   `json:"kind"`
	Keys    []string `json:"keys,omitempty"`
	Tag     string   `json:"tag,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// eventTransport is the pub/sub surface the bus needs. The production
// implementation is internal/redis.Client.
type eventTransport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// EventBus publishes local-tier invalidations to sibling instances and
// applies theirs. Delivery is best-effort and fire-and-forget: a lost event
// widens the cross-instance staleness window but never breaks correctness,
// since the remote tier stays authoritative.
type EventBus struct {
	transport eventTransport
	channel   string
	origin    string
	logger    logging.Logger

	pubsub *goredis.PubSub
	done   chan struct{}
}

// NewEventBus creates a bus publishing on the given channel
func NewEventBus(transport eventTransport, channel string, logger logging.Logger) *EventBus {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &EventBus{
		transport: transport,
		channel:   channel,
		origin:    newOriginID(),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start subscribes to the channel and applies foreign events until Close
func (b *EventBus) Start(apply func(invalidationEvent)) {
	b.pubsub = b.transport.Subscribe(context.Background(), b.channel)
	ch := b.pubsub.Channel()

	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev invalidationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("Dropping malformed invalidation event",
						logging.String("channel", b.channel),
						logging.Err(err),
					)
					continue
				}
				if ev.Origin == b.origin {
					continue
				}
				apply(ev)
			case <-b.done:
				return
			}
		}
	}()
}

// Close tears down the subscription and stops the apply loop
func (b *EventBus) Close() error {
	close(b.done)
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

// PublishKeys broadcasts a per-key invalidation
func (b *EventBus) PublishKeys(ctx context.Context, keys []string) {
	b.publish(ctx, invalidationEvent{Kind: eventKindKeys, Keys: keys})
}

// PublishTag broadcasts a tag invalidation
func (b *EventBus) PublishTag(ctx context.Context, tag string) {
	b.publish(ctx, invalidationEvent{Kind: eventKindTag, Tag: tag})
}

// PublishPattern broadcasts a pattern invalidation
func (b *EventBus) PublishPattern(ctx context.Context, pattern string) {
	b.publish(ctx, invalidationEvent{Kind: eventKindPattern, Pattern: pattern})
}

// PublishClear broadcasts a full clear
func (b *EventBus) PublishClear(ctx context.Context) {
	b.publish(ctx, invalidationEvent{Kind: eventKindClear})
}

func (b *EventBus) publish(ctx context.Context, ev invalidationEvent) {
	ev.Origin = b.origin
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to marshal invalidation event", err,
			logging.String("kind", ev.Kind),
		)
		return
	}
	if err := b.transport.Publish(ctx, b.channel, payload); err != nil {
		b.logger.Warn("Failed to publish invalidation event",
			logging.String("kind", ev.Kind),
			logging.Err(err),
		)
	}
}

// newOriginID returns a random hex instance identifier
func newOriginID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
