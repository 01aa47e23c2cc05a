package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cache-engine/internal/common/logging"
)

// Config holds orchestrator settings. Zero values are replaced with the
// defaults from DefaultConfig in NewOrchestrator.
type Config struct {
	// DefaultTTL applies when an operation passes a zero TTL.
	DefaultTTL time.Duration

	// MaxLocalEntries bounds the local tier.
	MaxLocalEntries int

	// EnableMultiLevel controls the remote tier. When false (or when no
	// remote tier is supplied) the engine runs local-only.
	EnableMultiLevel bool

	// EnableStats controls hit/miss/set/delete/eviction counting.
	EnableStats bool

	// EnableEvents publishes invalidations on the event channel and applies
	// invalidations published by other instances to the local tier.
	EnableEvents bool

	// EventChannel is the pub/sub channel carrying invalidation events.
	EventChannel string

	// SnowballJitter bounds the random addition to every effective TTL,
	// desynchronizing expirations of keys written together.
	SnowballJitter time.Duration

	// PenetrationThreshold is the number of consecutive misses for one key
	// after which a short negative sentinel shields the backing store.
	// Zero disables penetration protection.
	PenetrationThreshold int

	// LocalBackfillTTL caps the local TTL of entries backfilled by MGet,
	// where the remote tier does not report remaining TTLs.
	LocalBackfillTTL time.Duration

	// SweepInterval is the period of the expired-entry sweep.
	SweepInterval time.Duration

	// StatsLogInterval is the period of the stats summary log line.
	StatsLogInterval time.Duration
}

// DefaultConfig returns the defaults used for unset Config fields
func DefaultConfig() Config {
	return Config{
		DefaultTTL:       5 * time.Minute,
		MaxLocalEntries:  1000,
		EnableMultiLevel: true,
		EnableStats:      true,
		EventChannel:     "cache:invalidations",
		SnowballJitter:   30 * time.Second,
		LocalBackfillTTL: 5 * time.Minute,
		SweepInterval:    time.Minute,
		StatsLogInterval: 5 * time.Minute,
	}
}

// Option mutates orchestrator construction state
type Option func(*Orchestrator)

// WithConfig replaces the whole configuration
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// WithDefaultTTL sets the TTL used when callers pass zero
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.config.DefaultTTL = ttl }
}

// WithMaxLocalEntries bounds the local tier
func WithMaxLocalEntries(n int) Option {
	return func(o *Orchestrator) { o.config.MaxLocalEntries = n }
}

// WithStats enables or disables statistics collection
func WithStats(enabled bool) Option {
	return func(o *Orchestrator) { o.config.EnableStats = enabled }
}

// WithEvents enables cross-instance invalidation events
func WithEvents(enabled bool) Option {
	return func(o *Orchestrator) { o.config.EnableEvents = enabled }
}

// WithSnowballJitter bounds the TTL jitter
func WithSnowballJitter(bound time.Duration) Option {
	return func(o *Orchestrator) { o.config.SnowballJitter = bound }
}

// WithPenetrationThreshold sets the consecutive-miss bound for negative caching
func WithPenetrationThreshold(n int) Option {
	return func(o *Orchestrator) { o.config.PenetrationThreshold = n }
}

// WithSweepInterval sets the expired-entry sweep period
func WithSweepInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.config.SweepInterval = d }
}

// WithLogger sets the orchestrator's logger
func WithLogger(logger logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithPrometheus registers the engine's metrics with reg
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) { o.promReg = reg }
}

// WithEventBus attaches a pub/sub transport for invalidation events
func WithEventBus(bus *EventBus) Option {
	return func(o *Orchestrator) { o.events = bus }
}
