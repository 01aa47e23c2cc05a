package cache

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of orchestrator counters. HitRate is
// derived on read, never stored.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Deletes   uint64  `json:"deletes"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// StatsCollector counts cache operations. All methods are safe for
// concurrent use; counters only grow except through Reset. When the
// collector is disabled every recording method is a no-op.
type StatsCollector struct {
	enabled bool
	prom    *promMetrics

	hits      atomic.Uint64
	misses    atomic.Uint64
	sets      atomic.Uint64
	deletes   atomic.Uint64
	evictions atomic.Uint64
}

// newStatsCollector creates a collector. prom may be nil when Prometheus
// export is not wanted.
func newStatsCollector(enabled bool, prom *promMetrics) *StatsCollector {
	return &StatsCollector{enabled: enabled, prom: prom}
}

// RecordHit counts a cache hit
func (s *StatsCollector) RecordHit() {
	if !s.enabled {
		return
	}
	s.hits.Add(1)
	if s.prom != nil {
		s.prom.hits.Inc()
	}
}

// RecordMiss counts a cache miss
func (s *StatsCollector) RecordMiss() {
	if !s.enabled {
		return
	}
	s.misses.Add(1)
	if s.prom != nil {
		s.prom.misses.Inc()
	}
}

// RecordSet counts a write
func (s *StatsCollector) RecordSet() {
	if !s.enabled {
		return
	}
	s.sets.Add(1)
	if s.prom != nil {
		s.prom.sets.Inc()
	}
}

// RecordDelete counts n deletions
func (s *StatsCollector) RecordDelete(n int) {
	if !s.enabled || n <= 0 {
		return
	}
	s.deletes.Add(uint64(n))
	if s.prom != nil {
		s.prom.deletes.Add(float64(n))
	}
}

// RecordEviction counts a local-tier eviction (capacity or expiry)
func (s *StatsCollector) RecordEviction() {
	if !s.enabled {
		return
	}
	s.evictions.Add(1)
	if s.prom != nil {
		s.prom.evictions.Inc()
	}
}

// Snapshot returns the current counters with the derived hit rate.
// The rate is 0 when no request has been observed.
func (s *StatsCollector) Snapshot() Stats {
	stats := Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Evictions: s.evictions.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Reset zeroes all counters. Prometheus counters are monotonic and are
// left untouched.
func (s *StatsCollector) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.evictions.Store(0)
}
