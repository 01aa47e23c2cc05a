package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics exports orchestrator counters to Prometheus. All metric types
// used here are goroutine-safe.
type promMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.GaugeFunc
}

// newPromMetrics builds and registers the engine's Prometheus metrics.
// reg may be nil, in which case the default registerer is used.
func newPromMetrics(reg prometheus.Registerer, localEntries func() float64) *promMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &promMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cache",
			Name:      "hits_total",
			Help:      "Cache hits across both tiers",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cache",
			Name:      "misses_total",
			Help:      "Cache misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cache",
			Name:      "sets_total",
			Help:      "Cache writes",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cache",
			Name:      "deletes_total",
			Help:      "Cache deletions",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cache",
			Name:      "evictions_total",
			Help:      "Local tier evictions (capacity and expiry)",
		}),
		entries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cache",
			Name:      "local_entries",
			Help:      "Entries resident in the local tier",
		}, localEntries),
	}

	reg.MustRegister(m.hits, m.misses, m.sets, m.deletes, m.evictions, m.entries)
	return m
}
