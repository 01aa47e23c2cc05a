package cache

import (
	"sync"
	"time"
)

// negativeTTL is how long a penetration sentinel shields a missing key
const negativeTTL = 5 * time.Second

// penetrationGuard tracks consecutive misses per key. Once a key misses
// threshold times in a row, lookups for it are answered negatively for a
// short window without touching the remote tier, so a hammered absent key
// cannot punch through to the backing data source.
type penetrationGuard struct {
	mu           sync.Mutex
	threshold    int
	misses       map[string]int
	blockedUntil map[string]time.Time
}

// newPenetrationGuard returns a guard; threshold <= 0 disables it
func newPenetrationGuard(threshold int) *penetrationGuard {
	return &penetrationGuard{
		threshold:    threshold,
		misses:       make(map[string]int),
		blockedUntil: make(map[string]time.Time),
	}
}

// miss records a consecutive miss and starts a negative window when the
// threshold is crossed
func (g *penetrationGuard) miss(key string) {
	if g.threshold <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	// Bound memory under a scan of distinct absent keys
	if len(g.misses) > 100_000 {
		g.misses = make(map[string]int)
	}

	g.misses[key]++
	if g.misses[key] >= g.threshold {
		g.blockedUntil[key] = time.Now().Add(negativeTTL)
		delete(g.misses, key)
	}
}

// reset clears the key's miss streak and any active negative window,
// called on every hit or successful write
func (g *penetrationGuard) reset(key string) {
	if g.threshold <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.misses, key)
	delete(g.blockedUntil, key)
}

// blocked reports whether the key is inside a negative window
func (g *penetrationGuard) blocked(key string) bool {
	if g.threshold <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.blockedUntil[key]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(g.blockedUntil, key)
		return false
	}
	return true
}
