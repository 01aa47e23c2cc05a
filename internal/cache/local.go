package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// entry is a resident local-tier value with its bookkeeping metadata
type entry struct {
	key          string
	value        []byte
	createdAt    time.Time
	expireAt     time.Time
	accessCount  int64
	lastAccessAt time.Time
	tags         []string
	version      int64
	element      *list.Element
}

// live reports whether the entry has not yet expired
func (e *entry) live(now time.Time) bool {
	return now.Before(e.expireAt)
}

// EntryInfo is a read-only snapshot of a resident entry's metadata
type EntryInfo struct {
	CreatedAt    time.Time
	ExpireAt     time.Time
	AccessCount  int64
	LastAccessAt time.Time
	Tags         []string
	Version      int64
}

// LocalTier is a bounded in-process cache with LRU eviction, per-entry
// expiration and a tag index for group invalidation. It performs no I/O;
// a single mutex covers the map, the recency list and the tag index.
type LocalTier struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*entry
	evictList  *list.List // front = most recently used
	tagIndex   map[string]map[string]struct{}

	// onEvict is invoked (under the lock, keep it light) whenever an entry
	// leaves the tier without an explicit delete: capacity eviction or expiry.
	onEvict func(key string)
}

// NewLocalTier creates a local tier bounded to maxEntries
func NewLocalTier(maxEntries int, onEvict func(key string)) *LocalTier {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if onEvict == nil {
		onEvict = func(string) {}
	}
	return &LocalTier{
		maxEntries: maxEntries,
		items:      make(map[string]*entry),
		evictList:  list.New(),
		tagIndex:   make(map[string]map[string]struct{}),
		onEvict:    onEvict,
	}
}

// Get returns the value for key if present and not expired. An expired entry
// is removed on access and counted as an eviction. On a hit the entry's
// access metadata is updated and it is promoted to most recently used.
func (l *LocalTier) Get(key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[key]
	if !ok {
		return nil, false
	}

	now := time.Now()
	if !e.live(now) {
		l.removeEntry(e)
		l.onEvict(key)
		return nil, false
	}

	e.accessCount++
	e.lastAccessAt = now
	l.evictList.MoveToFront(e.element)
	return e.value, true
}

// Set stores a value with the given TTL and tags, overwriting any existing
// entry for the key (its old tag memberships are dropped). When the tier is
// at capacity and the key is new, the least recently used entry is evicted.
func (l *LocalTier) Set(key string, value []byte, ttl time.Duration, tags []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if old, ok := l.items[key]; ok {
		l.dropTags(old)
		old.value = value
		old.createdAt = now
		old.expireAt = now.Add(ttl)
		old.lastAccessAt = now
		old.tags = tags
		old.version++
		l.evictList.MoveToFront(old.element)
		l.addTags(old)
		return
	}

	if len(l.items) >= l.maxEntries {
		l.evictOldest()
	}

	e := &entry{
		key:          key,
		value:        value,
		createdAt:    now,
		expireAt:     now.Add(ttl),
		accessCount:  0,
		lastAccessAt: now,
		tags:         tags,
		version:      1,
	}
	e.element = l.evictList.PushFront(e)
	l.items[key] = e
	l.addTags(e)
}

// Delete removes an entry and its tag memberships; reports whether it existed
func (l *LocalTier) Delete(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[key]
	if !ok {
		return false
	}
	l.removeEntry(e)
	return true
}

// DeleteByTag removes every key mapped to tag and returns how many were removed
func (l *LocalTier) DeleteByTag(tag string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys, ok := l.tagIndex[tag]
	if !ok {
		return 0
	}

	count := 0
	for key := range keys {
		if e, ok := l.items[key]; ok {
			l.removeEntry(e)
			count++
		}
	}
	return count
}

// SweepExpired removes every expired entry and returns how many were removed.
// Called periodically so cold, expired entries do not linger until the next
// read attempt.
func (l *LocalTier) SweepExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	var expired []*entry
	for _, e := range l.items {
		if !e.live(now) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		l.removeEntry(e)
		l.onEvict(e.key)
	}
	return len(expired)
}

// Clear empties the tier and returns the number of entries removed
func (l *LocalTier) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	l.items = make(map[string]*entry)
	l.evictList.Init()
	l.tagIndex = make(map[string]map[string]struct{})
	return n
}

// Len returns the number of resident entries, expired ones included
func (l *LocalTier) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Contains reports whether a live entry exists without touching its
// access metadata or LRU position
func (l *LocalTier) Contains(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[key]
	return ok && e.live(time.Now())
}

// KeysContaining returns the keys of live entries whose key contains substr
func (l *LocalTier) KeysContaining(substr string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	var keys []string
	for key, e := range l.items {
		if e.live(now) && strings.Contains(key, substr) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Info returns a snapshot of an entry's metadata, expired entries included
func (l *LocalTier) Info(key string) (EntryInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[key]
	if !ok {
		return EntryInfo{}, false
	}
	tags := make([]string, len(e.tags))
	copy(tags, e.tags)
	return EntryInfo{
		CreatedAt:    e.createdAt,
		ExpireAt:     e.expireAt,
		AccessCount:  e.accessCount,
		LastAccessAt: e.lastAccessAt,
		Tags:         tags,
		Version:      e.version,
	}, true
}

// removeEntry unlinks an entry from the map, the LRU list and the tag index.
// Caller must hold l.mu.
func (l *LocalTier) removeEntry(e *entry) {
	l.evictList.Remove(e.element)
	delete(l.items, e.key)
	l.dropTags(e)
}

// evictOldest removes the least recently used entry. Caller must hold l.mu.
func (l *LocalTier) evictOldest() {
	element := l.evictList.Back()
	if element == nil {
		return
	}
	e := element.Value.(*entry)
	l.removeEntry(e)
	l.onEvict(e.key)
}

// addTags records the entry's keys in the tag index. Caller must hold l.mu.
func (l *LocalTier) addTags(e *entry) {
	for _, tag := range e.tags {
		keys, ok := l.tagIndex[tag]
		if !ok {
			keys = make(map[string]struct{})
			l.tagIndex[tag] = keys
		}
		keys[e.key] = struct{}{}
	}
}

// dropTags removes the entry's keys from the tag index. Caller must hold l.mu.
func (l *LocalTier) dropTags(e *entry) {
	for _, tag := range e.tags {
		if keys, ok := l.tagIndex[tag]; ok {
			delete(keys, e.key)
			if len(keys) == 0 {
				delete(l.tagIndex, tag)
			}
		}
	}
}
