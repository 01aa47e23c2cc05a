// Package testutil provides shared test doubles for the cache engine.
package testutil

import (
	"context"
	"path"
	"sync"
	"time"
)

// mockEntry is a stored value with its absolute expiry
type mockEntry struct {
	value    []byte
	expireAt time.Time
}

// MockRemoteTier is an in-memory stand-in for the remote cache tier. It
// counts calls per method and supports per-method error injection, so tests
// can assert round-trip bounds and exercise degraded-remote behavior.
type MockRemoteTier struct {
	mu      sync.Mutex
	entries map[string]mockEntry

	// Calls counts invocations per method name
	Calls map[string]int

	// ErrorOnMethod injects an error for a method name
	ErrorOnMethod map[string]error
}

// NewMockRemoteTier creates an empty mock remote tier
func NewMockRemoteTier() *MockRemoteTier {
	return &MockRemoteTier{
		entries:       make(map[string]mockEntry),
		Calls:         make(map[string]int),
		ErrorOnMethod: make(map[string]error),
	}
}

// CallCount returns how many times a method has been invoked
func (m *MockRemoteTier) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

// Len returns the number of stored entries, expired ones included
func (m *MockRemoteTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Seed stores an entry directly, bypassing counters
func (m *MockRemoteTier) Seed(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = mockEntry{value: value, expireAt: time.Now().Add(ttl)}
}

// Has reports whether a live entry exists, bypassing counters
func (m *MockRemoteTier) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && time.Now().Before(e.expireAt)
}

func (m *MockRemoteTier) get(key string) ([]byte, time.Duration, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, 0, false
	}
	remaining := time.Until(e.expireAt)
	if remaining <= 0 {
		delete(m.entries, key)
		return nil, 0, false
	}
	return e.value, remaining, true
}

// Get implements cache.RemoteTier
func (m *MockRemoteTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Get"]++
	if err := m.ErrorOnMethod["Get"]; err != nil {
		return nil, false, err
	}
	value, _, ok := m.get(key)
	return value, ok, nil
}

// GetWithTTL implements cache.RemoteTier
func (m *MockRemoteTier) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["GetWithTTL"]++
	if err := m.ErrorOnMethod["GetWithTTL"]; err != nil {
		return nil, 0, false, err
	}
	value, remaining, ok := m.get(key)
	return value, remaining, ok, nil
}

// Set implements cache.RemoteTier
func (m *MockRemoteTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Set"]++
	if err := m.ErrorOnMethod["Set"]; err != nil {
		return err
	}
	m.entries[key] = mockEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

// Delete implements cache.RemoteTier
func (m *MockRemoteTier) Delete(ctx context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Delete"]++
	if err := m.ErrorOnMethod["Delete"]; err != nil {
		return 0, err
	}
	count := 0
	for _, key := range keys {
		if _, ok := m.entries[key]; ok {
			delete(m.entries, key)
			count++
		}
	}
	return count, nil
}

// MGet implements cache.RemoteTier
func (m *MockRemoteTier) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["MGet"]++
	if err := m.ErrorOnMethod["MGet"]; err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if value, _, ok := m.get(key); ok {
			out[i] = value
		}
	}
	return out, nil
}

// MSet implements cache.RemoteTier
func (m *MockRemoteTier) MSet(ctx context.Context, entries map[string][]byte, ttls map[string]time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["MSet"]++
	if err := m.ErrorOnMethod["MSet"]; err != nil {
		return err
	}
	for key, value := range entries {
		m.entries[key] = mockEntry{value: value, expireAt: time.Now().Add(ttls[key])}
	}
	return nil
}

// Keys implements cache.RemoteTier using glob matching
func (m *MockRemoteTier) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Keys"]++
	if err := m.ErrorOnMethod["Keys"]; err != nil {
		return nil, err
	}
	var keys []string
	now := time.Now()
	for key, e := range m.entries {
		if now.After(e.expireAt) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Exists implements cache.RemoteTier
func (m *MockRemoteTier) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Exists"]++
	if err := m.ErrorOnMethod["Exists"]; err != nil {
		return false, err
	}
	_, _, ok := m.get(key)
	return ok, nil
}
