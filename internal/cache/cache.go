// Package cache keeps hot reads (round definitions and loaded sessions) out of PostgreSQL.
// Entries are keyed by entity id and deleted on every write that touches the entity, with
// a TTL as a backstop. The scoring core never sees the cache; it sits in front of the store.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a byte-oriented key/value cache.
//
// Every key has a generation that Delete bumps. A reader that loads from the database on a
// miss reads the generation first and stores its result with SetIfVersion, so a value
// loaded before a concurrent write is dropped instead of overwriting the invalidation.
type Cache interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys and bumps their generations.
	Delete(ctx context.Context, keys ...string) error
	// Version returns the current generation of key; zero if it was never deleted.
	Version(ctx context.Context, key string) (uint64, error)
	// SetIfVersion stores value only while key is still at generation version, and
	// reports whether it did.
	SetIfVersion(ctx context.Context, key string, version uint64, value []byte, ttl time.Duration) (bool, error)
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// Memory is a process-local Cache used when no Redis URL is configured.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	// versions outlive the items they guard; only Delete changes them.
	versions map[string]uint64
	now      func() time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		items:    make(map[string]memoryItem),
		versions: make(map[string]uint64),
		now:      time.Now,
	}
}

var _ Cache = (*Memory)(nil)

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return item.value, true, nil
}

func (m *Memory) item(value []byte, ttl time.Duration) memoryItem {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	return item
}

// Set stores value under key. A zero ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := m.item(value, ttl)
	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
		m.versions[k]++
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Version(_ context.Context, key string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[key], nil
}

func (m *Memory) SetIfVersion(_ context.Context, key string, version uint64, value []byte, ttl time.Duration) (bool, error) {
	item := m.item(value, ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[key] != version {
		return false, nil
	}
	m.items[key] = item
	return true, nil
}

// Len reports how many entries are held, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
