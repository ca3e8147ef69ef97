// Package cache holds caller-owned key/value caches with expiry.
package cache

import (
	"sync"
	"time"
)

// Cache is a string-keyed cache. A miss or an expired entry reports false.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Put(key string, value V)
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Memory is an in-process Cache. A zero ttl keeps entries forever.
type Memory[V any] struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]entry[V]
}

func NewMemory[V any](ttl time.Duration) *Memory[V] {
	return NewMemoryWithClock[V](ttl, time.Now)
}

func NewMemoryWithClock[V any](ttl time.Duration, now func() time.Time) *Memory[V] {
	if now == nil {
		now = time.Now
	}
	return &Memory[V]{ttl: ttl, now: now, entries: make(map[string]entry[V])}
}

func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (m *Memory[V]) Put(key string, value V) {
	e := entry[V]{value: value}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
