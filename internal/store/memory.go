package store

import (
	"context"
	"sync"
	"time"

	"github.com/af-corp/llmcache/internal/llmcache"
)

// Memory is an in-process store for tests and single-instance local runs.
// Expired entries are dropped lazily on read and by Purge.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, llmcache.ErrCacheMiss
	}
	if !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the key.
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, llmcache.ErrCacheMiss
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a copy of value. A non-positive ttl stores nothing.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.entries[key] = memoryEntry{value: stored, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Purge removes expired entries and returns how many were removed.
func (m *Memory) Purge(_ context.Context) (int64, error) {
	now := m.now()
	var n int64

	m.mu.Lock()
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			n++
		}
	}
	m.mu.Unlock()
	return n, nil
}

// size returns the number of entries, including expired ones not yet purged.
func (m *Memory) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
