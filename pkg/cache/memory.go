package cache

import (
	"context"
	"sync"
)

// MemoryStore is a mutex-guarded in-process cache backend.
// Expired entries are treated as absent on Get and removed lazily;
// PurgeExpired sweeps the whole map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves a cache entry by fingerprint.
// Returns ErrCacheMiss if the fingerprint is unknown or the entry expired.
func (s *MemoryStore) Get(_ context.Context, key Fingerprint) (*Entry, error) {
	cacheKey := key.String()

	s.mu.RLock()
	entry, ok := s.entries[cacheKey]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired() {
		s.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// replaced the entry with a fresh one.
		if cur, ok := s.entries[cacheKey]; ok && cur.IsExpired() {
			delete(s.entries, cacheKey)
			CacheEntries.Set(float64(len(s.entries)))
		}
		s.mu.Unlock()
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry, nil
}

// Set inserts or wholesale-replaces the entry for the fingerprint.
func (s *MemoryStore) Set(_ context.Context, key Fingerprint, entry *Entry) error {
	if entry == nil {
		CacheErrors.WithLabelValues("set").Inc()
		return ErrInvalidEntry
	}
	if entry.TTL() <= 0 {
		// Already expired, don't cache
		return nil
	}

	s.mu.Lock()
	s.entries[key.String()] = entry
	CacheEntries.Set(float64(len(s.entries)))
	s.mu.Unlock()

	return nil
}

// Delete removes a cache entry.
func (s *MemoryStore) Delete(_ context.Context, key Fingerprint) error {
	s.mu.Lock()
	delete(s.entries, key.String())
	CacheEntries.Set(float64(len(s.entries)))
	s.mu.Unlock()
	return nil
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (s *MemoryStore) PurgeExpired(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, entry := range s.entries {
		if entry.IsExpired() {
			delete(s.entries, key)
			purged++
		}
	}
	if purged > 0 {
		CacheEntries.Set(float64(len(s.entries)))
		CachePurgedEntries.Add(float64(purged))
	}
	return purged
}

// Len returns the number of entries currently held, including any that
// expired but have not been purged yet.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
