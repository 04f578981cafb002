package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested fingerprint was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the caching contract used by the gateway.
type Store interface {
	// Get retrieves a cache entry by fingerprint.
	// Returns ErrCacheMiss if the fingerprint is unknown or the entry expired.
	Get(ctx context.Context, key Fingerprint) (*Entry, error)

	// Set inserts or wholesale-replaces the entry for the fingerprint.
	// Entries that are already expired are not stored.
	Set(ctx context.Context, key Fingerprint, entry *Entry) error

	// Delete removes a cache entry.
	Delete(ctx context.Context, key Fingerprint) error

	// PurgeExpired removes expired entries and returns how many were
	// removed. Called by the memory monitor's reclamation pass.
	PurgeExpired(ctx context.Context) int
}
