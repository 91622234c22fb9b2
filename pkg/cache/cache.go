// Package cache provides the bounded dedup cache used by the admission gate:
// a thread-safe cache with LRU eviction under both an entry-count bound and a
// byte-cost bound, plus TTL expiry with background cleanup.
//
// Statistics are always collected; Prometheus export is optional via
// functional options.
package cache

import (
	"time"

	"github.com/c360/relaybridge/errors"
)

// Cache is the generic cache contract, parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found and
	// not expired, zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry was
	// created, false if an existing entry was updated.
	Set(key string, value V) (bool, error)

	// SetIfAbsent stores a value only when the key is not already present
	// within its TTL. Returns true if the entry was inserted, false if the
	// key was already live. This is the gate's atomic admit-once primitive:
	// two near-simultaneous deliveries of the same id cannot both see true.
	SetIfAbsent(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache.
	Size() int

	// Cost returns the current summed cost of all entries.
	Cost() int64

	// Keys returns all live keys, most recently used first.
	Keys() []string

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close shuts down the cache and its background cleanup goroutine.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

// CostFunc estimates the cost of an entry for the byte-size bound.
type CostFunc[V any] func(key string, value V) int64

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidStructure, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}

// Config holds the bounds of a dedup cache.
type Config struct {
	MaxEntries      int           // entry-count bound (LRU evicts beyond this)
	MaxCost         int64         // byte-cost bound (LRU evicts beyond this)
	TTL             time.Duration // entry lifetime independent of LRU
	CleanupInterval time.Duration // background expiry sweep interval
}

/// DefaultConfig returns the bounds used for event-id deduplication:
// 500 entries, 5000 bytes, five minute TTL.
func DefaultConfig() Config {
	return Config{
		MaxEntries:      500,
		MaxCost:         5000,
		TTL:             5 * time.Minute,
		CleanupInterval: 30 * time.Second,
	}
}
