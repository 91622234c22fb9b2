package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/relaybridge/errors"
)

// dedupEntry represents an entry in the dedup cache.
type dedupEntry[V any] struct {
	key       string
	value     V
	cost      int64
	expiresAt time.Time
}

// isExpired checks if the entry has expired.
func (e *dedupEntry[V]) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// dedupCache combines LRU eviction under entry-count and byte-cost bounds
// with TTL expiry. Items are evicted when either bound is exceeded or when
// they expire, whichever comes first; LRU eviction is independent of TTL.
type dedupCache[V any] struct {
	mu              sync.RWMutex
	maxEntries      int
	maxCost         int64
	ttl             time.Duration
	cleanupInterval time.Duration
	items           map[string]*list.Element // key -> list element
	order           *list.List               // doubly-linked list for LRU ordering
	totalCost       int64
	stats           *Statistics
	metrics         *cacheMetrics // optional, if metrics enabled
	evictFn         EvictCallback[V]
	costFn          CostFunc[V]

	// Background cleanup coordination
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a dedup cache with the given bounds. The background expiry
// sweep stops when ctx is cancelled or Close is called.
func New[V any](ctx context.Context, cfg Config, options ...Option[V]) (Cache[V], error) {
	if cfg.MaxEntries <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "New", "MaxEntries must be positive")
	}
	if cfg.MaxCost <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "New", "MaxCost must be positive")
	}
	if cfg.TTL <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "New", "TTL must be positive")
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "metrics registration")
		}
	}

	c := &dedupCache[V]{
		maxEntries:      cfg.MaxEntries,
		maxCost:         cfg.MaxCost,
		ttl:             cfg.TTL,
		cleanupInterval: cfg.CleanupInterval,
		items:           make(map[string]*list.Element),
		order:           list.New(),
		stats:           NewStatistics(),
		metrics:         metrics,
		evictFn:         opts.evictCallback,
		costFn:          opts.costFn,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

// Get retrieves a value by key, checking for expiration and updating LRU order.
func (c *dedupCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	entry := element.Value.(*dedupEntry[V])

	if entry.isExpired() {
		c.removeElement(element)
		c.stats.Eviction()
		c.stats.Miss()
		c.noteSize()

		var zero V
		return zero, false
	}

	c.order.MoveToFront(element)

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}

	return entry.value, true
}

// Set stores a value with the given key, setting TTL and updating LRU order.
func (c *dedupCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(key, value), nil
}

// SetIfAbsent inserts only when the key is not already live. The check and
// insert happen under one lock acquisition.
func (c *dedupCache[V]) SetIfAbsent(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		entry := element.Value.(*dedupEntry[V])
		if !entry.isExpired() {
			c.stats.Hit()
			if c.metrics != nil {
				c.metrics.recordHit()
			}
			return false, nil
		}
		// Expired but not yet swept: replace it
		c.removeElement(element)
		c.stats.Eviction()
	}

	c.setLocked(key, value)
	return true, nil
}

// setLocked inserts or updates an entry. Must be called with mutex held.
// Returns true when a new entry was created.
func (c *dedupCache[V]) setLocked(key string, value V) bool {
	expiresAt := time.Now().Add(c.ttl)
	cost := c.costFn(key, value)

	if element, exists := c.items[key]; exists {
		entry := element.Value.(*dedupEntry[V])
		c.totalCost += cost - entry.cost
		entry.value = value
		entry.cost = cost
		entry.expiresAt = expiresAt
		c.order.MoveToFront(element)

		c.stats.Set()
		if c.metrics != nil {
			c.metrics.recordSet()
		}
		return false
	}

	entry := &dedupEntry[V]{
		key:       key,
		value:     value,
		cost:      cost,
		expiresAt: expiresAt,
	}
	element := c.order.PushFront(entry)
	c.items[key] = element
	c.totalCost += cost

	// Evict LRU entries while either bound is exceeded
	for len(c.items) > c.maxEntries || c.totalCost > c.maxCost {
		if !c.evictLRU() {
			break
		}
	}

	c.stats.Set()
	c.noteSize()
	if c.metrics != nil {
		c.metrics.recordSet()
	}

	return true
}

// Delete removes an entry by key.
func (c *dedupCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		return false, nil
	}

	c.removeElement(element)

	c.stats.Delete()
	c.noteSize()
	if c.metrics != nil {
		c.metrics.recordDelete()
	}

	return true, nil
}

// Clear removes all entries from the cache.
func (c *dedupCache[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evictFn != nil {
		for element := c.order.Back(); element != nil; element = element.Prev() {
			entry := element.Value.(*dedupEntry[V])
			c.evictFn(entry.key, entry.value)
		}
	}

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.totalCost = 0

	c.noteSize()
	return nil
}

// Size returns the current number of entries in the cache.
func (c *dedupCache[V]) Size() int {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()
	return size
}

// Cost returns the current summed cost of all entries.
func (c *dedupCache[V]) Cost() int64 {
	c.mu.RLock()
	cost := c.totalCost
	c.mu.RUnlock()
	return cost
}

// Keys returns all live keys, most recently used first.
// Some keys may be expired but not yet swept; those are skipped.
func (c *dedupCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	now := time.Now()

	for element := c.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*dedupEntry[V])
		if now.Before(entry.expiresAt) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

// Stats returns cache statistics.
func (c *dedupCache[V]) Stats() *Statistics {
	return c.stats
}

// Close shuts down the cache and stops the background cleanup goroutine.
func (c *dedupCache[V]) Close() error {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

// evictLRU removes the least recently used item from the cache.
// Must be called with mutex held. Returns false when the cache is empty.
func (c *dedupCache[V]) evictLRU() bool {
	element := c.order.Back()
	if element == nil {
		return false
	}
	c.removeElement(element)
	c.stats.Eviction()
	if c.metrics != nil {
		c.metrics.recordEviction()
	}
	return true
}

// removeElement removes an element from the list, map and cost total.
// Must be called with mutex held.
func (c *dedupCache[V]) removeElement(element *list.Element) {
	entry := element.Value.(*dedupEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
	c.totalCost -= entry.cost

	if c.evictFn != nil {
		// Callback runs after the critical section unwinds
		defer c.evictFn(entry.key, entry.value)
	}
}

// noteSize pushes current size/cost into stats and metrics.
// Must be called with mutex held.
func (c *dedupCache[V]) noteSize() {
	c.stats.UpdateSize(int64(len(c.items)))
	c.stats.UpdateMemoryUsage(c.totalCost)
	if c.metrics != nil {
		c.metrics.updateSize(len(c.items))
		c.metrics.updateCost(c.totalCost)
	}
}

// cleanup runs in a background goroutine and periodically removes expired entries.
func (c *dedupCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the cache.
func (c *dedupCache[V]) removeExpired() {
	now := time.Now()
	expired := 0

	c.mu.Lock()
	for element := c.order.Front(); element != nil; {
		next := element.Next()
		entry := element.Value.(*dedupEntry[V])

		if now.After(entry.expiresAt) {
			c.removeElement(element)
			expired++
		}

		element = next
	}

	if expired > 0 {
		for i := 0; i < expired; i++ {
			c.stats.Eviction()
			if c.metrics != nil {
				c.metrics.recordEviction()
			}
		}
		c.noteSize()
	}
	c.mu.Unlock()
}
