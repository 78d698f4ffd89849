// ABOUTME: Thread-safe TTL cache for suppressing duplicate chat sends
// ABOUTME: Time comes from an injected clock; expired entries are pruned on write

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/convoy-coordinator/internal/clock"
)

// cacheEntry stores the timestamp and list element for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache provides a thread-safe, TTL-based, size-limited set of recently
// seen keys. Uses a doubly-linked list ordered by mark time for O(1)
// eviction of the oldest entry.
//
// A Cache with a non-positive TTL is disabled: nothing is ever reported as seen.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // keys by mark time, oldest at front
	ttl     time.Duration
	maxSize int
	clock   clock.Clock
}

// New creates a dedupe cache with the given TTL and maximum size.
// Pass nil clk for the wall clock.
func New(ttl time.Duration, maxSize int, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real()
	}
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clk,
	}
}

// Enabled reports whether the cache suppresses anything at all.
func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Check returns true if the key has been seen and is not expired.
func (c *Cache) Check(key string) bool {
	if !c.Enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	return ok && c.fresh(entry, c.clock.Now())
}

// CheckAndMark atomically checks if a key has been seen and marks it if not.
// Returns true if the key was already seen (duplicate), false if it's new and now marked.
func (c *Cache) CheckAndMark(key string) bool {
	if !c.Enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if entry, ok := c.seen[key]; ok && c.fresh(entry, now) {
		return true
	}
	c.markLocked(key, now)
	return false
}

// Mark records that a key has been seen. If the cache is at capacity,
// the oldest entry is evicted to make room.
func (c *Cache) Mark(key string) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key, c.clock.Now())
}

// MarkAt records key as seen at a past instant, so a restarted process
// keeps suppressing sends it made before. Keys already expired at the
// current time are ignored. Callers priming several keys should do so in
// time order.
func (c *Cache) MarkAt(key string, at time.Time) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if at.After(now) {
		at = now
	}
	if now.Sub(at) >= c.ttl {
		return
	}
	if entry, ok := c.seen[key]; ok && !entry.timestamp.Before(at) {
		return
	}
	c.markLocked(key, at)
}

// Forget removes key so the next CheckAndMark treats it as new.
func (c *Cache) Forget(key string) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) fresh(entry *cacheEntry, now time.Time) bool {
	return now.Sub(entry.timestamp) < c.ttl
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(key string, now time.Time) {
	c.pruneLocked(now)

	// If key already exists, update timestamp and move to back
	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{
		timestamp: now,
		element:   elem,
	}
}

// pruneLocked drops expired entries from the front of the order list.
func (c *Cache) pruneLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if c.fresh(c.seen[key], now) {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}
