// ABOUTME: Thread-safe TTL cache for deduplicating normalized events.
// ABOUTME: Size-limited with O(1) oldest-first eviction via a linked list.

package dedupe

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/beaconlabs/courier/internal/model"
)

// cacheEntry stores the timestamp and list element for a cached key.
type cacheEntry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited record of seen event keys.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a dedupe cache with the given TTL and maximum size. Expired
// entries are pruned lazily on insert; there is no background goroutine to
// stop.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// EventKey builds the dedupe key for a normalized event. Update ids are
// scoped to one platform+chat, so the key includes the conversation.
func EventKey(ev model.Event) string {
	return fmt.Sprintf("%s#%d", ev.ThreadRef().ConversationID(), ev.UpdateID())
}

// Seen atomically checks whether key was recorded within the TTL and records
// it if not. Returns true for a duplicate, false for a new key.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneExpired(now)

	if entry, ok := c.seen[key]; ok && now.Sub(entry.seenAt) < c.ttl {
		return true
	}
	c.record(key, now)
	return false
}

// SeenEvent is Seen applied to a normalized event.
func (c *Cache) SeenEvent(ev model.Event) bool {
	return c.Seen(EventKey(ev))
}

// record must be called with mu held.
func (c *Cache) record(key string, now time.Time) {
	if entry, ok := c.seen[key]; ok {
		entry.seenAt = now
		c.order.MoveToBack(entry.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{seenAt: now, element: elem}
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// pruneExpired drops entries older than the TTL from the front of the order
// list. Must be called with mu held.
func (c *Cache) pruneExpired(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		entry := c.seen[key]
		if entry == nil || now.Sub(entry.seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// Len reports the current number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
