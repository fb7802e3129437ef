package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictFunc is invoked, outside the cache lock, for every entry removed by
// expiry or capacity pressure. Explicit deletes do not trigger it.
type EvictFunc[K comparable, V any] func(key K, value V)

// LRUCache is a thread-safe LRU cache with an idle TTL. Every successful Get
// refreshes the entry's deadline, so entries expire only after ttl without use.
// A zero ttl disables expiry; a capacity <= 0 disables the size bound.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	lru      *list.List
	onEvict  EvictFunc[K, V]
	now      func() time.Time
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Option tunes an LRUCache.
type Option[K comparable, V any] func(*LRUCache[K, V])

// WithEvictFunc registers a callback for expired or displaced entries.
func WithEvictFunc[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRUCache[K, V]) { c.onEvict = fn }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRUCache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// NewLRUCache creates a new LRU cache with the given capacity and TTL
func NewLRUCache[K comparable, V any](capacity int, ttl time.Duration, opts ...Option[K, V]) *LRUCache[K, V] {
	c := &LRUCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element),
		lru:      list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value and marks it most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	ent := elem.Value.(*entry[K, V])
	now := c.now()
	if c.expired(ent, now) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.evicted(ent)
		return zero, false
	}
	ent.expiresAt = c.deadline(now)
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return ent.value, true
}

// Set adds or replaces a value. When the cache is over capacity the least
// recently used entry is evicted.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	now := c.now()
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = c.deadline(now)
		c.lru.MoveToFront(elem)
		c.mu.Unlock()
		return
	}

	elem := c.lru.PushFront(&entry[K, V]{key: key, value: value, expiresAt: c.deadline(now)})
	c.items[key] = elem

	var displaced []*entry[K, V]
	for c.capacity > 0 && c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		displaced = append(displaced, c.removeElement(oldest))
	}
	c.mu.Unlock()

	for _, ent := range displaced {
		c.evicted(ent)
	}
}

// Delete removes key and reports whether it was present.
func (c *LRUCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *LRUCache[K, V]) Sweep() int {
	c.mu.Lock()
	now := c.now()
	var expired []*entry[K, V]
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if ent := elem.Value.(*entry[K, V]); c.expired(ent, now) {
			expired = append(expired, c.removeElement(elem))
		}
		elem = prev
	}
	c.mu.Unlock()

	for _, ent := range expired {
		c.evicted(ent)
	}
	return len(expired)
}

// Keys returns the live keys, most recently used first.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	keys := make([]K, 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if ent := elem.Value.(*entry[K, V]); !c.expired(ent, now) {
			keys = append(keys, ent.key)
		}
	}
	return keys
}

// Len returns the number of items in the cache, expired or not.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *LRUCache[K, V]) deadline(now time.Time) time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(c.ttl)
}

func (c *LRUCache[K, V]) expired(ent *entry[K, V], now time.Time) bool {
	return !ent.expiresAt.IsZero() && now.After(ent.expiresAt)
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) *entry[K, V] {
	ent := elem.Value.(*entry[K, V])
	c.lru.Remove(elem)
	delete(c.items, ent.key)
	return ent
}

func (c *LRUCache[K, V]) evicted(ent *entry[K, V]) {
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}
