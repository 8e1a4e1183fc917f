package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded cache whose entries also expire after a TTL.
// It backs sign-in sessions, pending import batches and monthly reports.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
	onEvict func(key string, data T)
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// Option configures an LRUCache.
type Option[T any] func(*LRUCache[T])

// WithClock replaces time.Now, mostly for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *LRUCache[T]) { c.now = now }
}

// WithEvictHook is called, outside the lock, for entries dropped by
// capacity or expiry. Explicit Delete calls do not trigger it.
func WithEvictHook[T any](fn func(key string, data T)) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a live entry and marks it most recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.evicted(item)
		return zero, false
	}
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores data with the cache's default TTL.
func (c *LRUCache[T]) Set(key string, data T) {
	c.SetWithTTL(key, data, c.ttl)
}

// SetWithTTL stores data with its own TTL. Replacing a key refreshes it.
func (c *LRUCache[T]) SetWithTTL(key string, data T, ttl time.Duration) {
	item := &cacheItem[T]{key: key, data: data, expiresAt: c.now().Add(ttl)}

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		elem.Value = item
		c.lru.MoveToFront(elem)
		c.mu.Unlock()
		return
	}
	c.items[key] = c.lru.PushFront(item)

	var dropped *cacheItem[T]
	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			dropped = oldest.Value.(*cacheItem[T])
			c.removeElement(oldest)
		}
	}
	c.mu.Unlock()

	if dropped != nil {
		c.evicted(dropped)
	}
}

// Delete removes a key. It reports whether the key was present.
func (c *LRUCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if ok {
		c.removeElement(elem)
	}
	return ok
}

// Take removes and returns a live entry in one step.
func (c *LRUCache[T]) Take(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	c.removeElement(elem)
	if c.now().After(item.expiresAt) {
		return zero, false
	}
	return item.data, true
}

// DeleteFunc removes every entry for which match returns true.
func (c *LRUCache[T]) DeleteFunc(match func(key string, data T) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem[T])
		if match(item.key, item.data) {
			c.removeElement(elem)
			n++
		}
		elem = next
	}
	return n
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

func (c *LRUCache[T]) evicted(item *cacheItem[T]) {
	if c.onEvict != nil {
		c.onEvict(item.key, item.data)
	}
}

// CleanExpired drops expired entries and returns how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	now := c.now()
	var expired []*cacheItem[T]

	c.mu.Lock()
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			c.removeElement(elem)
			expired = append(expired, item)
		}
		elem = next
	}
	c.mu.Unlock()

	for _, item := range expired {
		c.evicted(item)
	}
	return len(expired)
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
