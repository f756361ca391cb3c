package storage

import (
	"context"
	"sync"
)

// CachedBackend wraps a Backend with an in-memory LRU of object contents,
// bounded by total size. Objects larger than the budget are never cached.
// Writes through the wrapper replace the cached copy.
type CachedBackend struct {
	Backend
	cache *lruCache
}

// NewCachedBackend creates a read cache holding at most maxBytes of object data.
func NewCachedBackend(inner Backend, maxBytes int64) *CachedBackend {
	return &CachedBackend{Backend: inner, cache: newLRUCache(maxBytes)}
}

func (c *CachedBackend) Exists(ctx context.Context, key string) (bool, error) {
	if _, ok := c.cache.get(key); ok {
		return true, nil
	}
	return c.Backend.Exists(ctx, key)
}

func (c *CachedBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if data, ok := c.cache.get(key); ok {
		return data, nil
	}
	data, err := c.Backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, data)
	return data, nil
}

func (c *CachedBackend) Write(ctx context.Context, key string, data []byte, opts WriteOptions) error {
	if err := c.Backend.Write(ctx, key, data, opts); err != nil {
		c.cache.remove(key)
		return err
	}
	c.cache.put(key, data)
	return nil
}

// lruCache is a thread-safe LRU keyed by object key.
type lruCache struct {
	maxBytes int64
	mu       sync.Mutex
	bytes    int64
	entries  map[string]*entry
	head     *entry // most recently used
	tail     *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxBytes int64) *lruCache {
	return &lruCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.evict(e)
	}
	if c.maxBytes <= 0 || int64(len(value)) > c.maxBytes {
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.bytes += int64(len(value))
	c.addToFront(e)

	for c.bytes > c.maxBytes {
		c.evict(c.tail)
	}
}

func (c *lruCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.evict(e)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *lruCache) evict(e *entry) {
	if e == nil {
		return
	}
	c.unlink(e)
	delete(c.entries, e.key)
	c.bytes -= int64(len(e.value))
}
