package storage

import (
	"bytes"
	"container/list"
	"sync"
)

// WriteBackCache is an LRU cache of small values. Entries written through
// Put with dirty set are held until they are marked clean, and the cache
// never evicts a dirty entry on its own: callers write the victim back
// first.
type WriteBackCache struct {
	mu       sync.Mutex
	capacity int
	maxValue int
	cache    map[string]*list.Element
	lru      *list.List
	dirty    int

	// Statistics
	hits   int64
	misses int64
}

type cacheEntry struct {
	key   string
	value []byte
	dirty bool
}

// CachedValue is a copy of a cache entry.
type CachedValue struct {
	Key   string
	Value []byte
	Dirty bool
}

// NewWriteBackCache creates a cache of capacity entries holding values of
// at most maxValue bytes.
func NewWriteBackCache(capacity, maxValue int) *WriteBackCache {
	return &WriteBackCache{
		capacity: capacity,
		maxValue: maxValue,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Fits reports whether a value of n bytes can be cached.
func (c *WriteBackCache) Fits(n int) bool {
	return c.capacity > 0 && n > 0 && n <= c.maxValue
}

// Get returns a copy of the cached value.
func (c *WriteBackCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		return bytes.Clone(elem.Value.(*cacheEntry).value), true
	}
	c.misses++
	return nil, false
}

// Peek returns a copy of an entry without touching recency or statistics.
func (c *WriteBackCache) Peek(key string) (CachedValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return CachedValue{}, false
	}
	e := elem.Value.(*cacheEntry)
	return CachedValue{Key: e.key, Value: bytes.Clone(e.value), Dirty: e.dirty}, true
}

// Equal reports whether key is cached with exactly value.
func (c *WriteBackCache) Equal(key string, value []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	return ok && bytes.Equal(elem.Value.(*cacheEntry).value, value)
}

// Victim returns the entry Put(key, ...) would evict.
func (c *WriteBackCache) Victim(key string) (CachedValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache[key]; ok || c.lru.Len() < c.capacity {
		return CachedValue{}, false
	}
	elem := c.lru.Back()
	if elem == nil {
		return CachedValue{}, false
	}
	e := elem.Value.(*cacheEntry)
	return CachedValue{Key: e.key, Value: bytes.Clone(e.value), Dirty: e.dirty}, true
}

// Put stores a copy of value. It reports false, and changes nothing, when
// making room would evict a dirty entry.
func (c *WriteBackCache) Put(key string, value []byte, dirty bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		e := elem.Value.(*cacheEntry)
		e.value = bytes.Clone(value)
		c.setDirty(e, e.dirty || dirty)
		return true
	}

	if c.lru.Len() >= c.capacity {
		back := c.lru.Back()
		if back == nil || back.Value.(*cacheEntry).dirty {
			return false
		}
		c.evict()
	}

	e := &cacheEntry{key: key, value: bytes.Clone(value)}
	c.setDirty(e, dirty)
	c.cache[key] = c.lru.PushFront(e)
	return true
}

// evict removes the least recently used entry
func (c *WriteBackCache) evict() {
	elem := c.lru.Back()
	if elem != nil {
		c.lru.Remove(elem)
		e := elem.Value.(*cacheEntry)
		c.setDirty(e, false)
		delete(c.cache, e.key)
	}
}

func (c *WriteBackCache) setDirty(e *cacheEntry, dirty bool) {
	if e.dirty == dirty {
		return
	}
	e.dirty = dirty
	if dirty {
		c.dirty++
	} else {
		c.dirty--
	}
}

// MarkClean clears the dirty flag of key if it still holds value. A value
// replaced since it was read for write-back stays dirty.
func (c *WriteBackCache) MarkClean(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		e := elem.Value.(*cacheEntry)
		if bytes.Equal(e.value, value) {
			c.setDirty(e, false)
		}
	}
}

// Dirty returns copies of the dirty entries, least recently used first.
func (c *WriteBackCache) Dirty() []CachedValue {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CachedValue, 0, c.dirty)
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*cacheEntry)
		if e.dirty {
			out = append(out, CachedValue{Key: e.key, Value: bytes.Clone(e.value), Dirty: true})
		}
	}
	return out
}

// Delete removes an entry, dirty or not.
func (c *WriteBackCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.setDirty(elem.Value.(*cacheEntry), false)
		c.lru.Remove(elem)
		delete(c.cache, key)
	}
}

// Clear drops every entry and resets the statistics.
func (c *WriteBackCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*list.Element)
	c.lru = list.New()
	c.dirty = 0
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics
func (c *WriteBackCache) Stats() (hits, misses int64, hitRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits = c.hits
	misses = c.misses
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// Size returns the current number of entries
func (c *WriteBackCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// DirtyCount returns the number of entries waiting for write-back.
func (c *WriteBackCache) DirtyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}
