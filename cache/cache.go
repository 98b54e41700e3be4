// Package cache keeps built search indexes resident between requests.
//
// Residency is bounded three ways: an entry count, an idle TTL measured
// since last access, and a memory ceiling over the summed footprint
// estimates. Admission is never refused, the guard decides what may load;
// the cache only decides how long results stay warm, evicting
// least-recently-used entries under pressure.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quillon/vecport/index"
)

// Options represents the options for configuring the cache.
type Options struct {
	// Capacity is the maximum number of resident indexes. Zero disables
	// the entry bound.
	Capacity int

	// TTL expires an entry once it has been idle this long. Zero disables
	// expiry.
	TTL time.Duration

	// MemoryCeilingBytes bounds the summed footprint estimates of resident
	// indexes. Zero disables the memory bound.
	MemoryCeilingBytes int64

	// SweepInterval is how often idle entries are expired in the
	// background, so an unused index does not hold memory until the next
	// lookup.
	SweepInterval time.Duration
}

var DefaultOptions = Options{
	Capacity:           32,
	TTL:                30 * time.Minute,
	MemoryCeilingBytes: 1 << 30,
	SweepInterval:      time.Minute,
}

// Stats is a point-in-time snapshot of cache behaviour.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Entries     int
	MemoryBytes int64
}

type entry struct {
	key        string
	handle     *index.Handle
	lastAccess time.Time
}

// IndexCache is an LRU cache over built index handles. Safe for concurrent
// use.
type IndexCache struct {
	opts Options

	mu        sync.Mutex
	items     map[string]*list.Element
	evictList *list.List
	memory    int64
	now       func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an IndexCache.
func New(optFns ...func(o *Options)) *IndexCache {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	c := &IndexCache{
		opts:      opts,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}

	if opts.TTL > 0 && opts.SweepInterval > 0 {
		go c.sweepLoop()
	}

	return c
}

// Get returns the cached index for key, taking a reference the caller must
// release when done with it.
func (c *IndexCache) Get(key string) (*index.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	ent := element.Value.(*entry)

	if c.expired(ent, c.now()) {
		c.removeElement(element)
		c.expirations.Add(1)
		c.misses.Add(1)

		return nil, false
	}

	if !ent.handle.Acquire() {
		// Unreachable while the cache holds its own reference; treat a
		// fully released handle as gone.
		c.removeElement(element)
		c.misses.Add(1)

		return nil, false
	}

	ent.lastAccess = c.now()
	c.evictList.MoveToFront(element)
	c.hits.Add(1)

	return ent.handle, true
}

// Put inserts a built index under its collection key, taking ownership of
// the caller's reference. An index already cached under the key is replaced
// and released.
func (c *IndexCache) Put(key string, h *index.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}

	ent := &entry{key: key, handle: h, lastAccess: c.now()}
	c.items[key] = c.evictList.PushFront(ent)
	c.memory += h.EstimatedBytes()

	c.evictLocked()
}

// Remove drops the entry for key, releasing the cache's reference. It
// reports whether an entry was present.
func (c *IndexCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}

	c.removeElement(element)

	return true
}

// Stats returns a snapshot of cache counters.
func (c *IndexCache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.items)
	memory := c.memory
	c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Entries:     entries,
		MemoryBytes: memory,
	}
}

// Close stops the background sweep and releases every resident index.
func (c *IndexCache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for _, element := range c.items {
		toRemove = append(toRemove, element)
	}

	for _, element := range toRemove {
		c.removeElement(element)
	}
}

// evictLocked drops least-recently-used entries while a bound is exceeded.
// The most recent entry always stays: admission is the guard's decision, so
// residency pressure only removes colder indexes. Caller holds c.mu.
func (c *IndexCache) evictLocked() {
	for c.overBoundLocked() {
		if c.evictList.Len() <= 1 {
			break
		}

		c.removeElement(c.evictList.Back())
		c.evictions.Add(1)
	}
}

func (c *IndexCache) overBoundLocked() bool {
	if c.opts.Capacity > 0 && c.evictList.Len() > c.opts.Capacity {
		return true
	}

	return c.opts.MemoryCeilingBytes > 0 && c.memory > c.opts.MemoryCeilingBytes
}

func (c *IndexCache) expired(ent *entry, now time.Time) bool {
	return c.opts.TTL > 0 && now.Sub(ent.lastAccess) > c.opts.TTL
}

// removeElement unlinks an entry and releases the cache's reference to its
// handle. Caller holds c.mu.
func (c *IndexCache) removeElement(element *list.Element) {
	c.evictList.Remove(element)

	ent := element.Value.(*entry)
	delete(c.items, ent.key)
	c.memory -= ent.handle.EstimatedBytes()

	ent.handle.Release()
}

func (c *IndexCache) sweepLoop() {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired drops every idle-expired entry. Elements are collected
// first because removal mutates the list.
func (c *IndexCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	var toRemove []*list.Element

	for _, element := range c.items {
		if c.expired(element.Value.(*entry), now) {
			toRemove = append(toRemove, element)
		}
	}

	for _, element := range toRemove {
		c.removeElement(element)
		c.expirations.Add(1)
	}
}
