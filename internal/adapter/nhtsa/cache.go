package nhtsa

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
)

// CachedRater wraps a Rater with an in-memory LRU cache. Safety ratings are
// static per model year, so fleet sweeps mostly hit the cache.
type CachedRater struct {
	inner   Rater
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedRater creates a cache decorator around a rater.
func NewCachedRater(inner Rater, maxEntries int, metrics *observability.Metrics) *CachedRater {
	return &CachedRater{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedRater) Rate(ctx context.Context, year int, vehicleMake, model string) domain.VehicleSafetyRecord {
	key := fmt.Sprintf("%d|%s|%s", year, strings.ToLower(vehicleMake), strings.ToLower(model))
	if record, ok := c.cache.get(key); ok {
		c.metrics.RaterCache.WithLabelValues("hit").Inc()
		return record
	}
	c.metrics.RaterCache.WithLabelValues("miss").Inc()

	record := c.inner.Rate(ctx, year, vehicleMake, model)
	// Only cache live and default records so transient API failures can be retried.
	if record.Source != domain.SourceErrorFallback {
		c.cache.put(key, record)
	}
	return record
}

// lruCache is a simple thread-safe LRU cache for vehicle safety records.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.VehicleSafetyRecord
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.VehicleSafetyRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.VehicleSafetyRecord{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.VehicleSafetyRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
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
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
