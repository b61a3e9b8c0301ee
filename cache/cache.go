package cache

import (
	"container/list"
	"sync"
	"time"

	"portfolio-analytics/config"

	"github.com/rs/zerolog/log"
)

// Bounded is a capacity- and time-bounded key/value cache used to avoid
// refetching a remote document on every request within a short window.
//
// Recency is strict LRU: Get promotes the entry, Set refreshes it, and
// inserting at capacity evicts the least-recently-used entry. An entry is
// never returned once its age exceeds the TTL; expired entries are
// evicted when observed. Safe for concurrent use.
type Bounded struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time // test hook
}

type entry struct {
	key      string
	value    interface{}
	storedAt time.Time
}

// NewBounded creates a cache with the given configuration.
func NewBounded(cfg config.CacheConfig) *Bounded {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	log.Info().
		Int("capacity", capacity).
		Int("ttl_seconds", cfg.TTLSeconds).
		Msg("Bounded cache initialized")

	return &Bounded{
		capacity: capacity,
		ttl:      time.Duration(cfg.TTLSeconds) * time.Second,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get retrieves a value. Returns (nil, false) if the key is absent or the
// entry has outlived the TTL; a hit promotes the entry to most recently
// used.
func (c *Bounded) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	en := el.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(en.storedAt) > c.ttl {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return en.value, true
}

// Set inserts or refreshes an entry, evicting the least-recently-used
// entry first when at capacity.
func (c *Bounded) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		en := el.Value.(*entry)
		en.value = value
		en.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	el := c.order.PushFront(&entry{key: key, value: value, storedAt: c.now()})
	c.items[key] = el
}

// Delete removes a key if present.
func (c *Bounded) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the number of live entries, counting any not yet observed
// as expired.
func (c *Bounded) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry. Counters are kept.
func (c *Bounded) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
}

func (c *Bounded) removeLocked(el *list.Element) {
	en := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, en.key)
}

// MetricsSnapshot is a point-in-time view of cache performance.
type MetricsSnapshot struct {
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	HitRatio   float64 `json:"hit_ratio"`
	Entries    int     `json:"entries"`
	Capacity   int     `json:"capacity"`
	TTLSeconds int     `json:"ttl_seconds"`
}

// GetMetricsSnapshot returns current cache metrics as a snapshot.
func (c *Bounded) GetMetricsSnapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRatio := 0.0
	if total > 0 {
		hitRatio = float64(c.hits) / float64(total)
	}

	return MetricsSnapshot{
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		HitRatio:   hitRatio,
		Entries:    c.order.Len(),
		Capacity:   c.capacity,
		TTLSeconds: int(c.ttl.Seconds()),
	}
}
