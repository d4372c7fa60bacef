package media

import (
	"container/list"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type cacheEntry struct {
	key       string
	value     *Artifact
	timestamp time.Time
	ttl       time.Duration
}

// artifactCache is an LRU cache with TTL keyed by message id. Re-delivered
// inbound messages hit the cache instead of downloading their attachment
// again.
type artifactCache struct {
	mu        sync.Mutex
	items     map[string]*list.Element
	evictList *list.List
	capacity  int
	ttl       time.Duration

	hits   prometheus.Counter
	misses prometheus.Counter
	size   prometheus.Gauge
}

// newArtifactCache registers its metrics on reg, the same registry the
// /metrics/prometheus endpoint serves.
func newArtifactCache(capacity int, ttl time.Duration, reg prometheus.Registerer) *artifactCache {
	factory := promauto.With(reg)
	return &artifactCache{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		capacity:  capacity,
		ttl:       ttl,
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "media_cache_hits_total",
			Help: "Total number of media cache hits",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "media_cache_misses_total",
			Help: "Total number of media cache misses",
		}),
		size: factory.NewGauge(prometheus.GaugeOpts{
			Name: "media_cache_size",
			Help: "Current number of cached media artifacts",
		}),
	}
}

func (c *artifactCache) get(key string) (*Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		c.misses.Inc()
		return nil, false
	}
	entry := element.Value.(*cacheEntry)
	if time.Since(entry.timestamp) > entry.ttl {
		c.evictElement(element)
		c.misses.Inc()
		return nil, false
	}
	c.evictList.MoveToFront(element)
	c.hits.Inc()
	return entry.value, true
}

func (c *artifactCache) set(key string, value *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		c.evictList.MoveToFront(element)
		entry := element.Value.(*cacheEntry)
		entry.value = value
		entry.timestamp = time.Now()
		return
	}

	element := c.evictList.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		timestamp: time.Now(),
		ttl:       c.ttl,
	})
	c.items[key] = element
	c.size.Inc()

	if c.evictList.Len() > c.capacity {
		if back := c.evictList.Back(); back != nil {
			c.evictElement(back)
		}
	}
}

func (c *artifactCache) evictElement(element *list.Element) {
	c.evictList.Remove(element)
	entry := element.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.size.Dec()
}

func (c *artifactCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}
