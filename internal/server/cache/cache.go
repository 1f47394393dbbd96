// Package cache remembers recent inbound submissions so a producer retrying
// with the same Idempotency-Key does not broadcast an event twice.
// It uses patrickmn/go-cache for TTL-based expiry.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long an acknowledgment is remembered.
const DefaultTTL = 5 * time.Minute

// Ack is the acknowledgment returned for a submission.
type Ack struct {
	Delivered int       `json:"delivered"`
	At        time.Time `json:"-"`
}

// Cache maps idempotency keys to the acknowledgment of their first
// submission.
type Cache struct {
	mu    sync.Mutex
	store *gocache.Cache
}

// New creates a cache. ttl is the expiry of each key; cleanupInterval is how
// often expired keys are purged from memory.
func New(ttl, cleanupInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store: gocache.New(ttl, cleanupInterval),
	}
}

// Do runs publish once per key within the TTL. For a repeated key it returns
// the first acknowledgment with duplicate set and does not call publish.
// An empty key always publishes.
func (c *Cache) Do(key string, publish func() int) (ack Ack, duplicate bool) {
	if key == "" {
		return Ack{Delivered: publish(), At: time.Now()}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.store.Get(key); found {
		return v.(Ack), true
	}

	ack = Ack{Delivered: publish(), At: time.Now()}
	c.store.SetDefault(key, ack)
	return ack, false
}

// Get returns the acknowledgment stored for key.
func (c *Cache) Get(key string) (Ack, bool) {
	v, found := c.store.Get(key)
	if !found {
		return Ack{}, false
	}
	return v.(Ack), true
}

// Delete forgets key.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// Clear forgets every key.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of remembered keys, including expired keys
// not yet purged.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}
