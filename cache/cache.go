// Package cache is an in-process TTL cache on dgraph-io/ristretto, used for agent cards and
// weather forecasts.
package cache

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache holds byte values with a per-entry TTL. Cost is the value size.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache bounded to maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes <= 0 {
		maxCostBytes = 16 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	return c.c.Get(key)
}

// Set stores value for ttl and waits until it is visible to Get.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
}

// Delete removes key.
func (c *Cache) Delete(key string) { c.c.Del(key) }

// Close releases the cache's goroutines.
func (c *Cache) Close() { c.c.Close() }

// GetJSON decodes the cached value for key into T.
func GetJSON[T any](c *Cache, key string) (T, bool) {
	var v T
	b, ok := c.Get(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false
	}
	return v, true
}

// SetJSON encodes v and caches it for ttl. Values that cannot be encoded are not cached.
func SetJSON(c *Cache, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(key, b, ttl)
}
