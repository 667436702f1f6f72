package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// Backend defines the interface a cache backend must satisfy.
type Backend interface {
	Get(key string) (any, bool)
	Set(key string, value any) bool
}

// ristrettoBackend is a ristretto implementation of Backend.
type ristrettoBackend struct {
	c *ristretto.Cache[string, any]
}

// Get a value from the cache.
func (rb *ristrettoBackend) Get(key string) (any, bool) {
	return rb.c.Get(key)
}

// Set a value in the cache.
func (rb *ristrettoBackend) Set(key string, value any) bool {
	return rb.c.Set(key, value, 1)
}

// NewRistrettoBackend constructs an instance of a ristretto cache backend.
func NewRistrettoBackend() (Backend, error) { //nolint:ireturn
	c, err := ristretto.NewCache(
		&ristretto.Config[string, any]{
			NumCounters: 1e6,
			MaxCost:     1 << 26,
			BufferItems: 64,
		})
	if err != nil {
		return nil, fmt.Errorf("error initialising ristretto cache: %w", err)
	}
	return &ristrettoBackend{c: c}, nil
}

// Cache provides memoization over a Backend.
type Cache struct {
	backend Backend
}

// New constructs a new Cache over the given backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// Cacheable makes a function cacheable by the given key.  The cache is
// advisory: a miss recomputes through fn.
func Cacheable[V any](key string, fn func() (V, error), c *Cache) (V, error) { //nolint:ireturn
	var val V
	tmpVal, cacheHit := c.backend.Get(key)
	if !cacheHit {
		retrievedVal, err := fn()
		if err != nil {
			return val, fmt.Errorf("error retrieving cacheable value for key %v: %w", key, err)
		}
		c.backend.Set(key, retrievedVal)
		val = retrievedVal
	} else {
		val = tmpVal.(V)
	}
	return val, nil
}
