package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache is an in-process Cache for single-instance deployments.
// Reads never extend an entry's lifetime.
type MemoryCache struct {
	items     *ttlcache.Cache[string, string]
	closeOnce sync.Once
}

// NewMemoryCache creates an empty in-process cache and starts its expiry loop.
func NewMemoryCache() *MemoryCache {
	items := ttlcache.New[string, string](
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go items.Start()
	return &MemoryCache{items: items}
}

// Get returns the value for key, or ErrMiss.
func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	item := m.items.Get(key)
	if item == nil || item.IsExpired() {
		return "", ErrMiss
	}
	return item.Value(), nil
}

// Set stores value under key. A ttl <= 0 keeps the entry until deleted.
func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.items.Set(key, value, ttl)
	return nil
}

// Del removes keys.
func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.items.Delete(key)
	}
	return nil
}

// Health always succeeds for the in-process cache.
func (m *MemoryCache) Health(_ context.Context) error {
	return nil
}

// Close stops the expiry loop.
func (m *MemoryCache) Close() error {
	m.closeOnce.Do(m.items.Stop)
	return nil
}
