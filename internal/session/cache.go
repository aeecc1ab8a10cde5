// Package session caches login artifacts (cookies, bearer tokens) per
// credential for a bounded time. Concurrent misses for the same key share
// one login.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc performs the login for a key.
type LoadFunc[T any] func(ctx context.Context) (T, error)

type item[T any] struct {
	value   T
	expires time.Time
}

// Cache is a TTL cache keyed by credential fingerprint. Values live only
// in process memory.
type Cache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]item[T]
	group singleflight.Group
}

func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{ttl: ttl, now: time.Now, items: make(map[string]item[T])}
}

// SetClock replaces the time source.
func (c *Cache[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get returns the cached value for key or runs load once for all callers
// waiting on the same key. Failed loads are not cached. The shared load
// does not inherit the first caller's cancellation; each caller stops
// waiting on its own ctx.
func (c *Cache[T]) Get(ctx context.Context, key string, load LoadFunc[T]) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.items[key] = item[T]{value: v, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Invalidate drops key, forcing the next Get to log in again.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !c.now().Before(it.expires) {
		delete(c.items, key)
		var zero T
		return zero, false
	}
	return it.value, true
}
