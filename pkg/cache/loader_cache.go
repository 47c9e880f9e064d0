// Package cache provides a generic loader cache combining a pluggable store (in-process LRU
// or Redis) with singleflight to coalesce concurrent loads for the same key.
package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// LoaderCache is a generic cache that loads values on miss via a callback and
// coalesces concurrent loads for the same key using singleflight. Without singleflight,
// a burst of N concurrent misses for the same key would trigger N loads; with it, one
// load runs and the rest wait for and share that result.
// Keys are converted to strings internally via keyToString for the store and singleflight,
// so K need not be comparable (e.g. a struct holding slices).
//
// Store read failures are treated as misses and store write failures are dropped:
// the loaded value is always returned to the caller.
type LoaderCache[K any, V any] struct {
	store       Store[V]
	group       singleflight.Group
	keyToString func(K) string
}

// NewLoaderCache creates a loader cache over store with the given key serializer.
func NewLoaderCache[K any, V any](store Store[V], keyToString func(K) string) *LoaderCache[K, V] {
	return &LoaderCache[K, V]{
		store:       store,
		keyToString: keyToString,
	}
}

// NewLRULoaderCache is shorthand for a loader cache over an in-process LRUStore.
func NewLRULoaderCache[K any, V any](maxEntries int, keyToString func(K) string) (*LoaderCache[K, V], error) {
	store, err := NewLRUStore[V](maxEntries, 0)
	if err != nil {
		return nil, err
	}

	return NewLoaderCache[K, V](store, keyToString), nil
}

// Get returns the value for key, loading it via load on cache miss.
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	v, _, err := c.GetWithStats(ctx, key, load)

	return v, err
}

// GetWithStats is like Get but also returns whether the value came from cache (hit) or was loaded (miss).
// Useful for metrics without pushing metrics into the cache package.
// On miss, Do(key, fn) ensures only one goroutine runs load() for that key;
// others block and receive the same result (request coalescing / cache stampede prevention).
func (c *LoaderCache[K, V]) GetWithStats(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	keyStr := c.keyToString(key)
	if v, ok, err := c.store.Get(ctx, keyStr); err == nil && ok {
		return v, true, nil
	}

	val, err, _ := c.group.Do(keyStr, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return zero[V](), loadErr
		}

		_ = c.store.Set(ctx, keyStr, loaded)

		return loaded, nil
	})
	if err != nil {
		return zero[V](), false, err
	}

	return val.(V), false, nil
}

func zero[V any]() (z V) { return z }

// Invalidate removes the entry for key.
func (c *LoaderCache[K, V]) Invalidate(ctx context.Context, key K) error {
	return c.store.Delete(ctx, c.keyToString(key))
}

// InvalidateAll removes all entries.
func (c *LoaderCache[K, V]) InvalidateAll(ctx context.Context) error {
	return c.store.Purge(ctx)
}

// Len returns the number of entries in the cache. Store errors count as empty.
func (c *LoaderCache[K, V]) Len(ctx context.Context) int {
	n, err := c.store.Len(ctx)
	if err != nil {
		return 0
	}

	return n
}
