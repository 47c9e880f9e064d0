package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Store is the backing storage for a LoaderCache.
// Get reports ok=false on a miss; an error means the store itself failed.
type Store[V any] interface {
	Get(ctx context.Context, key string) (value V, ok bool, err error)
	Set(ctx context.Context, key string, value V) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// LRUStore is an in-process store with a size bound and per-entry TTL.
type LRUStore[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewLRUStore creates an LRU store holding at most maxEntries for ttl each. A zero ttl disables expiry.
func NewLRUStore[V any](maxEntries int, ttl time.Duration) (*LRUStore[V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache: max entries must be positive, got %d", maxEntries)
	}

	return &LRUStore[V]{lru: expirable.NewLRU[string, V](maxEntries, nil, ttl)}, nil
}

func (s *LRUStore[V]) Get(_ context.Context, key string) (V, bool, error) {
	v, ok := s.lru.Get(key)

	return v, ok, nil
}

func (s *LRUStore[V]) Set(_ context.Context, key string, value V) error {
	s.lru.Add(key, value)

	return nil
}

func (s *LRUStore[V]) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)

	return nil
}

func (s *LRUStore[V]) Purge(_ context.Context) error {
	s.lru.Purge()

	return nil
}

func (s *LRUStore[V]) Len(_ context.Context) (int, error) {
	return s.lru.Len(), nil
}

// RedisStore shares entries between replicas through Redis. Values are stored as JSON under prefix+key.
type RedisStore[V any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps entries until evicted by Redis.
func NewRedisStore[V any](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore[V] {
	return &RedisStore[V]{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var v V

	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}

	if err != nil {
		return v, false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode cached value: %w", err)
	}

	return v, true, nil
}

func (s *RedisStore[V]) Set(ctx context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached value: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (s *RedisStore[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Purge deletes every key under the store prefix.
func (s *RedisStore[V]) Purge(ctx context.Context) error {
	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func (s *RedisStore[V]) Len(ctx context.Context) (int, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}

func (s *RedisStore[V]) keys(ctx context.Context) ([]string, error) {
	var keys []string

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	return keys, nil
}
