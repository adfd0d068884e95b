package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed embedding vectors keyed by content hash. All
// implementations are best-effort from the embedder's point of view: a
// failing cache must never fail an embedding request.
type Cache interface {
	// Get returns the cached vector and whether the key was present.
	Get(ctx context.Context, key string) ([]float32, bool, error)
	// Set stores a vector under key with the given TTL.
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
	// Close releases resources.
	Close() error
}

const keyPrefix = "embedding:"

// RedisCache is a Redis-backed embedding cache with TTL eviction.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache creates a cache against the given Redis address.
func NewRedisCache(addr, password string) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return vector, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity; used by the health surface.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

// NopCache disables caching; every lookup misses.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	return nil
}

func (NopCache) Close() error { return nil }

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = NopCache{}
)
