package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"posts-rag-service/internal/logger"
	"posts-rag-service/utils"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by a VectorCache when the key is absent
var ErrCacheMiss = errors.New("vector cache miss")

// VectorCache stores encoded vectors by key
type VectorCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisVectorCache is a VectorCache on top of go-redis
type RedisVectorCache struct {
	rdb *redis.Client
}

func NewRedisVectorCache(rdb *redis.Client) *RedisVectorCache {
	return &RedisVectorCache{rdb: rdb}
}

func (c *RedisVectorCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisVectorCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// CachedProvider serves repeated texts from a cache. Cache failures are logged and
// bypassed; only vectors that passed validation are ever written.
type CachedProvider struct {
	next  Provider
	cache VectorCache
	ttl   time.Duration
}

func NewCachedProvider(next Provider, cache VectorCache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, ttl: ttl}
}

func (c *CachedProvider) Model() string {
	return c.next.Model()
}

func (c *CachedProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}
	key := utils.EmbeddingCacheKey(c.next.Model(), trimmed)

	b, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		vec, decodeErr := utils.DecodeVector(b)
		if decodeErr == nil && ValidateVector(vec) == nil {
			return vec, nil
		}
		logger.Warn("Discarding unreadable cached vector", "key", key)
	case !errors.Is(err, ErrCacheMiss):
		logger.Warn("Vector cache read failed", "error", err)
	}

	vec, err := c.next.Generate(ctx, trimmed)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, utils.EncodeVector(vec), c.ttl); err != nil {
		logger.Warn("Vector cache write failed", "error", err)
	}
	return vec, nil
}
