package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// ResultCache stores synchronous tool results between identical calls.
type ResultCache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

// MemoryCache is an in-process ResultCache.
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache creates a cache whose expired entries are swept at twice
// the default TTL.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryCache{store: gocache.New(defaultTTL, 2*defaultTTL)}
}

// Get implements ResultCache.
func (c *MemoryCache) Get(_ context.Context, key string) (any, bool) {
	return c.store.Get(key)
}

// Set implements ResultCache.
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// RedisCache is a ResultCache shared across gateway instances. Values
// round-trip through JSON, so cached structs come back as generic maps.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisCache creates a Redis-backed result cache under the key prefix.
func NewRedisCache(rdb redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "gateway:result"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

// Get implements ResultCache. Redis errors degrade to a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (any, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+":"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Set implements ResultCache. Unencodable values are silently skipped.
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, c.prefix+":"+key, raw, ttl)
}

// defaultCacheKey hashes the canonical JSON encoding of the arguments.
// Keys are sorted so logically equal argument maps produce the same key.
func defaultCacheKey(toolId string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(toolId))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		if raw, err := json.Marshal(args[k]); err == nil {
			h.Write(raw)
		}
	}
	return toolId + ":" + hex.EncodeToString(h.Sum(nil))
}
