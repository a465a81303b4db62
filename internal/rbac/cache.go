package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores per-actor grant snapshots under a generation. Clear starts a new
// generation; snapshots stored under an older one are never served again.
type Cache interface {
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, gen uint64, actorID int64) (Grants, bool, error)
	Put(ctx context.Context, gen uint64, actorID int64, grants Grants) error
	Clear(ctx context.Context) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	gen     uint64
	entries map[int64]Grants
}

// NewMemoryCache constructs an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[int64]Grants)}
}

func (c *MemoryCache) Generation(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, nil
}

func (c *MemoryCache) Get(_ context.Context, gen uint64, actorID int64) (Grants, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if gen != c.gen {
		return Grants{}, false, nil
	}
	g, ok := c.entries[actorID]
	return g, ok, nil
}

// Put ignores snapshots loaded under a generation that has since been cleared.
func (c *MemoryCache) Put(_ context.Context, gen uint64, actorID int64, grants Grants) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.entries[actorID] = grants
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[int64]Grants)
	return nil
}

const (
	redisVersionKey  = "authz:version"
	redisBumpChannel = "authz.bump"
)

// RedisCache shares grant snapshots across processes. The generation is a counter
// key; snapshots are stored under keys embedding it and expire after ttl.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache instantiates the cache helper.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Generation(ctx context.Context) (uint64, error) {
	ver, err := c.client.Get(ctx, redisVersionKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *RedisCache) Get(ctx context.Context, gen uint64, actorID int64) (Grants, bool, error) {
	payload, err := c.client.Get(ctx, grantsKey(gen, actorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Grants{}, false, nil
	}
	if err != nil {
		return Grants{}, false, err
	}
	var g Grants
	if err := json.Unmarshal(payload, &g); err != nil {
		return Grants{}, false, err
	}
	return g, true, nil
}

func (c *RedisCache) Put(ctx context.Context, gen uint64, actorID int64, grants Grants) error {
	raw, err := json.Marshal(grants)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, grantsKey(gen, actorID), raw, c.ttl).Err()
}

// Clear bumps the shared version and announces it on the bump channel.
func (c *RedisCache) Clear(ctx context.Context) error {
	ver, err := c.client.Incr(ctx, redisVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, redisBumpChannel, strconv.FormatInt(ver, 10)).Err()
}

func grantsKey(gen uint64, actorID int64) string {
	return strings.Join([]string{"authz", "grants", strconv.FormatUint(gen, 10), strconv.FormatInt(actorID, 10)}, ":")
}
