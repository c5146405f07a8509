package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/compass/pkg/config"
)

// RedisCache is a Cache shared between replicas through redis.
//
// Each entry is stored as JSON under prefix+"rec:"+key. A set under
// prefix+"ctx:"+contextID records the entry keys of a context so Invalidate
// can remove them together.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

// NewRedisCache creates a redis cache. No connection is made until the first
// operation.
func NewRedisCache(cfg *config.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OperationTimeout,
		WriteTimeout: cfg.OperationTimeout,
	})
	return NewRedisCacheWithClient(client, cfg.KeyPrefix, cfg.OperationTimeout)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, prefix string, opTimeout time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, opTimeout: opTimeout}
}

// Backend returns BackendRedis.
func (c *RedisCache) Backend() string {
	return BackendRedis
}

func (c *RedisCache) entryKey(key Key) string {
	return c.prefix + "rec:" + key.String()
}

func (c *RedisCache) indexKey(contextID string) string {
	return c.prefix + "ctx:" + contextID
}

func (c *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *RedisCache) fail(op string, err error) error {
	return &UnavailableError{Backend: BackendRedis, Operation: op, Cause: err}
}

// Get returns the entry for key.
func (c *RedisCache) Get(ctx context.Context, key Key) (Entry, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, c.fail("get", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, c.fail("decode", err)
	}
	return entry, true, nil
}

// Put stores entry under key and records it in the context index. The
// index expires no earlier than its newest entry.
func (c *RedisCache) Put(ctx context.Context, key Key, entry Entry, ttl time.Duration) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.ExpiresAt = time.Time{}
	if ttl > 0 {
		entry.ExpiresAt = entry.CreatedAt.Add(ttl)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return c.fail("encode", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ek, ik := c.entryKey(key), c.indexKey(key.ContextID)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, ek, raw, max(ttl, 0))
	pipe.SAdd(ctx, ik, ek)
	if ttl > 0 {
		pipe.ExpireGT(ctx, ik, ttl)
		pipe.ExpireNX(ctx, ik, ttl)
	} else {
		pipe.Persist(ctx, ik)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return c.fail("put", err)
	}
	return nil
}

// Invalidate removes every entry for contextID.
func (c *RedisCache) Invalidate(ctx context.Context, contextID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ik := c.indexKey(contextID)
	members, err := c.client.SMembers(ctx, ik).Result()
	if err != nil {
		return c.fail("invalidate", err)
	}

	pipe := c.client.TxPipeline()
	if len(members) > 0 {
		pipe.Del(ctx, members...)
	}
	pipe.Del(ctx, ik)
	if _, err := pipe.Exec(ctx); err != nil {
		return c.fail("invalidate", err)
	}
	return nil
}

// Ping checks connectivity. It is used as an optional health check.
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return c.fail("ping", err)
	}
	return nil
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
