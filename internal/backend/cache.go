package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"linkoraadmin/internal/cache"
	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/models"
)

// ListCache stores raw list envelopes per resource and query.
type ListCache interface {
	Get(ctx context.Context, kind models.Kind, key string) ([]byte, bool, error)
	Set(ctx context.Context, kind models.Kind, key string, raw []byte) error
	// Invalidate drops every cached page of kind.
	Invalidate(ctx context.Context, kind models.Kind) error
}

type MemoryCache struct {
	c *cache.TTL[string, []byte]
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{c: cache.New[string, []byte](ttl, ttl, nil)}
}

func (m *MemoryCache) Get(_ context.Context, kind models.Kind, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(string(kind) + "|" + key)
	return v, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, kind models.Kind, key string, raw []byte) error {
	m.c.Set(string(kind)+"|"+key, raw)
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, kind models.Kind) error {
	prefix := string(kind) + "|"
	m.c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
	return nil
}

func (m *MemoryCache) Close() { m.c.Close() }

// RedisCache namespaces keys by a per-resource generation counter; Invalidate bumps the
// counter so stale pages are never read again and simply expire.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// OpenRedis parses a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "linkora:list:"}
}

func (r *RedisCache) genKey(kind models.Kind) string {
	return r.prefix + string(kind) + ":gen"
}

func (r *RedisCache) pageKey(ctx context.Context, kind models.Kind, key string) (string, error) {
	gen, err := r.rdb.Get(ctx, r.genKey(kind)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s%s:%d:%s", r.prefix, kind, gen, key), nil
}

func (r *RedisCache) Get(ctx context.Context, kind models.Kind, key string) ([]byte, bool, error) {
	k, err := r.pageKey(ctx, kind, key)
	if err != nil {
		return nil, false, err
	}
	b, err := r.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) Set(ctx context.Context, kind models.Kind, key string, raw []byte) error {
	k, err := r.pageKey(ctx, kind, key)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, k, raw, r.ttl).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context, kind models.Kind) error {
	return r.rdb.Incr(ctx, r.genKey(kind)).Err()
}

// CachedAPI serves list reads from a ListCache and invalidates a resource's pages after
// every mutation of that resource, successful or not.
type CachedAPI struct {
	API
	cache   ListCache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewCachedAPI(api API, c ListCache, logger *zap.Logger, m *metrics.Metrics) *CachedAPI {
	return &CachedAPI{API: api, cache: c, logger: logging.OrNop(logger).Named("listcache"), metrics: m}
}

func (c *CachedAPI) ListRaw(ctx context.Context, kind models.Kind, q ListQuery) ([]byte, error) {
	key := q.Key()
	if raw, ok, err := c.cache.Get(ctx, kind, key); err != nil {
		c.logger.Warn("cache read failed", zap.String("resource", string(kind)), zap.Error(err))
	} else if ok {
		c.metrics.ObserveCache(string(kind), "hit")
		return raw, nil
	}
	c.metrics.ObserveCache(string(kind), "miss")
	raw, err := c.API.ListRaw(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, kind, key, raw); err != nil {
		c.logger.Warn("cache write failed", zap.String("resource", string(kind)), zap.Error(err))
	}
	return raw, nil
}

func (c *CachedAPI) SetStatus(ctx context.Context, kind models.Kind, id string, status models.Status, action models.Action) error {
	err := c.API.SetStatus(ctx, kind, id, status, action)
	c.invalidate(kind)
	return err
}

func (c *CachedAPI) Delete(ctx context.Context, kind models.Kind, id string) error {
	err := c.API.Delete(ctx, kind, id)
	c.invalidate(kind)
	return err
}

func (c *CachedAPI) invalidate(kind models.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.cache.Invalidate(ctx, kind); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("resource", string(kind)), zap.Error(err))
	}
}
