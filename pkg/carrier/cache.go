package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ServiceCache stores courier service listings between rate requests.
type ServiceCache interface {
	Get(ctx context.Context, key string) ([]CourierService, bool, error)
	Set(ctx context.Context, key string, services []CourierService, ttl time.Duration) error
}

// CachingBackend decorates a Backend so CourierServices is served from a
// cache while it is fresh. Empty listings are never cached.
type CachingBackend struct {
	Backend
	cache  ServiceCache
	ttl    time.Duration
	logger *otelzap.Logger
}

// NewCachingBackend wraps backend with a courier service cache.
func NewCachingBackend(backend Backend, cache ServiceCache, ttl time.Duration, logger *otelzap.Logger) *CachingBackend {
	return &CachingBackend{
		Backend: backend,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
	}
}

// CourierServices returns the cached listing or fetches and caches it.
// Cache failures degrade to a direct backend call.
func (c *CachingBackend) CourierServices(ctx context.Context) ([]CourierService, error) {
	key := "courier-services:" + c.Backend.Name()

	services, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Ctx(ctx).Warn("Courier service cache read failed", zap.Error(err))
	} else if ok {
		return services, nil
	}

	services, err = c.Backend.CourierServices(ctx)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return services, nil
	}

	if err := c.cache.Set(ctx, key, services, c.ttl); err != nil {
		c.logger.Ctx(ctx).Warn("Courier service cache write failed", zap.Error(err))
	}
	return services, nil
}

// RedisServiceCache is a ServiceCache backed by Redis.
type RedisServiceCache struct {
	client redis.UniversalClient
}

// NewRedisServiceCache creates a cache from a redis URL
// (e.g. "redis://localhost:6379/0").
func NewRedisServiceCache(url string) (*RedisServiceCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisServiceCache{client: redis.NewClient(opts)}, nil
}

// Get returns the cached listing, if any.
func (r *RedisServiceCache) Get(ctx context.Context, key string) ([]CourierService, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var services []CourierService
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, false, fmt.Errorf("decoding cached services: %w", err)
	}
	return services, true, nil
}

// Set stores the listing with the given TTL.
func (r *RedisServiceCache) Set(ctx context.Context, key string, services []CourierService, ttl time.Duration) error {
	data, err := json.Marshal(services)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Close releases the redis connection pool.
func (r *RedisServiceCache) Close() error {
	return r.client.Close()
}
