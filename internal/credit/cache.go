package credit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"nauvus-backend/internal/logger"
)

// Cache is the slice of a key/value store the preapproval cache needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ErrCacheMiss is returned by Cache.Get for an absent key.
var ErrCacheMiss = errors.New("cache miss")

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RedisCache struct {
	raw    *redis.Client
	prefix string
}

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisCache{raw: rdb, prefix: cfg.Prefix + ":"}, nil
}

func (c *RedisCache) Close() error {
	return c.raw.Close()
}

func (c *RedisCache) withPrefix(key string) string {
	return c.prefix + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.raw.Get(ctx, c.withPrefix(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.raw.Set(ctx, c.withPrefix(key), value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.raw.Del(ctx, c.withPrefix(key)).Err()
}

type cachedClient struct {
	Client
	cache Cache
	ttl   time.Duration
}

// WithPreapprovalCache caches preapproval answers for ttl. Registering a
// business drops its cached answer. Cache failures fall through to the provider.
func WithPreapprovalCache(inner Client, cache Cache, ttl time.Duration) Client {
	return &cachedClient{Client: inner, cache: cache, ttl: ttl}
}

func preapprovalKey(businessID string) string {
	return "preapproval:" + businessID
}

func (c *cachedClient) GetPreapproval(ctx context.Context, businessID string) (bool, error) {
	key := preapprovalKey(businessID)
	val, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		return val == "1", nil
	case !errors.Is(err, ErrCacheMiss):
		logger.Warn("Preapproval cache read failed", "businessID", businessID, "error", err)
	}

	ok, err := c.Client.GetPreapproval(ctx, businessID)
	if err != nil {
		return false, err
	}
	val = "0"
	if ok {
		val = "1"
	}
	if err := c.cache.Set(ctx, key, val, c.ttl); err != nil {
		logger.Warn("Preapproval cache write failed", "businessID", businessID, "error", err)
	}
	return ok, nil
}

func (c *cachedClient) SaveBusiness(ctx context.Context, b Business) error {
	if err := c.Client.SaveBusiness(ctx, b); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, preapprovalKey(b.ExternalID)); err != nil {
		logger.Warn("Preapproval cache invalidation failed", "businessID", b.ExternalID, "error", err)
	}
	return nil
}
