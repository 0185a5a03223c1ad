package expirydates

import (
	"context"
	"fmt"
	"time"

	"github.com/liamcoop/expiry/config"
)

// Cache is a string key/value store with per-entry expiry.
type Cache interface {
	// Get reports ok=false on a miss. Errors are reserved for backend failures.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewCache builds the backend named in cfg.Backend.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(), nil
	case "memcached":
		return NewMemcachedCache(cfg.Servers...)
	case "redis":
		return NewRedisCache(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
