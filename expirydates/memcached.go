package expirydates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcacheClient is the subset of *memcache.Client used here.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
	Close() error
}

// MemcachedCache stores entries in memcached. Memcached has no context
// support, so ctx is ignored.
type MemcachedCache struct {
	client memcacheClient
}

func NewMemcachedCache(servers ...string) (*MemcachedCache, error) {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	if err := ss.SetServers(servers...); err != nil {
		return nil, fmt.Errorf("failed to set memcached servers: %w", err)
	}
	client := memcache.NewFromSelector(ss)
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("connection to memcached failed: %w", err)
	}
	slog.Info("connected to memcached!")
	return &MemcachedCache{client: client}, nil
}

func (c *MemcachedCache) Get(_ context.Context, key string) (string, bool, error) {
	it, err := c.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(it.Value), true, nil
}

func (c *MemcachedCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(&memcache.Item{
		Key:        key,
		Value:      []byte(value),
		Expiration: int32(ttl.Seconds()),
	})
}

func (c *MemcachedCache) Delete(_ context.Context, key string) error {
	err := c.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (c *MemcachedCache) Close() error {
	slog.Info("closing memcached connection.")
	return c.client.Close()
}
