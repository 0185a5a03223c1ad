package rules

import (
	"sync"
	"time"
)

// InMemoryRuleSetCache is a RuleSetCache guarded by a RWMutex. Snapshots are
// immutable so no copying is needed on Get.
type InMemoryRuleSetCache struct {
	rs       *RuleSet
	cachedAt time.Time
	config   CacheConfig
	now      func() time.Time
	mu       sync.RWMutex
}

func NewInMemoryRuleSetCache(config CacheConfig) *InMemoryRuleSetCache {
	return &InMemoryRuleSetCache{config: config, now: time.Now}
}

func (c *InMemoryRuleSetCache) Get() *RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil
	}
	return c.rs
}

func (c *InMemoryRuleSetCache) Set(rs *RuleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rs = rs
	c.cachedAt = c.now()
}

func (c *InMemoryRuleSetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rs = nil
}

func (c *InMemoryRuleSetCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validLocked()
}

func (c *InMemoryRuleSetCache) validLocked() bool {
	if c.rs == nil {
		return false
	}
	if c.config.TTL > 0 && c.now().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
