package rules

import "time"

// RuleSetCache caches the snapshot built from a RuleStore.
type RuleSetCache interface {
	// Get returns the cached snapshot, or nil on a miss or after expiry
	Get() *RuleSet

	// Set stores a snapshot
	Set(rs *RuleSet)

	// Invalidate clears the cache, forcing a rebuild on next Get
	Invalidate()

	// IsValid returns true if the cache holds a live snapshot
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL bounds how long a snapshot is served. Zero means until invalidated.
	// Calendar-based rule durations drift with time, so long-running
	// processes should set one.
	TTL time.Duration
}

// DefaultCacheConfig refreshes snapshots hourly.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: time.Hour}
}
