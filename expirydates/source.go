// Package expirydates reads the expiry date currently stored against a
// page. Lookups go through a short-lived cache and a failed lookup is
// treated as "no date".
package expirydates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/liamcoop/expiry/content"
	"github.com/liamcoop/expiry/internal/metrics"
)

// DefaultTTL is how long a looked-up date is reused.
const DefaultTTL = time.Hour

// noDate is cached when a page has no expiry date so that the absence is
// not looked up again.
const noDate = "none"

// Index finds the expiry date stored for a node. A nil date with a nil
// error means the node has no expiry date.
type Index interface {
	ExpireDate(ctx context.Context, nodeID int) (*time.Time, error)
}

// IndexFunc adapts a function to Index.
type IndexFunc func(ctx context.Context, nodeID int) (*time.Time, error)

func (f IndexFunc) ExpireDate(ctx context.Context, nodeID int) (*time.Time, error) {
	return f(ctx, nodeID)
}

// TreeIndex reads dates straight from the content tree.
type TreeIndex struct {
	Tree content.Tree
}

func (ti TreeIndex) ExpireDate(ctx context.Context, nodeID int) (*time.Time, error) {
	n, err := ti.Tree.Node(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return n.ExpireDate(), nil
}

type Options struct {
	TTL     time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// CachedSource answers expiry date lookups from a cache, falling back to
// the index on a miss.
type CachedSource struct {
	index   Index
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewCachedSource(index Index, cache Cache, opts Options) *CachedSource {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &CachedSource{
		index:   index,
		cache:   cache,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
}

// ExpireDate returns the node's stored expiry date, or nil when it has none
// or the date cannot be read.
func (s *CachedSource) ExpireDate(ctx context.Context, nodeID int) *time.Time {
	key := cacheKey(nodeID)

	value, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("expiry date cache read failed", slog.Int("node_id", nodeID), slog.String("err", err.Error()))
	}
	if ok {
		if t, err := decode(value); err == nil {
			s.metrics.RecordDateLookup("hit")
			return t
		}
		s.log.Warn("discarding unreadable cached expiry date", slog.Int("node_id", nodeID), slog.String("value", value))
	}

	date, err := s.index.ExpireDate(ctx, nodeID)
	if err != nil {
		s.metrics.RecordDateLookup("error")
		if !errors.Is(err, content.ErrNodeNotFound) {
			s.log.Error("failed to look up expiry date", slog.Int("node_id", nodeID), slog.String("err", err.Error()))
		}
		return nil
	}
	s.metrics.RecordDateLookup("miss")

	if err := s.cache.Set(ctx, key, encode(date), s.ttl); err != nil {
		s.log.Warn("expiry date cache write failed", slog.Int("node_id", nodeID), slog.String("err", err.Error()))
	}
	return date
}

// Invalidate drops the cached date for a node after it has been changed.
func (s *CachedSource) Invalidate(ctx context.Context, nodeID int) error {
	if err := s.cache.Delete(ctx, cacheKey(nodeID)); err != nil {
		return fmt.Errorf("failed to invalidate expiry date for node %d: %w", nodeID, err)
	}
	return nil
}

func cacheKey(nodeID int) string {
	return "expiry:date:" + strconv.Itoa(nodeID)
}

func encode(t *time.Time) string {
	if t == nil {
		return noDate
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decode(v string) (*time.Time, error) {
	if v == noDate {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
