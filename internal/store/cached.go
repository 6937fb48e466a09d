package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voyagen/tvdeck/internal/cache"
	"github.com/voyagen/tvdeck/internal/models"
)

// Cache TTLs.
const (
	ttlStreams = 1 * time.Minute
	ttlStream  = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer.
// Stream reads are served from cache when possible; writes invalidate
// the affected keys.
type CachedStore struct {
	inner Store
	cache *cache.Redis
	log   *logrus.Entry
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, log *logrus.Entry) *CachedStore {
	return &CachedStore{inner: inner, cache: c, log: log.WithField("component", "cached_store")}
}

// --- cached reads ---

// streamListResult caches the ListStreams tuple.
type streamListResult struct {
	Streams []models.Stream `json:"streams"`
	Total   int             `json:"total"`
}

func (c *CachedStore) ListStreams(ctx context.Context, filter StreamFilter) ([]models.Stream, int, error) {
	key := "streams:" + filterHash(filter)
	if v, err := cache.Get[streamListResult](ctx, c.cache, key); err == nil {
		return v.Streams, v.Total, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		c.log.WithError(err).WithField("key", key).Warn("cache get failed")
	}
	streams, total, err := c.inner.ListStreams(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	c.set(ctx, key, streamListResult{Streams: streams, Total: total}, ttlStreams)
	return streams, total, nil
}

func (c *CachedStore) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	key := "stream:" + id
	if v, err := cache.Get[models.Stream](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	st, err := c.inner.GetStream(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, st, ttlStream)
	return st, nil
}

// --- writes with invalidation ---

func (c *CachedStore) CreateStream(ctx context.Context, st *models.Stream) error {
	if err := c.inner.CreateStream(ctx, st); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "streams:*")
	return nil
}

func (c *CachedStore) UpdateStream(ctx context.Context, id string, fields StreamUpdate) error {
	if err := c.inner.UpdateStream(ctx, id, fields); err != nil {
		return err
	}
	c.invalidate(ctx, "stream:"+id)
	c.invalidatePattern(ctx, "streams:*")
	return nil
}

func (c *CachedStore) DeleteStream(ctx context.Context, id string) error {
	if err := c.inner.DeleteStream(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, "stream:"+id)
	c.invalidatePattern(ctx, "streams:*")
	return nil
}

func (c *CachedStore) AddServer(ctx context.Context, streamID string, srv *models.Server) error {
	if err := c.inner.AddServer(ctx, streamID, srv); err != nil {
		return err
	}
	c.invalidate(ctx, "stream:"+streamID)
	c.invalidatePattern(ctx, "streams:*")
	return nil
}

func (c *CachedStore) DeleteServer(ctx context.Context, serverID string) error {
	if err := c.inner.DeleteServer(ctx, serverID); err != nil {
		return err
	}
	// The owning stream is unknown here.
	c.invalidatePattern(ctx, "stream:*", "streams:*")
	return nil
}

func (c *CachedStore) RecordServerStatus(ctx context.Context, results []models.HealthCheckResult) error {
	if err := c.inner.RecordServerStatus(ctx, results); err != nil {
		return err
	}
	if len(results) > 0 {
		c.invalidatePattern(ctx, "stream:*", "streams:*")
	}
	return nil
}

// --- passthrough ---

func (c *CachedStore) GetStreamBySlug(ctx context.Context, slug string) (*models.Stream, error) {
	return c.inner.GetStreamBySlug(ctx, slug)
}

func (c *CachedStore) ListCheckTargets(ctx context.Context, streamIDs []string) ([]models.CheckTarget, error) {
	return c.inner.ListCheckTargets(ctx, streamIDs)
}

func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.inner.Ping(ctx); err != nil {
		return err
	}
	return c.cache.Ping(ctx)
}

// --- helpers ---

func (c *CachedStore) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil {
		c.log.WithError(err).WithField("keys", keys).Warn("cache del failed")
	}
}

func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.log.WithError(err).WithField("pattern", p).Warn("cache del pattern failed")
		}
	}
}

// filterHash produces a short deterministic hash of a StreamFilter for
// use in cache keys.
func filterHash(f StreamFilter) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		f.Search, fmtPtr(f.Category), fmtPtr(f.Active), fmtPtr(f.Featured), f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

func fmtPtr[T any](p *T) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}
