package pagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
)

// DefaultTTL is how long a cached response stays valid.
const DefaultTTL = 30 * time.Second

// DefaultLoadTimeout bounds a shared load once it no longer follows a caller's context.
const DefaultLoadTimeout = 30 * time.Second

var cacheKeyPrefix = db.KeyNamespace + ":cache:"

// Request kinds, part of the cache key.
const (
	kindPage      = "page"
	kindCount     = "count"
	kindAggregate = "agg"
	kindGroupBy   = "group"
	kindFacet     = "facet"
)

// source is the decorated listing repository.
type source interface {
	Page(ctx context.Context, q listing.PageQuery) (row.Page, error)
	Count(ctx context.Context, doctype string, filters filter.Expression) (int, error)
	Aggregate(ctx context.Context, doctype string, filters filter.Expression, aggs []aggregate.Config) (aggregate.Result, error)
	GroupBy(ctx context.Context, doctype string, filters filter.Expression, cfg aggregate.GroupByConfig) ([]aggregate.Group, error)
	Facet(ctx context.Context, doctype, field string, filters filter.Expression, limit int) ([]facet.Option, error)
}

// store is the consumer interface for cache storage (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
}

// Cache is a read-through response cache shared by every table of the process.
// Entries are scoped by a per-doctype generation; Invalidate bumps it.
type Cache struct {
	inner       source
	store       store
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
	cacheTotal  *prometheus.CounterVec
	logger      *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLoadTimeout overrides DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner source,
	s store,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
	opts ...Option,
) *Cache {
	c := &Cache{
		inner:       inner,
		store:       s,
		ttl:         DefaultTTL,
		loadTimeout: DefaultLoadTimeout,
		cacheTotal:  cacheTotal,
		logger:      logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Page returns a cached page or loads it from the inner source.
func (c *Cache) Page(ctx context.Context, q listing.PageQuery) (row.Page, error) {
	req := struct {
		Fields  []string `json:"f"`
		Filters string   `json:"w"`
		Sort    string   `json:"s"`
		Offset  int      `json:"o"`
		Limit   int      `json:"l"`
		NoTotal bool     `json:"nt,omitempty"`
	}{Fields: q.Fields, Filters: q.Filters.Key(), Offset: q.Offset, Limit: q.Limit, NoTotal: q.SkipTotal}
	if q.Sort != nil {
		req.Sort = q.Sort.Field + ":" + string(q.Sort.Direction)
	}
	return cached(ctx, c, q.Doctype, kindPage, req, func(ctx context.Context) (row.Page, error) {
		return c.inner.Page(ctx, q)
	})
}

// Count returns a cached row count.
func (c *Cache) Count(ctx context.Context, doctype string, filters filter.Expression) (int, error) {
	return cached(ctx, c, doctype, kindCount, filters.Key(), func(ctx context.Context) (int, error) {
		return c.inner.Count(ctx, doctype, filters)
	})
}

// Aggregate returns cached whole-set aggregates.
func (c *Cache) Aggregate(
	ctx context.Context, doctype string, filters filter.Expression, aggs []aggregate.Config,
) (aggregate.Result, error) {
	keys := make([]string, len(aggs))
	for i, a := range aggs {
		keys[i] = a.Key()
	}
	req := []any{filters.Key(), keys}
	return cached(ctx, c, doctype, kindAggregate, req, func(ctx context.Context) (aggregate.Result, error) {
		return c.inner.Aggregate(ctx, doctype, filters, aggs)
	})
}

// GroupBy returns cached group-by buckets.
func (c *Cache) GroupBy(
	ctx context.Context, doctype string, filters filter.Expression, cfg aggregate.GroupByConfig,
) ([]aggregate.Group, error) {
	req := []any{filters.Key(), cfg}
	return cached(ctx, c, doctype, kindGroupBy, req, func(ctx context.Context) ([]aggregate.Group, error) {
		return c.inner.GroupBy(ctx, doctype, filters, cfg)
	})
}

// Facet returns cached facet options.
func (c *Cache) Facet(
	ctx context.Context, doctype, field string, filters filter.Expression, limit int,
) ([]facet.Option, error) {
	req := []any{field, filters.Key(), limit}
	return cached(ctx, c, doctype, kindFacet, req, func(ctx context.Context) ([]facet.Option, error) {
		return c.inner.Facet(ctx, doctype, field, filters, limit)
	})
}

// Invalidate drops every cached response of a doctype by moving it to a new generation.
func (c *Cache) Invalidate(ctx context.Context, doctype string) error {
	if _, err := c.store.IncrBy(ctx, generationKey(doctype), 1); err != nil {
		return fmt.Errorf("invalidate %s: %w", doctype, err)
	}
	return nil
}

func cached[T any](
	ctx context.Context, c *Cache, doctype, kind string, req any, load func(context.Context) (T, error),
) (T, error) {
	key, err := c.cacheKey(ctx, doctype, kind, req)
	if err != nil {
		// Cache unusable: serve straight from the source.
		c.logger.Warn("Failed to build cache key", zap.String("doctype", doctype), zap.Error(err))
		return load(ctx)
	}

	var hit T
	if c.getFromCache(ctx, key, &hit) {
		c.incCache("hit")
		return hit, nil
	}

	// Waiters share one load, so it must not die with whichever caller started it.
	// Each caller still stops waiting when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		c.incCache("miss")
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		val, err := load(lctx)
		if err != nil {
			return val, err
		}
		c.putToCache(lctx, key, val)
		return val, nil
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func generationKey(doctype string) string {
	return cacheKeyPrefix + doctype + ":gen"
}

func (c *Cache) generation(ctx context.Context, doctype string) (int64, error) {
	data, err := c.store.Get(ctx, generationKey(doctype))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	gen, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation %q: %w", data, err)
	}
	return gen, nil
}

func (c *Cache) cacheKey(ctx context.Context, doctype, kind string, req any) (string, error) {
	gen, err := c.generation(ctx, doctype)
	if err != nil {
		return "", err
	}
	canonical, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal cache request: %w", err)
	}
	h := sha256.Sum256(canonical)
	return cacheKeyPrefix + doctype + ":" + strconv.FormatInt(gen, 10) + ":" + kind + ":" + hex.EncodeToString(h[:]), nil
}

func (c *Cache) getFromCache(ctx context.Context, key string, out any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached response", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("Failed to parse cached response", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) putToCache(ctx context.Context, key string, val any) {
	data, err := json.Marshal(val)
	if err != nil {
		c.logger.Warn("Failed to encode response for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}
