package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"telecom-routing/internal/metrics"
	"telecom-routing/internal/routing"
	"telecom-routing/pkg/logger"
)

const (
	generationKey = "routing:generation"
	defaultTTL    = 5 * time.Minute
)

// Cache memoizes resolutions in Redis.
//
// Keys embed the configuration generation. Every committed mutation calls
// Bump, which makes all entries written under older generations unreachable;
// they expire on their own. The generation is read before the inner resolver
// runs, so an entry can only ever be stored under a generation at least as
// old as the state it was computed from.
//
// No-route outcomes are cached too. Validation and infrastructure failures
// are not.
type Cache struct {
	rdb     redis.Cmdable
	inner   routing.RouteResolver
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func New(rdb redis.Cmdable, inner routing.RouteResolver, opts ...Option) *Cache {
	c := &Cache{rdb: rdb, inner: inner, ttl: defaultTTL}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ routing.RouteResolver = (*Cache)(nil)

type entry struct {
	Route *routing.ResolvedRoute   `json:"route,omitempty"`
	Miss  *routing.ResolutionError `json:"miss,omitempty"`
}

func key(gen int64, req routing.ResolveRequest) string {
	return fmt.Sprintf("route:%d:%s:%s:%s:%s", gen, req.PlanCode, req.Direction, req.Country, req.Region)
}

func (c *Cache) Resolve(ctx context.Context, req routing.ResolveRequest) (routing.ResolvedRoute, error) {
	req = routing.NormalizeRequest(req)
	log := logger.From(ctx)

	gen, err := c.Generation(ctx)
	if err != nil {
		// The cache is an optimization; resolution still works without it.
		log.Warn("route cache unavailable", "err", err)
		c.metrics.ObserveCache(metrics.CacheFailOpen)
		return c.inner.Resolve(ctx, req)
	}
	k := key(gen, req)

	if e, ok := c.get(ctx, k); ok {
		c.metrics.ObserveCache(metrics.CacheHit)
		return e.result()
	}

	v, err, shared := c.group.Do(k, func() (any, error) {
		route, err := c.inner.Resolve(ctx, req)
		var e entry
		var miss *routing.ResolutionError
		switch {
		case err == nil:
			e.Route = &route
		case errors.As(err, &miss):
			e.Miss = miss
		default:
			return nil, err
		}
		c.set(ctx, k, e)
		return e, nil
	})
	if shared {
		c.metrics.ObserveCache(metrics.CacheShared)
	} else {
		c.metrics.ObserveCache(metrics.CacheMiss)
	}
	if err != nil {
		return routing.ResolvedRoute{}, err
	}
	return v.(entry).result()
}

func (e entry) result() (routing.ResolvedRoute, error) {
	if e.Miss != nil {
		return routing.ResolvedRoute{}, e.Miss
	}
	if e.Route == nil {
		return routing.ResolvedRoute{}, errors.New("routecache: empty entry")
	}
	return *e.Route, nil
}

func (c *Cache) get(ctx context.Context, k string) (entry, bool) {
	raw, err := c.rdb.Get(ctx, k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.From(ctx).Warn("route cache read failed", "key", k, "err", err)
		}
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Route == nil && e.Miss == nil {
		return entry{}, false
	}
	return e, true
}

func (c *Cache) set(ctx context.Context, k string, e entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, k, raw, c.ttl).Err(); err != nil {
		logger.From(ctx).Warn("route cache write failed", "key", k, "err", err)
	}
}

// Generation returns the current configuration generation (0 before the
// first Bump).
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Bump advances the generation, invalidating every cached resolution.
func (c *Cache) Bump(ctx context.Context) error {
	return c.rdb.Incr(ctx, generationKey).Err()
}
