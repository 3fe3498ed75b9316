package routecache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"telecom-routing/internal/routing"
)

// fakeRedis implements the handful of commands the cache issues.
type fakeRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	kv   map[string]string
	down bool
}

func newFakeRedis() *fakeRedis { return &fakeRedis{kv: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.kv[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.kv[key] = string(v)
	case string:
		f.kv[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.kv[key], 10, 64)
	n++
	f.kv[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

type stubResolver struct {
	calls atomic.Int32
	delay time.Duration
	route routing.ResolvedRoute
	err   error
}

func (s *stubResolver) Resolve(_ context.Context, req routing.ResolveRequest) (routing.ResolvedRoute, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return routing.ResolvedRoute{}, s.err
	}
	r := s.route
	r.PlanCode = req.PlanCode
	return r, nil
}

var usOutbound = routing.ResolveRequest{PlanCode: "pro", Direction: routing.DirectionOutbound, Locality: routing.Locality{Country: "us"}}

func TestCache_HitAfterFirstResolve(t *testing.T) {
	inner := &stubResolver{route: routing.ResolvedRoute{RoutingProfileID: "RP1", Trunk: routing.Trunk{ID: "T1"}}}
	c := New(newFakeRedis(), inner)
	ctx := context.Background()

	first, err := c.Resolve(ctx, usOutbound)
	require.NoError(t, err)
	second, err := c.Resolve(ctx, usOutbound)
	require.NoError(t, err)

	require.Equal(t, int32(1), inner.calls.Load())
	require.Equal(t, "T1", second.Trunk.ID)
	require.Equal(t, first.PlanCode, second.PlanCode)
	require.Equal(t, "PRO", second.PlanCode, "requests are normalized before keying")
}

func TestCache_BumpInvalidates(t *testing.T) {
	inner := &stubResolver{route: routing.ResolvedRoute{Trunk: routing.Trunk{ID: "T1"}}}
	rdb := newFakeRedis()
	c := New(rdb, inner)
	ctx := context.Background()

	_, err := c.Resolve(ctx, usOutbound)
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), gen)

	_, err = c.Resolve(ctx, usOutbound)
	require.NoError(t, err)
	require.Equal(t, int32(2), inner.calls.Load())
}

func TestCache_NoRouteIsCached(t *testing.T) {
	inner := &stubResolver{err: &routing.ResolutionError{Reason: routing.CodeCountryNotAllowedForPlan, PlanCode: "PRO"}}
	c := New(newFakeRedis(), inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Resolve(ctx, usOutbound)
		require.ErrorIs(t, err, routing.ErrCountryNotAllowedForPlan)
		require.True(t, routing.IsNoRoute(err))
	}
	require.Equal(t, int32(1), inner.calls.Load())
}

func TestCache_ValidationErrorsAreNotCached(t *testing.T) {
	inner := &stubResolver{err: routing.Invalid("", "direction", routing.CodeInvalidValue, "bad")}
	c := New(newFakeRedis(), inner)
	ctx := context.Background()

	_, err := c.Resolve(ctx, usOutbound)
	require.ErrorIs(t, err, routing.ErrInvalidValue)
	_, err = c.Resolve(ctx, usOutbound)
	require.ErrorIs(t, err, routing.ErrInvalidValue)
	require.Equal(t, int32(2), inner.calls.Load())
}

func TestCache_FailsOpenWhenRedisIsDown(t *testing.T) {
	inner := &stubResolver{route: routing.ResolvedRoute{Trunk: routing.Trunk{ID: "T1"}}}
	rdb := newFakeRedis()
	rdb.down = true
	c := New(rdb, inner)

	got, err := c.Resolve(context.Background(), usOutbound)
	require.NoError(t, err)
	require.Equal(t, "T1", got.Trunk.ID)
}

func TestCache_ConcurrentMissesCollapse(t *testing.T) {
	inner := &stubResolver{delay: 50 * time.Millisecond, route: routing.ResolvedRoute{Trunk: routing.Trunk{ID: "T1"}}}
	c := New(newFakeRedis(), inner)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Resolve(context.Background(), usOutbound)
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), inner.calls.Load())
}
