package metrics

import (
	"context"
	"time"

	"telecom-routing/internal/routing"
)

type instrumentedResolver struct {
	inner routing.RouteResolver
	m     *Metrics
}

// Resolver wraps inner so every resolution is counted by outcome.
func (m *Metrics) Resolver(inner routing.RouteResolver) routing.RouteResolver {
	if m == nil {
		return inner
	}
	return instrumentedResolver{inner: inner, m: m}
}

func (r instrumentedResolver) Resolve(ctx context.Context, req routing.ResolveRequest) (routing.ResolvedRoute, error) {
	start := time.Now()
	route, err := r.inner.Resolve(ctx, req)
	r.m.ObserveResolution(req.Direction, err, time.Since(start))
	return route, err
}
