package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"telecom-routing/internal/routing"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "ok", err: nil, want: OutcomeOK},
		{name: "routing code", err: routing.ErrUnknownPlan, want: string(routing.CodeUnknownPlan)},
		{name: "in use", err: &routing.InUseError{Entity: routing.EntityTrunk, ID: "T1", Outbound: 1}, want: string(routing.CodeEntityInUse)},
		{name: "plain", err: errors.New("boom"), want: OutcomeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Outcome(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveResolution(routing.DirectionInbound, nil, time.Millisecond)
	m.ObserveResolution(routing.DirectionInbound, routing.ErrCountryNotAllowedForPlan, time.Millisecond)
	m.ObserveMutation(routing.EntityTrunk, "delete", &routing.InUseError{})
	m.ObserveCache(CacheHit)

	if got := testutil.ToFloat64(m.resolutions.WithLabelValues("inbound", OutcomeOK)); got != 1 {
		t.Fatalf("expected 1 ok resolution, got %v", got)
	}
	if got := testutil.ToFloat64(m.resolutions.WithLabelValues("inbound", string(routing.CodeCountryNotAllowedForPlan))); got != 1 {
		t.Fatalf("expected 1 refused resolution, got %v", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("trunk", "delete", string(routing.CodeEntityInUse))); got != 1 {
		t.Fatalf("expected 1 refused delete, got %v", got)
	}
	if got := testutil.ToFloat64(m.cache.WithLabelValues(CacheHit)); got != 1 {
		t.Fatalf("expected 1 cache hit, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveResolution(routing.DirectionOutbound, nil, 0)
	m.ObserveMutation(routing.EntityPlan, "create", nil)
	m.ObserveProviderCall("twilio", "create_trunk", nil)
	m.ObserveCache(CacheMiss)
}

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(nil)
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/trunks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trunks/T1", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/trunks/:id", "200")); got != 1 {
		t.Fatalf("expected request counted under route template, got %v", got)
	}

	w = httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint to respond, got %d", w.Code)
	}
}
