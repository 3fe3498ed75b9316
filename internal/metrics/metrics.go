package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telecom-routing/internal/routing"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"

	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheBypass   = "bypass"
	CacheShared   = "shared"
	CacheFailOpen = "fail_open"
)

// Metrics holds the service instruments. A nil *Metrics is valid and records
// nothing, so components can run without a registry in tests.
type Metrics struct {
	registry prometheus.Gatherer

	resolutions     *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	provider        *prometheus.CounterVec
	cache           *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers every instrument with reg. A fresh registry is created when
// reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_resolutions_total",
			Help: "Route resolutions by call direction and outcome code.",
		}, []string{"direction", "outcome"}),
		resolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routing_resolution_duration_seconds",
			Help:    "Route resolution latency.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"direction"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_admin_mutations_total",
			Help: "Configuration mutations by entity, action and result.",
		}, []string{"entity", "action", "result"}),
		provider: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_provider_calls_total",
			Help: "SIP provider provisioning calls by provider, operation and result.",
		}, []string{"provider", "op", "result"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_cache_lookups_total",
			Help: "Resolution cache lookups by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		m.resolutions, m.resolveDuration, m.mutations, m.provider, m.cache,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome labels err by its routing code.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := routing.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}

func (m *Metrics) ObserveResolution(dir routing.Direction, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(dir), Outcome(err)).Inc()
	m.resolveDuration.WithLabelValues(string(dir)).Observe(d.Seconds())
}

func (m *Metrics) ObserveMutation(entity routing.EntityKind, action string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(entity), action, Outcome(err)).Inc()
}

func (m *Metrics) ObserveProviderCall(provider, op string, err error) {
	if m == nil {
		return
	}
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	m.provider.WithLabelValues(provider, op, result).Inc()
}

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}
