package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	authzDecisions     *prometheus.CounterVec
	authzCache         *prometheus.CounterVec
	authzInvalidations prometheus.Counter
	transitions        *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
}

// NewMetrics initialises the registry and the core collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talentdesk_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "talentdesk_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talentdesk_authz_decisions_total",
		Help: "Permission decisions by source (override, role, default) and outcome.",
	}, []string{"source", "allowed"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talentdesk_authz_cache_lookups_total",
		Help: "Permission cache lookups by result.",
	}, []string{"result"})
	invalidations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talentdesk_authz_cache_invalidations_total",
		Help: "Full permission cache invalidations.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talentdesk_workflow_transitions_total",
		Help: "Workflow transitions by entity kind and outcome.",
	}, []string{"kind", "outcome"})
	effects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talentdesk_workflow_side_effect_failures_total",
		Help: "Side effects that failed after a committed transition.",
	}, []string{"effect"})
	registry.MustRegister(requests, duration, decisions, cache, invalidations, transitions, effects)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		authzDecisions:     decisions,
		authzCache:         cache,
		authzInvalidations: invalidations,
		transitions:        transitions,
		sideEffectFailures: effects,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveDecision counts a resolved permission decision.
func (m *Metrics) ObserveDecision(source string, allowed, cacheHit bool) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(source, strconv.FormatBool(allowed)).Inc()
	result := "miss"
	if cacheHit {
		result = "hit"
	}
	m.authzCache.WithLabelValues(result).Inc()
}

// ObserveInvalidation counts a full cache clear.
func (m *Metrics) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.authzInvalidations.Inc()
}

// ObserveTransition counts a workflow transition attempt by outcome.
func (m *Metrics) ObserveTransition(kind, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, outcome).Inc()
}

// ObserveSideEffectFailure counts a swallowed side effect failure.
func (m *Metrics) ObserveSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(effect).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
