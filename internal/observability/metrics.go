// Package observability wires Prometheus metrics for the HTTP surface and
// the ledger domain counters.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	postingsTotal      *prometheus.CounterVec
	postingsRejected   *prometheus.CounterVec
	recurringGenerated prometheus.Counter
	recurringFailed    *prometheus.CounterVec
	adapterDefects     *prometheus.CounterVec
	reconcileDrift     prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and ledger metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gavelworks_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gavelworks_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gavelworks_ledger_postings_total",
		Help: "Journal entries posted, by source type.",
	}, []string{"source_type"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gavelworks_ledger_postings_rejected_total",
		Help: "Posting attempts rejected by the journal engine, by reason.",
	}, []string{"reason"})
	recurringGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gavelworks_recurring_generated_total",
		Help: "Journal entries generated from recurring templates.",
	})
	recurringFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gavelworks_recurring_failed_total",
		Help: "Recurring generation failures, by kind.",
	}, []string{"kind"})
	adapterDefects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gavelworks_adapter_defects_total",
		Help: "Source-document adapters producing entries the engine rejects.",
	}, []string{"source_type"})
	reconcileDrift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gavelworks_reconcile_drift_total",
		Help: "Account balances repaired by the reconciliation job.",
	})
	registry.MustRegister(requests, duration, postings, rejected,
		recurringGenerated, recurringFailed, adapterDefects, reconcileDrift)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		postingsTotal:      postings,
		postingsRejected:   rejected,
		recurringGenerated: recurringGenerated,
		recurringFailed:    recurringFailed,
		adapterDefects:     adapterDefects,
		reconcileDrift:     reconcileDrift,
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

// Middleware records request count and duration for every HTTP request.
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

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// RecordPosting counts a successful journal posting.
func (m *Metrics) RecordPosting(sourceType string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(sourceType).Inc()
}

// RecordPostingRejected counts a rejected posting attempt.
func (m *Metrics) RecordPostingRejected(reason string) {
	if m == nil {
		return
	}
	m.postingsRejected.WithLabelValues(reason).Inc()
}

// RecordRecurringGenerated counts an entry generated from a template.
func (m *Metrics) RecordRecurringGenerated() {
	if m == nil {
		return
	}
	m.recurringGenerated.Inc()
}

// RecordRecurringFailed counts a failed generation attempt.
func (m *Metrics) RecordRecurringFailed(kind string) {
	if m == nil {
		return
	}
	m.recurringFailed.WithLabelValues(kind).Inc()
}

// RecordAdapterDefect counts an adapter building an invalid entry.
func (m *Metrics) RecordAdapterDefect(sourceType string) {
	if m == nil {
		return
	}
	m.adapterDefects.WithLabelValues(sourceType).Inc()
}

// RecordReconcileDrift counts balances the reconciler repaired.
func (m *Metrics) RecordReconcileDrift(count int) {
	if m == nil {
		return
	}
	m.reconcileDrift.Add(float64(count))
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
