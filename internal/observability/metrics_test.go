package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordPosting("invoice_sent")
	metrics.RecordPostingRejected("unbalanced")
	metrics.RecordRecurringGenerated()
	metrics.RecordReconcileDrift(3)

	body := scrape(t, metrics)
	if !strings.Contains(body, `gavelworks_ledger_postings_total{source_type="invoice_sent"} 1`) {
		t.Fatalf("expected posting counter, got: %s", body)
	}
	if !strings.Contains(body, `gavelworks_ledger_postings_rejected_total{reason="unbalanced"} 1`) {
		t.Fatalf("expected rejection counter, got: %s", body)
	}
	if !strings.Contains(body, "gavelworks_recurring_generated_total 1") {
		t.Fatalf("expected recurring counter, got: %s", body)
	}
	if !strings.Contains(body, "gavelworks_reconcile_drift_total 3") {
		t.Fatalf("expected drift counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "gavelworks_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "gavelworks_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordPosting("x")
	metrics.RecordPostingRejected("x")
	metrics.RecordRecurringGenerated()
	metrics.RecordRecurringFailed("conflict")
	metrics.RecordAdapterDefect("x")
	metrics.RecordReconcileDrift(1)

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
