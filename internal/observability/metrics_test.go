package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spmonitor/dashboard/internal/downloads"
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

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/downloads")

	req := httptest.NewRequest(http.MethodGet, "/downloads", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `dashboard_http_requests_total{code="418",route="/downloads"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `dashboard_http_request_duration_seconds_bucket{route="/downloads"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveLoad(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveLoad(downloads.TriggerInitial, nil, 120*time.Millisecond)
	metrics.ObserveLoad(downloads.TriggerReload, &downloads.DataLoadError{URL: "u", Message: "request failed", Err: errors.New("dial")}, time.Second)
	metrics.ObserveLoad(downloads.TriggerReload, &downloads.ConfigurationError{Field: "container name", Message: "is required"}, 0)

	body := scrape(t, metrics)
	for _, want := range []string{
		`dashboard_snapshot_loads_total{result="success",trigger="initial"} 1`,
		`dashboard_snapshot_loads_total{result="failure",trigger="reload"} 1`,
		`dashboard_snapshot_loads_total{result="config",trigger="reload"} 1`,
		`dashboard_snapshot_fetch_duration_seconds_count{trigger="reload"} 2`,
		"dashboard_snapshot_last_success_timestamp_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveLoad(downloads.TriggerInitial, nil, time.Second)
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
