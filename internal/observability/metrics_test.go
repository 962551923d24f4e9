package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `parcel_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `parcel_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveTariffLookup("table")
	metrics.ObserveTariffLookup("default")
	metrics.ObserveTariffLookup("default")
	metrics.PackageRegistered()
	metrics.ObserveTransition("delivered", "DELIVERED")
	metrics.ObserveEnqueue(true)
	metrics.ObserveEnqueue(false)

	body := scrape(t, metrics)
	assert.Contains(t, body, `parcel_tariff_lookups_total{source="default"} 2`)
	assert.Contains(t, body, `parcel_tariff_lookups_total{source="table"} 1`)
	assert.Contains(t, body, `parcel_packages_registered_total 1`)
	assert.Contains(t, body, `parcel_package_transitions_total{event="delivered",status="DELIVERED"} 1`)
	assert.Contains(t, body, `parcel_notifications_enqueued_total{result="error"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveTariffLookup("table")
	metrics.PackageRegistered()
	metrics.ObserveTransition("x", "y")
	metrics.ObserveEnqueue(true)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
