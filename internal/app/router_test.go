package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kid-livraison/parcel/internal/observability"
)

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test"}})

	rec := serve(t, router, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestReadyzWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := NewRouter(RouterParams{
		Config:    &Config{AppEnv: "test"},
		Readiness: []Check{RedisCheck(client)},
	})

	rec := serve(t, router, http.MethodGet, "/readyz")

	require.Equal(t, http.StatusOK, rec.Code)
	var body readiness
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"redis": "up"}, body.Checks)
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := NewRouter(RouterParams{
		Config: &Config{AppEnv: "test"},
		Readiness: []Check{
			RedisCheck(client),
			{Name: "postgres", Ping: func(context.Context) error { return errors.New("connection refused") }},
		},
	})

	rec := serve(t, router, http.MethodGet, "/readyz")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body readiness
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "down", body.Checks["postgres"])
	assert.Equal(t, "up", body.Checks["redis"])
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test"}, Metrics: metrics})

	serve(t, router, http.MethodGet, "/healthz")
	rec := serve(t, router, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `parcel_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test"}})

	rec := serve(t, router, http.MethodGet, "/nowhere")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
