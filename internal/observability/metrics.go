// Package observability owns the Prometheus registry, the HTTP metrics
// middleware and the domain counters recorded by the service packages.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	tariffLookups       *prometheus.CounterVec
	packagesRegistered  prometheus.Counter
	transitions         *prometheus.CounterVec
	notificationsQueued *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parcel_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_tariff_lookups_total",
		Help: "Tariff computations partitioned by where the base price came from.",
	}, []string{"source"})
	registered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_packages_registered_total",
		Help: "Packages registered.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_package_transitions_total",
		Help: "Package status transitions partitioned by event and resulting status.",
	}, []string{"event", "status"})
	queued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_notifications_enqueued_total",
		Help: "Notification enqueue attempts partitioned by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, lookups, registered, transitions, queued)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		tariffLookups:       lookups,
		packagesRegistered:  registered,
		transitions:         transitions,
		notificationsQueued: queued,
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
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

// Registerer exposes the registry for collectors owned by other packages.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Gatherer exposes the registry for tests and the worker health endpoint.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.registry
}

// ObserveTariffLookup counts one tariff computation by base-price source.
func (m *Metrics) ObserveTariffLookup(source string) {
	if m == nil {
		return
	}
	m.tariffLookups.WithLabelValues(source).Inc()
}

// PackageRegistered counts one committed package registration.
func (m *Metrics) PackageRegistered() {
	if m == nil {
		return
	}
	m.packagesRegistered.Inc()
}

// ObserveTransition counts one committed status transition.
func (m *Metrics) ObserveTransition(event, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, status).Inc()
}

// ObserveEnqueue counts notification enqueue attempts.
func (m *Metrics) ObserveEnqueue(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notificationsQueued.WithLabelValues(result).Inc()
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
