// Package observability exposes the Prometheus registry shared by the dashboard.
package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spmonitor/dashboard/internal/downloads"
)

// Load outcomes used as the result label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultConfig  = "config"
)

// Metrics collects the HTTP and snapshot metrics of the dashboard.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loadsTotal      *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
	lastSuccess     prometheus.Gauge
}

// NewMetrics initialises the registry and the dashboard collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_snapshot_loads_total",
		Help: "Snapshot load attempts by trigger and result.",
	}, []string{"trigger", "result"})
	loadDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_snapshot_fetch_duration_seconds",
		Help:    "Duration of snapshot fetches.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"trigger"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_snapshot_last_success_timestamp_seconds",
		Help: "Unix time of the last successful snapshot load.",
	})
	registry.MustRegister(requests, duration, loads, loadDuration, lastSuccess)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		loadsTotal:      loads,
		loadDuration:    loadDuration,
		lastSuccess:     lastSuccess,
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

// Middleware records request counts and latency per route pattern.
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

// ObserveLoad implements downloads.LoadObserver.
func (m *Metrics) ObserveLoad(trigger string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
		var cfgErr *downloads.ConfigurationError
		if errors.As(err, &cfgErr) {
			result = ResultConfig
		}
	} else {
		m.lastSuccess.SetToCurrentTime()
	}
	m.loadsTotal.WithLabelValues(trigger, result).Inc()
	m.loadDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
