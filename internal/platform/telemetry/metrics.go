// Package telemetry exposes Prometheus metrics for the HTTP surface and the
// scheduling workspaces.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry           *prometheus.Registry
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
	repositoryFailures *prometheus.CounterVec
	workspaces         prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appointments",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		repositoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "scheduling",
			Name:      "repository_failures_total",
			Help:      "Failed repository calls issued by scheduling workspaces.",
		}, []string{"op"}),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "appointments",
			Subsystem: "scheduling",
			Name:      "active_workspaces",
			Help:      "Doctors with a loaded scheduling workspace.",
		}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpLatency, m.repositoryFailures, m.workspaces,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RepositoryFailure counts a failed repository call.
func (m *Metrics) RepositoryFailure(op string) {
	if m == nil {
		return
	}
	m.repositoryFailures.WithLabelValues(op).Inc()
}

// WorkspaceOpened and WorkspaceClosed track the active workspace gauge.
func (m *Metrics) WorkspaceOpened() {
	if m == nil {
		return
	}
	m.workspaces.Inc()
}

func (m *Metrics) WorkspaceClosed() {
	if m == nil {
		return
	}
	m.workspaces.Dec()
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			code := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					code = he.Code
				} else {
					code = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			m.httpLatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
