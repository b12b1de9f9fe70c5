package httpapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-layer Prometheus instrumentation.
type Metrics struct {
	requestsTotal  *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
	activeRequests prometheus.Gauge
}

// NewMetrics registers the httpapi collectors against reg. Passing a
// fresh *prometheus.Registry (rather than prometheus.DefaultRegisterer)
// keeps repeated NewMetrics calls in tests from panicking on duplicate
// registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "a2rchi_http_requests_total",
			Help: "Total HTTP requests, labeled by method, route, and status.",
		}, []string{"method", "route", "status"}),
		requestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2rchi_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, labeled by method, route, and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		activeRequests: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "a2rchi_http_active_requests",
			Help: "Number of HTTP requests currently being served.",
		}),
	}
	return m
}

// Middleware returns an echo.MiddlewareFunc recording request count,
// latency, and in-flight count.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.activeRequests.Inc()

			err := next(c)

			m.activeRequests.Dec()
			status := c.Response().Status
			labels := prometheus.Labels{
				"method": c.Request().Method,
				"route":  c.Path(),
				"status": statusLabel(status),
			}
			m.requestsTotal.With(labels).Inc()
			m.requestSeconds.With(labels).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
