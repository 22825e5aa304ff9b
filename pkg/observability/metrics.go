package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// SSO flow metrics
	SSOLoginsTotal      *prometheus.CounterVec // provider, result
	SSOCallbackDuration *prometheus.HistogramVec
	SSOStatesMinted     *prometheus.CounterVec // provider
	SSOStatesVerified   *prometheus.CounterVec // provider, result
	SSOStatesSwept      prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediakeep_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediakeep_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SSOLoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediakeep_sso_logins_total",
				Help: "SSO login attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		SSOCallbackDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediakeep_sso_callback_duration_seconds",
				Help:    "SSO callback processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		SSOStatesMinted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediakeep_sso_states_minted_total",
				Help: "CSRF state tokens minted by provider",
			},
			[]string{"provider"},
		),
		SSOStatesVerified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediakeep_sso_states_verified_total",
				Help: "CSRF state verification attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		SSOStatesSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mediakeep_sso_states_swept_total",
				Help: "Expired CSRF state rows removed by the periodic sweep",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediakeep_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediakeep_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SSOLoginsTotal,
		m.SSOCallbackDuration,
		m.SSOStatesMinted,
		m.SSOStatesVerified,
		m.SSOStatesSwept,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records HTTP request metrics
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveDBStats records connection pool gauges from database/sql stats
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Middleware instruments an HTTP handler with request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.ObserveRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
