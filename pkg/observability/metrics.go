package observability

import (
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

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreTxRetriesTotal    prometheus.Counter

	// Role resolution metrics
	RoleCacheHitsTotal   prometheus.Counter
	RoleCacheMissesTotal prometheus.Counter
	RoleResolutionsTotal *prometheus.CounterVec

	// Editor request workflow metrics
	RequestsSubmittedTotal *prometheus.CounterVec
	RequestsDecidedTotal   *prometheus.CounterVec
	RequestsExpiredTotal   prometheus.Counter
	RequestsThrottledTotal *prometheus.CounterVec

	// Connection gauges
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	RedisConnectionsActive prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vista_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vista_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vista_store_operations_total",
				Help: "Total number of document store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vista_store_operation_duration_seconds",
				Help:    "Document store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		StoreTxRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vista_store_tx_retries_total",
				Help: "Total number of optimistic transaction retries",
			},
		),

		RoleCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vista_role_cache_hits_total",
				Help: "Total number of role cache hits",
			},
		),
		RoleCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vista_role_cache_misses_total",
				Help: "Total number of role cache misses",
			},
		),
		RoleResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vista_role_resolutions_total",
				Help: "Total number of role resolutions by resulting role",
			},
			[]string{"role"},
		),

		RequestsSubmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vista_editor_requests_submitted_total",
				Help: "Total number of editor access requests submitted",
			},
			[]string{"status"},
		),
		RequestsDecidedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vista_editor_requests_decided_total",
				Help: "Total number of editor access requests decided",
			},
			[]string{"decision"},
		),
		RequestsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vista_editor_requests_expired_total",
				Help: "Total number of stale pending requests expired",
			},
		),
		RequestsThrottledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vista_editor_requests_throttled_total",
				Help: "Total number of submissions rejected by cap or cooldown",
			},
			[]string{"reason"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vista_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vista_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vista_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.StoreTxRetriesTotal,
		m.RoleCacheHitsTotal,
		m.RoleCacheMissesTotal,
		m.RoleResolutionsTotal,
		m.RequestsSubmittedTotal,
		m.RequestsDecidedTotal,
		m.RequestsExpiredTotal,
		m.RequestsThrottledTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RedisConnectionsActive,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
