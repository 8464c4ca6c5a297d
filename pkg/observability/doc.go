// Package observability provides Prometheus metrics, health probes, and
// OpenTelemetry tracing for the service.
//
// Metrics are registered on an explicit registry and exposed on the health
// server's /metrics endpoint:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	observability.RegisterMetricsEndpoint(healthMux, registry)
//
// Health probes check whichever backends are wired (either may be nil):
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// Tracing exports spans over OTLP/gRPC when enabled; InitTracing returns a
// shutdown func that flushes the batch processor.
package observability
