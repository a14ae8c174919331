// Package monitoring provides Prometheus metrics for FLEETWATCH-CORE.
//
// Usage:
//
//  1. Mount the metrics endpoint on the gin router:
//     monitoring.SetupPrometheusMetrics(router, "/metrics")
//
//  2. Add the HTTP metrics middleware:
//     router.Use(monitoring.HTTPMetricsMiddleware())
//
//  3. Record engine events from components:
//     monitoring.RecordSampleIngested("cpu", "ok")
//     monitoring.RecordAlertTransition("created", "critical")
//     monitoring.RecordInsight("prediction", "high")
//     monitoring.RecordAnalysisDuration("timeseries", time.Since(start))
//     monitoring.RecordStoreOperation("create_alert", "error")
//     monitoring.RecordCacheOperation("get", "hit")
package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_core_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_core_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	samplesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_core_samples_ingested_total",
			Help: "Total number of telemetry samples processed by the ingestion pipeline",
		},
		[]string{"metric", "status"},
	)

	alertTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_core_alert_transitions_total",
			Help: "Total number of alert lifecycle transitions by action",
		},
		[]string{"action", "severity"},
	)

	insightsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_core_insights_total",
			Help: "Total number of insights generated",
		},
		[]string{"type", "severity"},
	)

	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_core_analysis_duration_seconds",
			Help:    "Duration of analytics stages in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_core_store_operations_total",
			Help: "Total number of telemetry store operations",
		},
		[]string{"operation", "status"},
	)

	cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_core_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_core_errors_total",
			Help: "Total number of non-fatal errors by component",
		},
		[]string{"component"},
	)

	streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_core_stream_clients",
			Help: "Number of connected alert-stream websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		samplesIngestedTotal,
		alertTransitionsTotal,
		insightsTotal,
		analysisDuration,
		storeOperationsTotal,
		cacheOperationsTotal,
		errorsTotal,
		streamClients,
	)
}

// SetupPrometheusMetrics mounts the metrics endpoint on the router.
func SetupPrometheusMetrics(router *gin.Engine, path string) {
	if path == "" {
		path = "/metrics"
	}
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		httpRequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// RecordSampleIngested counts one sample through the pipeline; status is one
// of ok, invalid, alert_error.
func RecordSampleIngested(metric, status string) {
	samplesIngestedTotal.WithLabelValues(metric, status).Inc()
}

// RecordAlertTransition counts one lifecycle decision.
func RecordAlertTransition(action, severity string) {
	alertTransitionsTotal.WithLabelValues(action, severity).Inc()
}

// RecordInsight counts one generated insight.
func RecordInsight(insightType, severity string) {
	insightsTotal.WithLabelValues(insightType, severity).Inc()
}

// RecordAnalysisDuration observes how long an analytics stage took.
func RecordAnalysisDuration(stage string, d time.Duration) {
	analysisDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStoreOperation counts a telemetry store call; status is success or error.
func RecordStoreOperation(operation, status string) {
	storeOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCacheOperation counts a cache call; result is hit, miss, success,
// error or conflict.
func RecordCacheOperation(operation, result string) {
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordError counts a non-fatal error attributed to a component.
func RecordError(component string) {
	errorsTotal.WithLabelValues(component).Inc()
}

// SetStreamClients tracks the websocket client gauge.
func SetStreamClients(n int) {
	streamClients.Set(float64(n))
}
