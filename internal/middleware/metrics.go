package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// WebSocket specific metrics
	wsConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	// =========================================================================
	// Business Metrics - presence service
	// =========================================================================

	presenceSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_sessions_active",
			Help: "Number of live presence sessions in this process",
		},
	)

	presenceUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_updates_total",
			Help: "Total number of presence status transitions",
		},
		[]string{"status"},
	)

	presenceReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_reconnect_attempts_total",
			Help: "Total number of presence channel reconnection attempts",
		},
	)

	presenceReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_reaped_rows_total",
			Help: "Total number of stale presence rows demoted by the reaper",
		},
	)
)

// MetricsMiddleware returns a Gin middleware that collects Prometheus metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpRequestsInFlight.Inc()

		c.Next()

		httpRequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns the Prometheus metrics handler for Gin
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordWebSocketConnection increments WebSocket connection counters
func RecordWebSocketConnection() {
	wsConnectionsTotal.Inc()
	wsActiveConnections.Inc()
}

// RecordWebSocketDisconnection decrements active WebSocket connection gauge
func RecordWebSocketDisconnection() {
	wsActiveConnections.Dec()
}

// =============================================================================
// Business Metrics Helper Functions
// =============================================================================

// RecordSessionStarted increments the live session gauge
func RecordSessionStarted() {
	presenceSessionsActive.Inc()
}

// RecordSessionStopped decrements the live session gauge
func RecordSessionStopped() {
	presenceSessionsActive.Dec()
}

// RecordPresenceUpdate counts a status transition
func RecordPresenceUpdate(status string) {
	presenceUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordReconnectAttempt counts a channel reconnection attempt
func RecordReconnectAttempt() {
	presenceReconnectsTotal.Inc()
}

// RecordReapedRows counts rows demoted by the stale-presence reaper
func RecordReapedRows(count float64) {
	presenceReapedTotal.Add(count)
}
