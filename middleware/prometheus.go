package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	degradedResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_degraded_responses_total",
		Help: "Read responses served from the fallback snapshot.",
	}, []string{"path"})
)

// PrometheusMiddleware records request counts and latency per route
// template, so path parameters do not explode label cardinality.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		if c.GetBool(DegradedKey) {
			degradedResponsesTotal.WithLabelValues(path).Inc()
		}
	}
}

// DegradedKey is set on the gin context by handlers that answered from the
// fallback snapshot.
const DegradedKey = "degraded"
