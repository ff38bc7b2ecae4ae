package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceIDHeader     = "X-Trace-ID"
	TraceParentHeader = "traceparent"

	// TraceIDKey holds the request's trace id on the gin context.
	TraceIDKey = "trace_id"
)

// GetTraceID picks the id that ties a request's log lines together: the
// active span's trace id, then an inbound traceparent or X-Trace-ID, and
// finally a fresh random id.
func GetTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	// version-trace_id-parent_id-flags
	if tp := c.GetHeader(TraceParentHeader); tp != "" {
		if fields := strings.Split(tp, "-"); len(fields) >= 2 && fields[1] != "" {
			return fields[1]
		}
	}
	if id := c.GetHeader(TraceIDHeader); id != "" {
		return id
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// LoggingMiddleware puts a zerolog logger carrying the trace id into the
// request context and writes one access line per request. Must run after
// TracingMiddleware so span ids are picked up.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()

		id := GetTraceID(c)
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)

		reqLog := log.With().Str(TraceIDKey, id).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		if status >= 500 {
			level = zerolog.ErrorLevel
		} else if status >= 400 {
			level = zerolog.WarnLevel
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reqLog.WithLevel(level).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("uri", c.Request.URL.RequestURI()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(began)).
			Bool("degraded", c.GetBool(DegradedKey)).
			Bool("admin", c.GetBool(AdminKey)).
			Str("client_ip", c.ClientIP()).
			Msg("request served")
	}
}
