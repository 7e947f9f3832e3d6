package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pricecycle/backend/internal/infrastructure/logger"
	"github.com/pricecycle/backend/internal/infrastructure/telemetry"
)

// Tracing wraps otelgin and tags the server span with the request id and
// the authenticated subject. Span names follow "METHOD route".
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}

	return otelgin.Middleware(serviceName)
}

// SpanEnricher runs inside the otelgin span. Installed after RequestID and
// auth it sees their values, and marks 5xx responses as span errors.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(telemetry.AttrRequestID.String(requestID))
		}
		if subject := logger.GetSubject(c.Request.Context()); subject != "" {
			span.SetAttributes(telemetry.AttrSubject.String(subject))
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
