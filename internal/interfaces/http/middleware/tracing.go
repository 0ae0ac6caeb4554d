// Package middleware provides the gin middleware shared by the SOAP endpoint
// and the task API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// TracingWithConfig wraps otelgin and adds request_id and the token subject
// to the server span once the request has been handled.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}

	base := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		// otelgin runs the rest of the chain before returning
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpan(c, span)
		}
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := getRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if subject := GetJWTSubject(c); subject != "" {
		span.SetAttributes(attribute.String("auth.subject", subject))
	}
}

// SpanErrorMarker marks the active span as failed for 4xx/5xx responses.
// Place it after TracingWithConfig.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetStatus(codes.Error, http.StatusText(status))
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}
