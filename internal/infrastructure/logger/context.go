package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// TicketKey is the context key for the connector session ticket
	TicketKey contextKey = "ticket"
)

// WithRequestID adds request ID to context and returns enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, RequestIDKey, requestID), logger.With(zap.String("request_id", requestID))
}

// WithTicket adds the session ticket to context and returns enriched logger
func WithTicket(ctx context.Context, logger *zap.Logger, ticket string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, TicketKey, ticket), logger.With(zap.String("ticket", ticket))
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetTicket retrieves the session ticket from context
func GetTicket(ctx context.Context) string {
	if ticket, ok := ctx.Value(TicketKey).(string); ok {
		return ticket
	}
	return ""
}

// GetTraceID extracts the trace ID from the context's span.
// Returns an empty string if no active span exists or trace is invalid.
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// ForContext returns logger enriched with the trace, request and ticket
// fields carried by ctx.
func ForContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if spanCtx.IsValid() {
		logger = logger.With(
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.With(zap.String("request_id", requestID))
	}
	if ticket := GetTicket(ctx); ticket != "" {
		logger = logger.With(zap.String("ticket", ticket))
	}
	return logger
}
