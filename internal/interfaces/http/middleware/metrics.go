package middleware

import (
	"time"

	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"github.com/erp/qbconnector/internal/interfaces/soap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig holds configuration for HTTP metrics middleware.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	Enabled       bool
}

type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	requestSize     *telemetry.Histogram
	responseSize    *telemetry.Histogram
	activeRequests  metric.Int64UpDownCounter
}

// Size buckets reach into megabytes; a full customer query response is that large.
var sizeBuckets = []float64{100, 1000, 10000, 100000, 500000, 1000000, 5000000, 10000000}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requestTotal, err := telemetry.NewCounter(meter,
		"http_server_request_total",
		"Total number of HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	requestSize, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "HTTP request body size distribution in bytes",
		Unit:        "By",
		Boundaries:  sizeBuckets,
	})
	if err != nil {
		return nil, err
	}

	responseSize, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size distribution in bytes",
		Unit:        "By",
		Boundaries:  sizeBuckets,
	})
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestSize:     requestSize,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
	}, nil
}

// HTTPMetrics returns a Gin middleware that records request count, latency,
// body sizes and in-flight requests. SOAP calls are labelled with their
// operation so the Web Connector round trip can be broken down per call.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil {
		return passThrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"))
}

// HTTPMetricsWithMeter returns HTTP metrics middleware using an existing meter.
func HTTPMetricsWithMeter(meter metric.Meter) gin.HandlerFunc {
	metrics, err := newHTTPMetrics(meter)
	if err != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		metrics.activeRequests.Add(ctx, 1)
		c.Next()
		metrics.activeRequests.Add(ctx, -1)

		base := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(routePattern(c)),
		}
		if action := c.GetString(soap.ActionKey); action != "" {
			base = append(base, telemetry.AttrSOAPAction.String(action))
		}

		metrics.requestTotal.Inc(ctx, append(base, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))...)
		metrics.requestDuration.RecordDuration(ctx, time.Since(start), base...)
		if size := c.Request.ContentLength; size > 0 {
			metrics.requestSize.Record(ctx, float64(size), base...)
		}
		if size := c.Writer.Size(); size > 0 {
			metrics.responseSize.Record(ctx, float64(size), base...)
		}
	}
}

// routePattern returns the matched route, never the raw path
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

func passThrough(c *gin.Context) {
	c.Next()
}
