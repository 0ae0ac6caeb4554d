package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinMiddleware returns a gin middleware that logs HTTP requests.
// The request-scoped logger is stored in both the gin context and the request context.
func GinMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID, _ := c.Get("request_id")
		requestIDStr, _ := requestID.(string)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		}
		if action := soapAction(c); action != "" {
			fields = append(fields, zap.String("soap_action", action))
		}
		base := logger.With(fields...)

		ctx, reqLogger := WithRequestID(c.Request.Context(), base, requestIDStr)
		c.Request = c.Request.WithContext(ctx)
		c.Set("logger", reqLogger)

		c.Next()

		status := c.Writer.Status()
		result := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if query != "" {
			result = append(result, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			result = append(result, zap.Strings("errors", c.Errors.Errors()))
		}

		msg := "HTTP Request"
		switch {
		case status >= 500:
			reqLogger.Error(msg, result...)
		case status >= 400:
			reqLogger.Warn(msg, result...)
		default:
			reqLogger.Info(msg, result...)
		}
	}
}

// soapAction returns the operation name from the SOAPAction header, if any
func soapAction(c *gin.Context) string {
	action := strings.Trim(c.GetHeader("SOAPAction"), `"`)
	if i := strings.LastIndex(action, "/"); i >= 0 {
		action = action[i+1:]
	}
	return action
}

// Recovery returns a gin middleware that recovers from panics and logs them
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get("request_id")
				requestIDStr, _ := requestID.(string)

				logger.Error("Panic recovered",
					zap.String("request_id", requestIDStr),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.Stack("stacktrace"),
				)

				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}

// GetGinLogger retrieves the logger from gin context
func GetGinLogger(c *gin.Context) *zap.Logger {
	if logger, exists := c.Get("logger"); exists {
		if l, ok := logger.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
