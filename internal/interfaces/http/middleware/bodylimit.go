package middleware

import (
	"net/http"

	"github.com/erp/qbconnector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit rejects requests whose declared length exceeds maxBytes and caps
// the body reader for chunked uploads. Web Connector responses can be large,
// so the limit comes from http.max_body_size.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest,
				"Request body exceeds maximum allowed size",
				getRequestID(c),
			))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
