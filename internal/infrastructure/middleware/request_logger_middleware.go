package middleware

import (
	"context"
	"time"

	"peerline/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestLoggingMiddleware tags every request with an id and logs it on
// completion, carrying whatever identity later middleware put into the
// request context (trace id, authenticated user id).
func RequestLoggingMiddleware(base *zap.Logger) gin.HandlerFunc {
	contextLogger := logger.NewContextLogger(base)

	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		ctx := context.WithValue(c.Request.Context(), "request_id", requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		contextLogger.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			c.FullPath(),
			c.Writer.Status(),
			time.Since(start).Milliseconds(),
		)
	}
}
