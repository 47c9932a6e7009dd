package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/response"
)

// TimeoutRecorder counts requests that ran out of time
type TimeoutRecorder interface {
	RecordRequestTimeout(method, endpoint string)
}

// Timeout puts a deadline on the request context. Handlers pass that
// context down, so database and vendor calls give up at the deadline and
// the handler answers 504 if it has not written anything yet.
func Timeout(timeout time.Duration, recorder TimeoutRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}

		if recorder != nil {
			recorder.RecordRequestTimeout(c.Request.Method, c.FullPath())
		}
		logger.FromContext(ctx).Warn("Request timed out",
			zap.Duration("timeout", timeout),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()))

		if !c.Writer.Written() {
			response.Error(c, http.StatusGatewayTimeout, "REQUEST_TIMEOUT", "Request timed out")
			c.Abort()
		}
	}
}
