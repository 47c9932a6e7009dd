package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/response"
)

// PoolUsage reports connections in use and the pool maximum
type PoolUsage func() (inUse, max int32)

// DBPoolGuard sheds requests with 503 while the Postgres pool is nearly
// exhausted, instead of queueing them until they time out
func DBPoolGuard(usage PoolUsage, threshold float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		inUse, max := usage()
		if max > 0 && float64(inUse)/float64(max) >= threshold {
			logger.FromContext(c.Request.Context()).Warn("Database connection pool exhausted",
				zap.Int32("in_use", inUse),
				zap.Int32("max_conns", max))
			response.Error(c, http.StatusServiceUnavailable, string(apperrors.ErrCodeServiceUnavail), "Service temporarily unavailable")
			c.Abort()
			return
		}
		c.Next()
	}
}
