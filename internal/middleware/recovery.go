package middleware

import (
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callsubs-backend/pkg/response"
)

// Recovery logs panics with their stack and answers with the standard
// error envelope
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return ginzap.CustomRecoveryWithZap(log, true, func(c *gin.Context, err any) {
		response.InternalError(c, "Internal server error")
		c.Abort()
	})
}
