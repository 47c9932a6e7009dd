package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/jwt"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/response"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID = "user_id"
	ContextLogin  = "login"
	ContextRole   = "role"
	ContextToken  = "access_token"
)

// RevocationChecker reports whether a token ID was blacklisted at logout
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthMiddleware validates the access token and stores the caller in the
// Gin context. Browsers cannot set headers on WebSocket upgrades, so the
// token is also accepted as the access_token query parameter.
// revocationChecker may be nil.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, string(apperrors.ErrCodeInvalidToken), "Invalid or expired token")
			c.Abort()
			return
		}

		if revocationChecker != nil && claims.ID != "" {
			revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				// Fail open: the signature and expiry already checked out
				logger.FromContext(c.Request.Context()).Warn("Token revocation check failed",
					zap.Error(err))
			} else if revoked {
				response.Error(c, http.StatusUnauthorized, string(apperrors.ErrCodeInvalidToken), "Token revoked")
				c.Abort()
				return
			}
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextLogin, claims.Login)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextToken, tokenString)
		c.Request = c.Request.WithContext(logger.WithFields(c.Request.Context(),
			zap.String("user_id", claims.UserID.String())))
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if token := c.Query("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// GetUserID returns the authenticated user ID
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

// GetAccessToken returns the raw access token of the request
func GetAccessToken(c *gin.Context) string {
	return c.GetString(ContextToken)
}
