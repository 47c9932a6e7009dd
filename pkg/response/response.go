// Package response writes the JSON envelope every API endpoint returns.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
)

// Response is the envelope around every payload and error
type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Meta    Meta         `json:"meta"`
}

// ErrorDetail is the client-facing part of an AppError
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Success writes data with the given status
func Success(c *gin.Context, statusCode int, data interface{}) {
	write(c, statusCode, Response{Success: true, Data: data})
}

// Error writes a failure envelope for handlers that reject input before
// reaching a service
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	write(c, statusCode, Response{Error: &ErrorDetail{Code: errorCode, Message: errorMessage}})
}

// FromError maps a service error onto the envelope. 5xx causes are logged and
// never echoed to the client.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)

	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}

	write(c, appErr.StatusCode, Response{Error: &ErrorDetail{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}

// ValidationError writes 400 VALIDATION_ERROR
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, string(apperrors.ErrCodeValidation), message)
}

// Unauthorized writes 401 UNAUTHORIZED
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, string(apperrors.ErrCodeUnauthorized), message)
}

// InternalError writes 500 INTERNAL_ERROR
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), message)
}

func write(c *gin.Context, statusCode int, resp Response) {
	resp.Meta = Meta{Timestamp: time.Now().UTC()}
	if id, ok := c.Get("request_id"); ok {
		resp.Meta.RequestID, _ = id.(string)
	}
	c.JSON(statusCode, resp)
}
