package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidState ErrorCode = "INVALID_OAUTH_STATE"

	// Authorization errors
	ErrCodeForbidden   ErrorCode = "FORBIDDEN"
	ErrCodeNotEligible ErrorCode = "NOT_ELIGIBLE"

	// Not found errors
	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeStreamerNotFound ErrorCode = "STREAMER_NOT_FOUND"
	ErrCodeCallNotFound     ErrorCode = "CALL_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeSlugTaken         ErrorCode = "SLUG_TAKEN"

	// Rate limiting errors
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Upstream errors
	ErrCodePayment      ErrorCode = "PAYMENT_ERROR"
	ErrCodeVideo        ErrorCode = "VIDEO_ERROR"
	ErrCodePayoutsSetup ErrorCode = "PAYOUTS_NOT_READY"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase       ErrorCode = "DATABASE_ERROR"
	ErrCodeStorage        ErrorCode = "STORAGE_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError is a failure the API reports to clients as {code, message}.
// Err keeps the cause for logs and is never serialized.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

// PayloadTooLargeError rejects a body over limit bytes
func PayloadTooLargeError(limit int64) *AppError {
	return NewWithStatus(ErrCodePayloadTooLarge,
		fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

// Authentication errors
func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

func InvalidOAuthStateError() *AppError {
	return NewWithStatus(ErrCodeInvalidState, "Sign-in session expired, please try again", http.StatusBadRequest)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

// NotEligibleError reports that a viewer may not request a call right now
func NotEligibleError(reason string) *AppError {
	return NewWithStatus(ErrCodeNotEligible, reason, http.StatusForbidden)
}

// Not found errors
func UserNotFoundError() *AppError {
	return NewWithStatus(ErrCodeUserNotFound, "User not found", http.StatusNotFound)
}

func StreamerNotFoundError() *AppError {
	return NewWithStatus(ErrCodeStreamerNotFound, "Streamer not found", http.StatusNotFound)
}

func CallNotFoundError() *AppError {
	return NewWithStatus(ErrCodeCallNotFound, "Call request not found", http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

// InvalidTransitionError reports a status change that is not allowed from the current status
func InvalidTransitionError(from, to string) *AppError {
	return NewWithStatus(ErrCodeInvalidTransition,
		fmt.Sprintf("Call request cannot move from %s to %s", from, to), http.StatusConflict)
}

func SlugTakenError() *AppError {
	return NewWithStatus(ErrCodeSlugTaken, "Profile URL already taken", http.StatusConflict)
}

// Rate limiting errors
func RateLimitExceededError() *AppError {
	return NewWithStatus(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// Upstream errors
func PaymentError(err error) *AppError {
	return WrapWithStatus(ErrCodePayment, "Payment provider error", http.StatusBadGateway, err)
}

func VideoError(err error) *AppError {
	return WrapWithStatus(ErrCodeVideo, "Video provider error", http.StatusBadGateway, err)
}

// PayoutsNotReadyError means the streamer cannot take payments until Stripe
// onboarding is finished
func PayoutsNotReadyError() *AppError {
	return NewWithStatus(ErrCodePayoutsSetup,
		"Streamer has not finished payout setup", http.StatusConflict)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return WrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

func StorageError(err error) *AppError {
	return WrapWithStatus(ErrCodeStorage, "Storage error", http.StatusInternalServerError, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// HasCode reports whether the error chain contains an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as a generic InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return WrapWithStatus(ErrCodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
