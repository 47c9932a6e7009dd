package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/middleware"
	"callsubs-backend/internal/service/auth"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/response"
)

// Service is the part of the auth service the handler drives
type Service interface {
	BeginLogin(ctx context.Context) (string, error)
	CompleteLogin(ctx context.Context, input *auth.CallbackInput) (*auth.LoginOutput, error)
	CompletionRedirect(out *auth.LoginOutput) string
	ErrorRedirect(code string) string
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error)
	Logout(ctx context.Context, userID uuid.UUID, accessToken, refreshToken, ipAddress string) error
	Me(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error)
}

// Handler handles HTTP requests for authentication
type Handler struct {
	authService Service
}

// NewHandler creates a new auth handler
func NewHandler(authService Service) *Handler {
	return &Handler{
		authService: authService,
	}
}

// LogoutRequest optionally carries the refresh token to revoke with the session
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login redirects the browser to the Twitch consent screen
// GET /v1/auth/twitch/login
func (h *Handler) Login(c *gin.Context) {
	consentURL, err := h.authService.BeginLogin(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.Redirect(http.StatusFound, consentURL)
}

// Callback finishes the Twitch sign-in and hands the tokens to the frontend.
// Failures also redirect so the user lands on a page that can explain them.
// GET /v1/auth/twitch/callback
func (h *Handler) Callback(c *gin.Context) {
	if twitchErr := c.Query("error"); twitchErr != "" {
		logger.FromContext(c.Request.Context()).Info("Twitch sign-in declined",
			zap.String("error", twitchErr))
		c.Redirect(http.StatusFound, h.authService.ErrorRedirect("access_denied"))
		return
	}

	output, err := h.authService.CompleteLogin(c.Request.Context(), &auth.CallbackInput{
		State:     c.Query("state"),
		Code:      c.Query("code"),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		appErr := apperrors.GetAppError(err)
		if appErr.StatusCode >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("Twitch sign-in failed", zap.Error(err))
		}
		c.Redirect(http.StatusFound, h.authService.ErrorRedirect(string(appErr.Code)))
		return
	}

	c.Redirect(http.StatusFound, h.authService.CompletionRedirect(output))
}

// Refresh rotates the refresh token and issues a new pair
// POST /v1/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	output, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// Logout revokes the current session
// POST /v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	// The body is optional
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	err := h.authService.Logout(c.Request.Context(), userID,
		middleware.GetAccessToken(c), req.RefreshToken, c.ClientIP())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

// Me returns the signed-in user
// GET /v1/users/me
func (h *Handler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	user, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}
