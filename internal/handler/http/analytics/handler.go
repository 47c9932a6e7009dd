package analytics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/middleware"
	"callsubs-backend/internal/service/analytics"
	"callsubs-backend/pkg/response"
)

// Service is the part of the analytics service the handler drives
type Service interface {
	Get(ctx context.Context, streamerID uuid.UUID, days int) (*domain.Analytics, error)
	Export(ctx context.Context, streamerID uuid.UUID, days int) (*analytics.Export, error)
}

// Handler handles streamer analytics HTTP requests
type Handler struct {
	analyticsService Service
}

// NewHandler creates a new analytics handler
func NewHandler(analyticsService Service) *Handler {
	return &Handler{
		analyticsService: analyticsService,
	}
}

// Get returns the earnings dashboard
// GET /v1/streamers/me/analytics?days=30
func (h *Handler) Get(c *gin.Context) {
	userID, days, ok := h.params(c)
	if !ok {
		return
	}

	result, err := h.analyticsService.Get(c.Request.Context(), userID, days)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Export downloads the call history. The CSV is streamed directly unless
// object storage is configured, in which case a presigned link is returned.
// GET /v1/streamers/me/calls/export?days=30
func (h *Handler) Export(c *gin.Context) {
	userID, days, ok := h.params(c)
	if !ok {
		return
	}

	export, err := h.analyticsService.Export(c.Request.Context(), userID, days)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if export.Link != nil {
		response.Success(c, http.StatusOK, export.Link)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", export.CSV)
}

func (h *Handler) params(c *gin.Context) (uuid.UUID, int, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, 0, false
	}

	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.ValidationError(c, "days must be a number")
			return uuid.Nil, 0, false
		}
		days = parsed
	}

	return userID, days, true
}
