package call

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/middleware"
	"callsubs-backend/pkg/audit"
	"callsubs-backend/pkg/pagination"
	"callsubs-backend/pkg/response"
)

// Service is the part of the call service the handler drives
type Service interface {
	Request(ctx context.Context, viewerID uuid.UUID, slug, message string) (*domain.CallView, error)
	Accept(ctx context.Context, streamerID, callID uuid.UUID) (*domain.CallView, error)
	Reject(ctx context.Context, streamerID, callID uuid.UUID) (*domain.CallView, error)
	Cancel(ctx context.Context, viewerID, callID uuid.UUID) (*domain.CallView, error)
	Complete(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error)
	Get(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error)
	JoinToken(ctx context.Context, userID, callID uuid.UUID) (*domain.JoinTokenResponse, error)
	ListForStreamer(ctx context.Context, streamerID uuid.UUID, statuses []domain.CallStatus, params pagination.Params) (*pagination.Page[*domain.CallView], error)
	ListForViewer(ctx context.Context, viewerID uuid.UUID, statuses []domain.CallStatus, params pagination.Params) (*pagination.Page[*domain.CallView], error)
	Timeline(ctx context.Context, userID, callID uuid.UUID) ([]*audit.AuditEvent, error)
}

// Handler handles call request HTTP requests
type Handler struct {
	callService Service
	now         func() time.Time
}

// NewHandler creates a new call handler
func NewHandler(callService Service) *Handler {
	return &Handler{
		callService: callService,
		now:         time.Now,
	}
}

// Request creates a call request to a streamer
// POST /v1/streamers/:slug/calls
func (h *Handler) Request(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.CreateCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	view, err := h.callService.Request(c.Request.Context(), userID, c.Param("slug"), req.Message)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, view)
}

// Accept moves a pending request to payment
// POST /v1/calls/:id/accept
func (h *Handler) Accept(c *gin.Context) {
	h.act(c, h.callService.Accept)
}

// Reject declines a pending request
// POST /v1/calls/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.act(c, h.callService.Reject)
}

// Cancel withdraws the viewer's own request
// POST /v1/calls/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	h.act(c, h.callService.Cancel)
}

// Complete ends an active call early
// POST /v1/calls/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	h.act(c, h.callService.Complete)
}

// Get returns the caller's view of one call
// GET /v1/calls/:id
func (h *Handler) Get(c *gin.Context) {
	h.act(c, h.callService.Get)
}

func (h *Handler) act(c *gin.Context, fn func(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error)) {
	userID, callID, ok := h.ids(c)
	if !ok {
		return
	}

	view, err := fn(c.Request.Context(), userID, callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// JoinToken issues a room token for an active call
// POST /v1/calls/:id/token
func (h *Handler) JoinToken(c *gin.Context) {
	userID, callID, ok := h.ids(c)
	if !ok {
		return
	}

	token, err := h.callService.JoinToken(c.Request.Context(), userID, callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, token)
}

// Timeline returns the audit trail of one call
// GET /v1/calls/:id/timeline
func (h *Handler) Timeline(c *gin.Context) {
	userID, callID, ok := h.ids(c)
	if !ok {
		return
	}

	events, err := h.callService.Timeline(c.Request.Context(), userID, callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"call_id": callID,
		"events":  events,
	})
}

// ListIncoming lists requests made to the signed-in streamer
// GET /v1/streamers/me/calls
func (h *Handler) ListIncoming(c *gin.Context) {
	h.list(c, h.callService.ListForStreamer)
}

// ListMine lists requests the signed-in viewer made
// GET /v1/users/me/calls
func (h *Handler) ListMine(c *gin.Context) {
	h.list(c, h.callService.ListForViewer)
}

func (h *Handler) list(c *gin.Context, fn func(ctx context.Context, id uuid.UUID, statuses []domain.CallStatus, params pagination.Params) (*pagination.Page[*domain.CallView], error)) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	statuses, ok := parseStatuses(c.QueryArray("status"))
	if !ok {
		response.ValidationError(c, "Invalid status filter")
		return
	}

	page, err := fn(c.Request.Context(), userID, statuses, params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// ServerTime lets clients correct their countdown for clock skew
// GET /v1/time
func (h *Handler) ServerTime(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"server_time": h.now().UnixMilli(),
	})
}

func (h *Handler) ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, uuid.Nil, false
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, callID, true
}

// parseStatuses accepts both ?status=a&status=b and ?status=a,b
func parseStatuses(values []string) ([]domain.CallStatus, bool) {
	var statuses []domain.CallStatus
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status := domain.CallStatus(part)
			if !status.IsValid() {
				return nil, false
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, true
}
