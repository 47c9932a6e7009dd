package streamer

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/middleware"
	"callsubs-backend/pkg/pagination"
	"callsubs-backend/pkg/response"
)

// Service is the part of the streamer service the handler drives
type Service interface {
	Become(ctx context.Context, userID uuid.UUID, slug string) (*domain.StreamerResponse, error)
	Me(ctx context.Context, userID uuid.UUID) (*domain.StreamerResponse, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, req *domain.UpdateSettingsRequest) (*domain.StreamerResponse, error)
	SetAvailability(ctx context.Context, userID uuid.UUID, accepting bool) (*domain.StreamerResponse, error)
	PublicProfile(ctx context.Context, slug string) (*domain.PublicProfile, error)
	ListAccepting(ctx context.Context, params pagination.Params) (*pagination.Page[*domain.PublicProfile], error)
	StartOnboarding(ctx context.Context, userID uuid.UUID) (*domain.OnboardingResponse, error)
	StripeStatus(ctx context.Context, userID uuid.UUID) (*domain.StripeStatusResponse, error)
	BlockCaller(ctx context.Context, streamerID, viewerID uuid.UUID) error
	UnblockCaller(ctx context.Context, streamerID, viewerID uuid.UUID) error
}

// Handler handles streamer profile HTTP requests
type Handler struct {
	streamerService Service
}

// NewHandler creates a new streamer handler
func NewHandler(streamerService Service) *Handler {
	return &Handler{
		streamerService: streamerService,
	}
}

// Become creates the caller's streamer profile
// POST /v1/streamers
func (h *Handler) Become(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.CreateStreamerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	profile, err := h.streamerService.Become(c.Request.Context(), userID, req.Slug)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, profile)
}

// Me returns the caller's own streamer profile
// GET /v1/streamers/me
func (h *Handler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	profile, err := h.streamerService.Me(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// UpdateSettings changes price, duration and eligibility rules
// PUT /v1/streamers/me/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	profile, err := h.streamerService.UpdateSettings(c.Request.Context(), userID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// SetAvailability opens or closes the request queue
// POST /v1/streamers/me/availability
func (h *Handler) SetAvailability(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	profile, err := h.streamerService.SetAvailability(c.Request.Context(), userID, *req.AcceptingCalls)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// PublicProfile returns the page a viewer sees before requesting a call
// GET /v1/streamers/:slug
func (h *Handler) PublicProfile(c *gin.Context) {
	profile, err := h.streamerService.PublicProfile(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// List returns streamers currently accepting calls
// GET /v1/streamers
func (h *Handler) List(c *gin.Context) {
	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	page, err := h.streamerService.ListAccepting(c.Request.Context(), params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// StartOnboarding returns a Stripe Connect onboarding link
// POST /v1/streamers/me/stripe/onboard
func (h *Handler) StartOnboarding(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	link, err := h.streamerService.StartOnboarding(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, link)
}

// StripeStatus refreshes and returns the Connect account state
// GET /v1/streamers/me/stripe/status
func (h *Handler) StripeStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	status, err := h.streamerService.StripeStatus(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// BlockCaller stops a viewer from requesting calls
// POST /v1/streamers/me/callers/:viewer_id/block
func (h *Handler) BlockCaller(c *gin.Context) {
	h.setBlocked(c, true)
}

// UnblockCaller lifts a block
// POST /v1/streamers/me/callers/:viewer_id/unblock
func (h *Handler) UnblockCaller(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *Handler) setBlocked(c *gin.Context, blocked bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	viewerID, err := uuid.Parse(c.Param("viewer_id"))
	if err != nil {
		response.ValidationError(c, "Invalid viewer ID")
		return
	}

	if blocked {
		err = h.streamerService.BlockCaller(c.Request.Context(), userID, viewerID)
	} else {
		err = h.streamerService.UnblockCaller(c.Request.Context(), userID, viewerID)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"viewer_id": viewerID,
		"blocked":   blocked,
	})
}
