package ws

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/middleware"
	redisrepo "callsubs-backend/internal/repository/redis"
	"callsubs-backend/pkg/clock"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/response"
)

// CallAuthorizer returns the caller's view of a call, failing for non-participants
type CallAuthorizer interface {
	Authorize(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error)
}

// StreamerProfiles returns the signed-in streamer's own profile
type StreamerProfiles interface {
	Me(ctx context.Context, userID uuid.UUID) (*domain.StreamerResponse, error)
}

// PresenceTracker marks streamers online while their dashboard is open
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
}

// EventsHandler serves the call status and streamer dashboard streams
type EventsHandler struct {
	hub       *Hub
	calls     CallAuthorizer
	streamers StreamerProfiles
	presence  PresenceTracker
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *Hub, calls CallAuthorizer, streamers StreamerProfiles, presence PresenceTracker) *EventsHandler {
	return &EventsHandler{
		hub:       hub,
		calls:     calls,
		streamers: streamers,
		presence:  presence,
	}
}

// CallEvents streams status changes of one call to a participant.
// Polling GET /v1/calls/:id remains the fallback.
// GET /v1/calls/:id/events
func (h *EventsHandler) CallEvents(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	view, err := h.calls.Authorize(c.Request.Context(), userID, callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if !h.hub.acquire() {
		response.FromError(c, apperrors.ServiceUnavailableError("Server at capacity, please try again later"))
		return
	}
	defer h.hub.release()

	conn, err := h.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("WebSocket upgrade failed",
			zap.String("call_id", callID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 16),
		channel: redisrepo.CallChannel(callID),
	}

	h.hub.serve(client, &Message{
		Type:       MessageTypeSnapshot,
		Call:       view,
		ServerTime: view.ServerTime,
	}, nil)
}

// Dashboard streams every call event of the signed-in streamer and keeps
// their presence fresh while connected.
// GET /v1/streamers/me/events
func (h *EventsHandler) Dashboard(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	profile, err := h.streamers.Me(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if !h.hub.acquire() {
		response.FromError(c, apperrors.ServiceUnavailableError("Server at capacity, please try again later"))
		return
	}
	defer h.hub.release()

	conn, err := h.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	// Detached so the final SetOffline still runs after the client hangs up
	ctx := context.WithoutCancel(c.Request.Context())
	h.markOnline(ctx, userID)

	client := &Client{
		conn:      conn,
		send:      make(chan []byte, 16),
		channel:   redisrepo.StreamerChannel(userID),
		heartbeat: func() { h.markOnline(ctx, userID) },
	}

	h.hub.serve(client, &Message{
		Type:       MessageTypeSnapshot,
		Streamer:   profile,
		ServerTime: clock.NowMillis(),
	}, func(remaining int) {
		if remaining > 0 {
			return
		}
		if err := h.presence.SetOffline(ctx, userID); err != nil {
			logger.FromContext(ctx).Debug("Failed to clear presence", zap.Error(err))
		}
	})
}

func (h *EventsHandler) markOnline(ctx context.Context, userID uuid.UUID) {
	if err := h.presence.SetOnline(ctx, userID); err != nil {
		logger.FromContext(ctx).Debug("Failed to refresh presence", zap.Error(err))
	}
}
