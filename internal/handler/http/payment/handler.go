package payment

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/response"
)

// maxWebhookBody matches the largest event payload Stripe sends
const maxWebhookBody = 65536

// WebhookService verifies and applies payment provider events
type WebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Handler receives payment provider webhooks
type Handler struct {
	webhookService WebhookService
}

// NewHandler creates a new payment webhook handler
func NewHandler(webhookService WebhookService) *Handler {
	return &Handler{
		webhookService: webhookService,
	}
}

// Webhook verifies the signature over the raw body and applies the event.
// A non-2xx answer makes Stripe retry, so only failures worth retrying get one.
// POST /v1/payments/webhook
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("Failed to read webhook body", zap.Error(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.FromError(c, apperrors.PayloadTooLargeError(maxWebhookBody))
			return
		}
		response.ValidationError(c, "Could not read webhook body")
		return
	}

	if err := h.webhookService.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}
