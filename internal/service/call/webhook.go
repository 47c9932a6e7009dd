package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/repository/postgres"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/payment"
	"callsubs-backend/pkg/video"
)

const (
	webhookProcessed = "processed"
	webhookDuplicate = "duplicate"
	webhookIgnored   = "ignored"
	webhookFailed    = "failed"
)

// HandleWebhook verifies and applies a payment processor event. Returning
// an error makes the processor retry, so only failures worth retrying are
// returned once the signature checks out.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return apperrors.ValidationError("Invalid webhook signature")
		}
		return apperrors.ValidationError("Malformed webhook payload")
	}

	log := logger.FromContext(ctx).With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	claimed, err := s.webhooks.MarkProcessing(ctx, event.ID, s.cfg.WebhookDedupeTTL)
	if err != nil {
		// Without the dedupe store we still process; transitions are conditional
		log.Warn("Webhook dedupe unavailable", zap.Error(err))
		claimed = true
	}
	if !claimed {
		log.Info("Duplicate webhook event ignored")
		s.metrics.RecordWebhookEvent(event.Type, webhookDuplicate)
		return nil
	}

	result, err := s.applyEvent(ctx, event)
	if err != nil {
		if releaseErr := s.webhooks.Release(ctx, event.ID); releaseErr != nil {
			log.Warn("Failed to release webhook event", zap.Error(releaseErr))
		}
		s.metrics.RecordWebhookEvent(event.Type, webhookFailed)
		log.Error("Webhook processing failed", zap.Error(err))
		return err
	}

	s.metrics.RecordWebhookEvent(event.Type, result)
	log.Info("Webhook event handled", zap.String("result", result))
	return nil
}

func (s *Service) applyEvent(ctx context.Context, event *payment.WebhookEvent) (string, error) {
	switch event.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncPaymentSucceeded:
		if !event.Paid() {
			// Async methods settle later with async_payment_succeeded
			return webhookIgnored, nil
		}
		if err := s.confirmPayment(ctx, event); err != nil {
			return "", err
		}
		return webhookProcessed, nil

	case payment.EventCheckoutExpired:
		return s.checkoutExpired(ctx, event)

	default:
		return webhookIgnored, nil
	}
}

func (s *Service) callForEvent(ctx context.Context, event *payment.WebhookEvent) (*domain.CallRequest, error) {
	if event.CallRequestID != uuid.Nil {
		c, err := s.calls.GetByID(ctx, event.CallRequestID)
		if err == nil || !apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
			return c, err
		}
	}
	return s.calls.GetByCheckoutSession(ctx, event.CheckoutSessionID)
}

// confirmPayment starts the call: create the room, then move payment_pending
// to active. Money that arrives for a request that already closed is refunded.
func (s *Service) confirmPayment(ctx context.Context, event *payment.WebhookEvent) error {
	c, err := s.callForEvent(ctx, event)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
			logger.FromContext(ctx).Warn("Payment for unknown call request",
				zap.String("session_id", event.CheckoutSessionID))
			return nil
		}
		return err
	}

	if c.Status != domain.CallStatusPaymentPending {
		if c.PaymentIntentID == event.PaymentIntentID && c.PaymentIntentID != "" {
			// Same payment seen twice, already applied
			return nil
		}
		return s.refundLatePayment(ctx, c, event, fmt.Sprintf("request was %s when payment arrived", c.Status))
	}

	now := s.now()
	endsAt := now.Add(c.Duration())
	room, err := s.rooms.CreateRoom(ctx, video.RoomName(c.ID), endsAt.Add(s.cfg.CompletionGrace))
	if err != nil {
		return apperrors.VideoError(err)
	}

	amount := event.AmountTotal
	if amount == 0 {
		amount = c.PriceCents
	}

	updated, err := s.calls.Transition(ctx, c.ID, []domain.CallStatus{domain.CallStatusPaymentPending}, domain.CallStatusActive,
		domain.TransitionUpdate{
			PaymentIntentID: event.PaymentIntentID,
			AmountPaidCents: amount,
			RoomName:        room.Name,
			RoomURL:         room.URL,
			StartedAt:       &now,
			EndsAt:          &endsAt,
		})
	if err != nil {
		if !errors.Is(err, postgres.ErrStaleStatus) {
			return err
		}
		// Cancelled or expired between the read and the update
		if delErr := s.rooms.DeleteRoom(ctx, room.Name); delErr != nil {
			logger.FromContext(ctx).Warn("Failed to delete unused room", zap.Error(delErr))
		}
		return s.refundLatePayment(ctx, c, event, "request closed while payment was confirmed")
	}

	s.metrics.RecordPayment("succeeded", amount)
	s.afterTransition(ctx, nil, domain.CallStatusPaymentPending, updated)
	s.notifier.Confirmed(ctx, updated)

	logger.FromContext(ctx).Info("Call started",
		zap.String("call_id", updated.ID.String()),
		zap.Time("ends_at", endsAt))
	return nil
}

func (s *Service) refundLatePayment(ctx context.Context, c *domain.CallRequest, event *payment.WebhookEvent, reason string) error {
	if event.PaymentIntentID == "" {
		return nil
	}
	if err := s.payments.Refund(ctx, event.PaymentIntentID, c.ID); err != nil {
		return apperrors.PaymentError(err)
	}

	s.metrics.RecordRefund()
	s.metrics.RecordPayment("refunded", event.AmountTotal)
	if err := s.audit.LogCallRefund(ctx, c.ID, reason); err != nil {
		logger.FromContext(ctx).Warn("Failed to write refund audit event", zap.Error(err))
	}

	logger.FromContext(ctx).Warn("Late payment refunded",
		zap.String("call_id", c.ID.String()),
		zap.String("payment_intent", event.PaymentIntentID),
		zap.String("reason", reason))
	return nil
}

func (s *Service) checkoutExpired(ctx context.Context, event *payment.WebhookEvent) (string, error) {
	c, err := s.callForEvent(ctx, event)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
			return webhookIgnored, nil
		}
		return "", err
	}
	// A newer session replaced this one, or the request already moved on
	if c.Status != domain.CallStatusPaymentPending || c.CheckoutSessionID != event.CheckoutSessionID {
		return webhookIgnored, nil
	}

	updated, err := s.calls.Transition(ctx, c.ID, []domain.CallStatus{domain.CallStatusPaymentPending}, domain.CallStatusExpired,
		domain.TransitionUpdate{
			EndedAt:   s.timePtr(),
			EndReason: domain.EndReasonPaymentTimeout,
		})
	if err != nil {
		if errors.Is(err, postgres.ErrStaleStatus) {
			return webhookIgnored, nil
		}
		return "", err
	}

	s.metrics.RecordCallExpired(string(domain.CallStatusPaymentPending))
	s.afterTransition(ctx, nil, domain.CallStatusPaymentPending, updated)
	s.notifier.Expired(ctx, updated)
	return webhookProcessed, nil
}
