package call

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/repository/postgres"
	"callsubs-backend/pkg/logger"
)

// ExpireStale closes requests nobody acted on and ends calls that ran past
// their time. It is safe to run from several workers at once: each row is
// moved by a conditional update and losers skip it. A category that cannot be
// listed is skipped for this pass; the others still run and the listing
// errors are returned joined alongside the partial result.
func (s *Service) ExpireStale(ctx context.Context) (*domain.SweepResult, error) {
	now := s.now()
	result := &domain.SweepResult{}
	limit := s.cfg.SweepBatchSize
	var errs []error

	pending, err := s.calls.ListStalePending(ctx, now.Add(-s.cfg.RequestTTL), limit)
	if err != nil {
		errs = append(errs, s.listFailed(ctx, "pending", err))
	}
	for _, c := range pending {
		ended := now
		ok := s.sweepOne(ctx, c, domain.CallStatusExpired, domain.TransitionUpdate{
			EndedAt:   &ended,
			EndReason: domain.EndReasonRequestTimeout,
		}, result)
		if ok {
			result.ExpiredPending++
		}
	}

	unpaid, err := s.calls.ListExpiredPayments(ctx, now, limit)
	if err != nil {
		errs = append(errs, s.listFailed(ctx, "payment_pending", err))
	}
	for _, c := range unpaid {
		ended := now
		ok := s.sweepOne(ctx, c, domain.CallStatusExpired, domain.TransitionUpdate{
			EndedAt:   &ended,
			EndReason: domain.EndReasonPaymentTimeout,
		}, result)
		if ok {
			result.ExpiredPayment++
			if c.CheckoutSessionID != "" {
				s.expireCheckout(ctx, c.CheckoutSessionID)
			}
		}
	}

	overdue, err := s.calls.ListOverdueActive(ctx, now.Add(-s.cfg.CompletionGrace), limit)
	if err != nil {
		errs = append(errs, s.listFailed(ctx, "active", err))
	}
	for _, c := range overdue {
		// Nobody pressed end; the call lasted exactly its booked time
		endedAt := now
		if c.EndsAt != nil {
			endedAt = *c.EndsAt
		}
		if _, err := s.complete(ctx, nil, c, endedAt, domain.EndReasonTimeUp); err != nil {
			if !isLostRace(err) {
				result.Failed++
				logger.FromContext(ctx).Error("Failed to complete overdue call",
					zap.String("call_id", c.ID.String()),
					zap.Error(err))
			}
			continue
		}
		result.CompletedActive++
	}

	if active, err := s.calls.CountActive(ctx); err == nil {
		s.metrics.SetActiveCalls(active)
	}

	if result.ExpiredPending+result.ExpiredPayment+result.CompletedActive+result.Failed > 0 {
		logger.FromContext(ctx).Info("Expiry sweep finished",
			zap.Int("expired_pending", result.ExpiredPending),
			zap.Int("expired_payment", result.ExpiredPayment),
			zap.Int("completed_active", result.CompletedActive),
			zap.Int("failed", result.Failed))
	}
	return result, errors.Join(errs...)
}

func (s *Service) listFailed(ctx context.Context, category string, err error) error {
	logger.FromContext(ctx).Error("Failed to list calls for expiry",
		zap.String("category", category),
		zap.Error(err))
	return fmt.Errorf("list %s calls: %w", category, err)
}

func (s *Service) sweepOne(ctx context.Context, c *domain.CallRequest, to domain.CallStatus, upd domain.TransitionUpdate, result *domain.SweepResult) bool {
	updated, err := s.calls.Transition(ctx, c.ID, []domain.CallStatus{c.Status}, to, upd)
	if err != nil {
		if !errors.Is(err, postgres.ErrStaleStatus) {
			result.Failed++
			logger.FromContext(ctx).Error("Failed to expire call request",
				zap.String("call_id", c.ID.String()),
				zap.Error(err))
		}
		return false
	}

	s.metrics.RecordCallExpired(string(c.Status))
	s.afterTransition(ctx, nil, c.Status, updated)
	s.notifier.Expired(ctx, updated)
	return true
}

// isLostRace reports whether err means another actor moved the row first
func isLostRace(err error) bool {
	return errors.Is(err, postgres.ErrStaleStatus) || isInvalidTransition(err)
}
