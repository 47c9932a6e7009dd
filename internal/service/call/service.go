// Package call implements the call request lifecycle: request, accept,
// payment, the call itself and the sweeper that closes abandoned requests.
//
// Every status change goes through CallRepository.Transition, a conditional
// UPDATE that only matches when the row is still in an expected status. Two
// actors racing on the same request (a viewer cancelling while the payment
// webhook arrives, say) therefore resolve in the database: exactly one
// UPDATE wins and the loser sees ErrStaleStatus.
package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/repository/postgres"
	"callsubs-backend/pkg/audit"
	"callsubs-backend/pkg/clock"
	"callsubs-backend/pkg/constants"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/money"
	"callsubs-backend/pkg/pagination"
	"callsubs-backend/pkg/payment"
	"callsubs-backend/pkg/sanitize"
	"callsubs-backend/pkg/video"
)

// CallRepository interface
type CallRepository interface {
	Create(ctx context.Context, c *domain.CallRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CallRequest, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*domain.CallRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from []domain.CallStatus, to domain.CallStatus, upd domain.TransitionUpdate) (*domain.CallRequest, error)
	ListByStreamer(ctx context.Context, streamerID uuid.UUID, filter domain.CallListFilter) ([]*domain.CallRequest, int, error)
	ListByViewer(ctx context.Context, viewerID uuid.UUID, filter domain.CallListFilter) ([]*domain.CallRequest, int, error)
	CountPending(ctx context.Context, streamerID uuid.UUID) (int, error)
	HasOpenRequest(ctx context.Context, streamerID, viewerID uuid.UUID) (bool, error)
	CountActive(ctx context.Context) (int, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CallRequest, error)
	ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*domain.CallRequest, error)
	ListOverdueActive(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CallRequest, error)
}

// StreamerRepository interface
type StreamerRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Streamer, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Streamer, error)
}

// UserRepository interface
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// CallerStatsRepository interface
type CallerStatsRepository interface {
	Get(ctx context.Context, streamerID, viewerID uuid.UUID) (*domain.CallerStats, error)
	RecordCall(ctx context.Context, streamerID, viewerID uuid.UUID, spentCents, seconds int64, at time.Time) error
}

// EventPublisher fans status changes out to WebSocket subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.CallEvent) error
}

// WebhookDeduper claims webhook event IDs
type WebhookDeduper interface {
	MarkProcessing(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// AuditLogger records the call timeline
type AuditLogger interface {
	LogCallTransition(ctx context.Context, callID uuid.UUID, actorID *uuid.UUID, from, to string) error
	LogCallRefund(ctx context.Context, callID uuid.UUID, details string) error
	GetCallEvents(ctx context.Context, callID uuid.UUID) ([]*audit.AuditEvent, error)
}

// MetricsRecorder is the subset of metrics.Metrics the lifecycle reports to
type MetricsRecorder interface {
	RecordCallTransition(from, to string)
	RecordCallDuration(duration time.Duration)
	RecordCallExpired(from string)
	SetActiveCalls(count int)
	RecordPayment(outcome string, amountCents int64)
	RecordWebhookEvent(eventType, result string)
	RecordRefund()
	RecordNotification(channel, notifType string, err error)
}

// Config holds lifecycle timings and money settings
type Config struct {
	RequestTTL         time.Duration
	PaymentWindow      time.Duration
	CompletionGrace    time.Duration
	SweepBatchSize     int
	WebhookDedupeTTL   time.Duration
	PlatformFeePercent decimal.Decimal
	AppURL             string
}

// Service implements the call request lifecycle
type Service struct {
	calls     CallRepository
	streamers StreamerRepository
	users     UserRepository
	stats     CallerStatsRepository
	events    EventPublisher
	webhooks  WebhookDeduper
	payments  payment.Provider
	rooms     video.Client
	notifier  *Notifier
	audit     AuditLogger
	metrics   MetricsRecorder
	cfg       Config
	now       func() time.Time
}

// NewService creates a new call service
func NewService(
	calls CallRepository,
	streamers StreamerRepository,
	users UserRepository,
	stats CallerStatsRepository,
	events EventPublisher,
	webhooks WebhookDeduper,
	payments payment.Provider,
	rooms video.Client,
	notifier *Notifier,
	auditLogger AuditLogger,
	metrics MetricsRecorder,
	cfg Config,
) *Service {
	return &Service{
		calls:     calls,
		streamers: streamers,
		users:     users,
		stats:     stats,
		events:    events,
		webhooks:  webhooks,
		payments:  payments,
		rooms:     rooms,
		notifier:  notifier,
		audit:     auditLogger,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Request creates a pending call request from a viewer to a streamer
func (s *Service) Request(ctx context.Context, viewerID uuid.UUID, slug, message string) (*domain.CallView, error) {
	st, err := s.streamers.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	viewer, err := s.users.GetByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	if err := s.checkEligibility(ctx, st, viewer); err != nil {
		return nil, err
	}

	c := &domain.CallRequest{
		ID:              uuid.New(),
		StreamerID:      st.UserID,
		ViewerID:        viewerID,
		Status:          domain.CallStatusPending,
		Message:         sanitize.CallMessage(message, constants.MaxCallMessageLength),
		PriceCents:      st.Settings.PriceCents,
		Currency:        st.Settings.Currency,
		DurationMinutes: st.Settings.DurationMinutes,
	}
	if err := s.calls.Create(ctx, c); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Call requested",
		zap.String("call_id", c.ID.String()),
		zap.String("streamer_id", st.UserID.String()),
		zap.String("viewer_id", viewerID.String()))

	s.afterTransition(ctx, &viewerID, "", c)
	s.notifier.NewRequest(ctx, c, st, viewer)

	return s.view(c, viewerID, st.DisplayName, viewer.DisplayName), nil
}

// checkEligibility applies the streamer's gates in order from cheapest to
// most expensive to evaluate
func (s *Service) checkEligibility(ctx context.Context, st *domain.Streamer, viewer *domain.User) error {
	if st.UserID == viewer.UserID {
		return apperrors.NotEligibleError("You cannot request a call with yourself")
	}
	if !st.Settings.AcceptingCalls || !st.StripeOnboarded {
		return apperrors.NotEligibleError("This streamer is not accepting calls right now")
	}

	minAge := time.Duration(st.Settings.MinAccountAgeDays) * 24 * time.Hour
	if viewer.AccountAge(s.now()) < minAge {
		return apperrors.NotEligibleError(fmt.Sprintf(
			"Your Twitch account must be at least %d days old to call this streamer", st.Settings.MinAccountAgeDays))
	}

	stats, err := s.stats.Get(ctx, st.UserID, viewer.UserID)
	if err != nil {
		return err
	}
	if stats.Blocked {
		return apperrors.NotEligibleError("You cannot request calls from this streamer")
	}
	if st.Settings.CooldownMinutes > 0 && stats.LastCallAt != nil {
		next := stats.LastCallAt.Add(time.Duration(st.Settings.CooldownMinutes) * time.Minute)
		if wait := next.Sub(s.now()); wait > 0 {
			return apperrors.NotEligibleError(fmt.Sprintf(
				"You can request another call in %d minutes", int(wait.Minutes())+1)).
				WithDetails(map[string]any{"retry_at": next.UTC()})
		}
	}

	open, err := s.calls.HasOpenRequest(ctx, st.UserID, viewer.UserID)
	if err != nil {
		return err
	}
	if open {
		return apperrors.ConflictError("You already have an open request with this streamer")
	}

	pending, err := s.calls.CountPending(ctx, st.UserID)
	if err != nil {
		return err
	}
	if pending >= st.Settings.MaxPendingRequests {
		return apperrors.NotEligibleError("This streamer's queue is full, try again later")
	}

	return nil
}

// Accept moves a pending request to payment_pending and opens a Checkout
// session for the viewer
func (s *Service) Accept(ctx context.Context, streamerID, callID uuid.UUID) (*domain.CallView, error) {
	c, err := s.getForStreamer(ctx, streamerID, callID)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(domain.CallStatusPaymentPending) {
		return nil, apperrors.InvalidTransitionError(string(c.Status), string(domain.CallStatusPaymentPending))
	}

	st, err := s.streamers.GetByUserID(ctx, streamerID)
	if err != nil {
		return nil, err
	}
	if st.StripeAccountID == "" {
		return nil, apperrors.PayoutsNotReadyError()
	}
	acct, err := s.payments.AccountStatus(ctx, st.StripeAccountID)
	if err != nil {
		return nil, apperrors.PaymentError(err)
	}
	if !acct.ChargesEnabled {
		return nil, apperrors.PayoutsNotReadyError()
	}

	viewer, err := s.users.GetByID(ctx, c.ViewerID)
	if err != nil {
		return nil, err
	}

	session, err := s.payments.CreateCheckout(ctx, &payment.CheckoutInput{
		CallRequestID:       c.ID,
		StreamerName:        st.DisplayName,
		DurationMinutes:     c.DurationMinutes,
		PriceCents:          c.PriceCents,
		Currency:            c.Currency,
		ApplicationFeeCents: money.PlatformFeeCents(c.PriceCents, s.cfg.PlatformFeePercent),
		DestinationAccount:  st.StripeAccountID,
		CustomerEmail:       viewer.Email,
		SuccessURL:          fmt.Sprintf("%s/calls/%s?paid=1", s.cfg.AppURL, c.ID),
		CancelURL:           fmt.Sprintf("%s/calls/%s", s.cfg.AppURL, c.ID),
		ExpiresAt:           s.now().Add(s.cfg.PaymentWindow),
	})
	if err != nil {
		return nil, apperrors.PaymentError(err)
	}

	expiresAt := session.ExpiresAt
	updated, err := s.calls.Transition(ctx, c.ID, []domain.CallStatus{domain.CallStatusPending}, domain.CallStatusPaymentPending,
		domain.TransitionUpdate{
			CheckoutSessionID: session.ID,
			CheckoutURL:       session.URL,
			PaymentExpiresAt:  &expiresAt,
		})
	if err != nil {
		// The request moved on while the session was being created
		s.expireCheckout(ctx, session.ID)
		return nil, s.transitionError(ctx, err, c.ID, domain.CallStatusPaymentPending)
	}

	s.afterTransition(ctx, &streamerID, domain.CallStatusPending, updated)
	s.notifier.Accepted(ctx, updated, st, viewer, s.cfg.PaymentWindow)

	return s.view(updated, streamerID, st.DisplayName, viewer.DisplayName), nil
}

// Reject declines a pending request
func (s *Service) Reject(ctx context.Context, streamerID, callID uuid.UUID) (*domain.CallView, error) {
	c, err := s.getForStreamer(ctx, streamerID, callID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, &streamerID, c, domain.CallStatusRejected, domain.TransitionUpdate{
		EndedAt:   s.timePtr(),
		EndReason: domain.EndReasonRejected,
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Rejected(ctx, updated)
	return s.viewFor(ctx, updated, streamerID), nil
}

// Cancel withdraws a request the viewer has not paid for yet
func (s *Service) Cancel(ctx context.Context, viewerID, callID uuid.UUID) (*domain.CallView, error) {
	c, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if c.ViewerID != viewerID {
		if c.StreamerID == viewerID {
			return nil, apperrors.ForbiddenError("Only the viewer can cancel a request")
		}
		return nil, apperrors.CallNotFoundError()
	}

	updated, err := s.transition(ctx, &viewerID, c, domain.CallStatusCancelled, domain.TransitionUpdate{
		EndedAt:   s.timePtr(),
		EndReason: domain.EndReasonCancelled,
	})
	if err != nil {
		return nil, err
	}

	if updated.CheckoutSessionID != "" {
		s.expireCheckout(ctx, updated.CheckoutSessionID)
	}

	s.notifier.Cancelled(ctx, updated)
	return s.viewFor(ctx, updated, viewerID), nil
}

// Complete ends an active call. Either participant may end it.
func (s *Service) Complete(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error) {
	c, err := s.getForParticipant(ctx, userID, callID)
	if err != nil {
		return nil, err
	}

	reason := domain.EndReasonCompletedByViewer
	if userID == c.StreamerID {
		reason = domain.EndReasonCompletedByStreamer
	}

	updated, err := s.complete(ctx, &userID, c, s.now(), reason)
	if err != nil {
		return nil, err
	}

	return s.viewFor(ctx, updated, userID), nil
}

// complete moves an active call to completed and settles the side effects
func (s *Service) complete(ctx context.Context, actorID *uuid.UUID, c *domain.CallRequest, endedAt time.Time, reason string) (*domain.CallRequest, error) {
	updated, err := s.transition(ctx, actorID, c, domain.CallStatusCompleted, domain.TransitionUpdate{
		EndedAt:   &endedAt,
		EndReason: reason,
	})
	if err != nil {
		return nil, err
	}

	if updated.RoomName != "" {
		if err := s.rooms.DeleteRoom(ctx, updated.RoomName); err != nil {
			// The room expires on its own at ends_at + grace
			logger.FromContext(ctx).Warn("Failed to delete call room",
				zap.String("call_id", updated.ID.String()),
				zap.String("room", updated.RoomName),
				zap.Error(err))
		}
	}

	seconds := updated.ElapsedSeconds()
	if err := s.stats.RecordCall(ctx, updated.StreamerID, updated.ViewerID, updated.AmountPaidCents, seconds, endedAt); err != nil {
		logger.FromContext(ctx).Error("Failed to record caller stats",
			zap.String("call_id", updated.ID.String()),
			zap.Error(err))
	}
	s.metrics.RecordCallDuration(time.Duration(seconds) * time.Second)

	s.notifier.Completed(ctx, updated)
	return updated, nil
}

// Get returns the status view of a request for one of its participants
func (s *Service) Get(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error) {
	c, err := s.getForParticipant(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	return s.viewFor(ctx, c, userID), nil
}

// JoinToken issues a room token for a participant of an active call
func (s *Service) JoinToken(ctx context.Context, userID, callID uuid.UUID) (*domain.JoinTokenResponse, error) {
	c, err := s.getForParticipant(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CallStatusActive || c.RoomName == "" || c.EndsAt == nil {
		return nil, apperrors.ConflictError("The call is not active")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	expiresAt := c.EndsAt.Add(s.cfg.CompletionGrace)
	token, err := s.rooms.CreateMeetingToken(ctx, &video.TokenInput{
		RoomName:  c.RoomName,
		UserName:  user.DisplayName,
		UserID:    userID,
		IsOwner:   userID == c.StreamerID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, apperrors.VideoError(err)
	}

	return &domain.JoinTokenResponse{
		RoomURL:   c.RoomURL,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ListForStreamer returns the streamer's queue or history
func (s *Service) ListForStreamer(ctx context.Context, streamerID uuid.UUID, statuses []domain.CallStatus, params pagination.Params) (*pagination.Page[*domain.CallView], error) {
	calls, total, err := s.calls.ListByStreamer(ctx, streamerID, domain.CallListFilter{
		Statuses: statuses,
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(params, int64(total), s.views(ctx, calls, streamerID)), nil
}

// ListForViewer returns the viewer's requests
func (s *Service) ListForViewer(ctx context.Context, viewerID uuid.UUID, statuses []domain.CallStatus, params pagination.Params) (*pagination.Page[*domain.CallView], error) {
	calls, total, err := s.calls.ListByViewer(ctx, viewerID, domain.CallListFilter{
		Statuses: statuses,
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(params, int64(total), s.views(ctx, calls, viewerID)), nil
}

// Timeline returns the audit trail of a request
func (s *Service) Timeline(ctx context.Context, userID, callID uuid.UUID) ([]*audit.AuditEvent, error) {
	if _, err := s.getForParticipant(ctx, userID, callID); err != nil {
		return nil, err
	}
	events, err := s.audit.GetCallEvents(ctx, callID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	return events, nil
}

// Authorize checks that userID participates in the call. The WebSocket
// handler uses it before subscribing.
func (s *Service) Authorize(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error) {
	return s.Get(ctx, userID, callID)
}

func (s *Service) getForParticipant(ctx context.Context, userID, callID uuid.UUID) (*domain.CallRequest, error) {
	c, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	// Non-participants get a 404 so request IDs cannot be probed
	if !c.IsParticipant(userID) {
		return nil, apperrors.CallNotFoundError()
	}
	return c, nil
}

func (s *Service) getForStreamer(ctx context.Context, streamerID, callID uuid.UUID) (*domain.CallRequest, error) {
	c, err := s.getForParticipant(ctx, streamerID, callID)
	if err != nil {
		return nil, err
	}
	if c.StreamerID != streamerID {
		return nil, apperrors.ForbiddenError("Only the streamer can answer a request")
	}
	return c, nil
}

// transition validates the move against the current status, applies it
// conditionally and runs the shared side effects
func (s *Service) transition(ctx context.Context, actorID *uuid.UUID, c *domain.CallRequest, to domain.CallStatus, upd domain.TransitionUpdate) (*domain.CallRequest, error) {
	if !c.Status.CanTransitionTo(to) {
		return nil, apperrors.InvalidTransitionError(string(c.Status), string(to))
	}

	updated, err := s.calls.Transition(ctx, c.ID, domain.SourcesFor(to), to, upd)
	if err != nil {
		return nil, s.transitionError(ctx, err, c.ID, to)
	}

	s.afterTransition(ctx, actorID, c.Status, updated)
	return updated, nil
}

// transitionError turns a lost race into a 409 naming the status that won
func (s *Service) transitionError(ctx context.Context, err error, callID uuid.UUID, to domain.CallStatus) error {
	if !errors.Is(err, postgres.ErrStaleStatus) {
		return err
	}
	current, getErr := s.calls.GetByID(ctx, callID)
	if getErr != nil {
		return apperrors.ConflictError("Call request changed, please refresh")
	}
	return apperrors.InvalidTransitionError(string(current.Status), string(to))
}

// afterTransition publishes the change, writes the timeline entry and
// updates metrics. None of these may fail the transition. from is only used
// when the store did not report the status it replaced.
func (s *Service) afterTransition(ctx context.Context, actorID *uuid.UUID, from domain.CallStatus, c *domain.CallRequest) {
	if c.PreviousStatus != "" {
		from = c.PreviousStatus
	}
	s.metrics.RecordCallTransition(string(from), string(c.Status))

	if err := s.audit.LogCallTransition(ctx, c.ID, actorID, string(from), string(c.Status)); err != nil {
		logger.FromContext(ctx).Warn("Failed to write call audit event",
			zap.String("call_id", c.ID.String()),
			zap.Error(err))
	}

	event := &domain.CallEvent{
		CallID:     c.ID,
		StreamerID: c.StreamerID,
		From:       from,
		Status:     c.Status,
		EndsAt:     c.EndsAt,
		EndReason:  c.EndReason,
		ServerTime: clock.NowMillis(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish call event",
			zap.String("call_id", c.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) expireCheckout(ctx context.Context, sessionID string) {
	if err := s.payments.ExpireCheckout(ctx, sessionID); err != nil {
		logger.FromContext(ctx).Warn("Failed to expire checkout session",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func (s *Service) timePtr() *time.Time {
	t := s.now()
	return &t
}

func isInvalidTransition(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition)
}
