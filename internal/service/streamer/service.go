package streamer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/pkg/audit"
	"callsubs-backend/pkg/cache"
	"callsubs-backend/pkg/constants"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/money"
	"callsubs-backend/pkg/pagination"
	"callsubs-backend/pkg/payment"
	"callsubs-backend/pkg/sanitize"
)

// StreamerRepository interface
type StreamerRepository interface {
	Create(ctx context.Context, s *domain.Streamer) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Streamer, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Streamer, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, bio string, settings domain.StreamerSettings) error
	SetAccepting(ctx context.Context, userID uuid.UUID, accepting bool) error
	SetStripeAccount(ctx context.Context, userID uuid.UUID, accountID string) error
	SetStripeOnboarded(ctx context.Context, userID uuid.UUID, onboarded bool) error
	ListAccepting(ctx context.Context, limit, offset int) ([]*domain.Streamer, int, error)
}

// UserRepository interface
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// CallerStatsRepository interface
type CallerStatsRepository interface {
	SetBlocked(ctx context.Context, streamerID, viewerID uuid.UUID, blocked bool) error
}

// CallCounter reports queue sizes
type CallCounter interface {
	CountPending(ctx context.Context, streamerID uuid.UUID) (int, error)
}

// PresenceRepository interface
type PresenceRepository interface {
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}

// AuditLogger records streamer account changes
type AuditLogger interface {
	LogStreamerAction(ctx context.Context, userID uuid.UUID, eventType audit.AuditEventType, details string) error
}

// Config holds streamer defaults
type Config struct {
	Currency string
	AppURL   string
}

// Service manages streamer profiles, call settings and payout onboarding
type Service struct {
	streamers StreamerRepository
	users     UserRepository
	stats     CallerStatsRepository
	calls     CallCounter
	presence  PresenceRepository
	payments  payment.Provider
	audit     AuditLogger
	profiles  *cache.MemoryCache[*domain.PublicProfile]
	cfg       Config
}

// NewService creates a new streamer service
func NewService(
	streamers StreamerRepository,
	users UserRepository,
	stats CallerStatsRepository,
	calls CallCounter,
	presence PresenceRepository,
	payments payment.Provider,
	auditLogger AuditLogger,
	profiles *cache.MemoryCache[*domain.PublicProfile],
	cfg Config,
) *Service {
	return &Service{
		streamers: streamers,
		users:     users,
		stats:     stats,
		calls:     calls,
		presence:  presence,
		payments:  payments,
		audit:     auditLogger,
		profiles:  profiles,
		cfg:       cfg,
	}
}

// Become creates the caller's streamer profile with default settings. The
// slug defaults to the Twitch login.
func (s *Service) Become(ctx context.Context, userID uuid.UUID, slug string) (*domain.StreamerResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if slug == "" {
		slug = sanitize.Slug(user.Login)
	}
	if !sanitize.ValidSlug(slug) {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"Profile URL must be %d-%d lowercase letters, digits, '-' or '_'",
			constants.MinSlugLength, constants.MaxSlugLength))
	}

	st := &domain.Streamer{
		UserID: userID,
		Slug:   slug,
		Settings: domain.StreamerSettings{
			PriceCents:         constants.DefaultPriceCents,
			Currency:           s.cfg.Currency,
			DurationMinutes:    constants.DefaultDurationMinutes,
			MaxPendingRequests: constants.DefaultMaxPendingRequests,
		},
		Login:       user.Login,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	}
	if err := s.streamers.Create(ctx, st); err != nil {
		return nil, err
	}

	s.logAction(ctx, userID, audit.EventStreamerCreated, slug)
	logger.FromContext(ctx).Info("Streamer profile created",
		zap.String("user_id", userID.String()),
		zap.String("slug", slug))

	return s.toResponse(st, 0), nil
}

// Me returns the caller's own streamer profile
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*domain.StreamerResponse, error) {
	st, err := s.streamers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, err := s.calls.CountPending(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.toResponse(st, pending), nil
}

// UpdateSettings applies a partial settings update
func (s *Service) UpdateSettings(ctx context.Context, userID uuid.UUID, req *domain.UpdateSettingsRequest) (*domain.StreamerResponse, error) {
	st, err := s.streamers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings := st.Settings
	bio := st.Bio
	if req.Bio != nil {
		bio = sanitize.Bio(*req.Bio, constants.MaxBioLength)
	}
	if req.PriceCents != nil {
		settings.PriceCents = *req.PriceCents
	}
	if req.DurationMinutes != nil {
		settings.DurationMinutes = *req.DurationMinutes
	}
	if req.MinAccountAgeDays != nil {
		settings.MinAccountAgeDays = *req.MinAccountAgeDays
	}
	if req.CooldownMinutes != nil {
		settings.CooldownMinutes = *req.CooldownMinutes
	}
	if req.MaxPendingRequests != nil {
		settings.MaxPendingRequests = *req.MaxPendingRequests
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	if err := s.streamers.UpdateSettings(ctx, userID, bio, settings); err != nil {
		return nil, err
	}
	st.Bio = bio
	st.Settings = settings
	s.profiles.Delete(st.Slug)

	s.logAction(ctx, userID, audit.EventSettingsUpdate,
		fmt.Sprintf("price=%d duration=%d", settings.PriceCents, settings.DurationMinutes))

	return s.Me(ctx, userID)
}

// SetAvailability opens or closes the request queue. Opening requires a
// Connect account that can take charges, otherwise accepted requests could
// never be paid.
func (s *Service) SetAvailability(ctx context.Context, userID uuid.UUID, accepting bool) (*domain.StreamerResponse, error) {
	st, err := s.streamers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if accepting && !st.StripeOnboarded {
		return nil, apperrors.ConflictError("Finish payout onboarding before accepting calls")
	}

	if err := s.streamers.SetAccepting(ctx, userID, accepting); err != nil {
		return nil, err
	}
	s.profiles.Delete(st.Slug)

	return s.Me(ctx, userID)
}

// PublicProfile returns the viewer-facing profile for a slug
func (s *Service) PublicProfile(ctx context.Context, slug string) (*domain.PublicProfile, error) {
	profile, ok := s.profiles.Get(slug)
	if !ok {
		st, err := s.streamers.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		profile = s.toProfile(st)
		s.profiles.Set(slug, profile)
	}

	// Copy so the cached value is never mutated
	out := *profile
	out.Online = s.isOnline(ctx, profile.UserID)
	return &out, nil
}

// ListAccepting returns streamers currently taking requests
func (s *Service) ListAccepting(ctx context.Context, params pagination.Params) (*pagination.Page[*domain.PublicProfile], error) {
	streamers, total, err := s.streamers.ListAccepting(ctx, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}

	profiles := make([]*domain.PublicProfile, 0, len(streamers))
	for _, st := range streamers {
		p := s.toProfile(st)
		p.Online = s.isOnline(ctx, st.UserID)
		profiles = append(profiles, p)
	}

	return pagination.NewPage(params, int64(total), profiles), nil
}

// StartOnboarding creates the Connect account on first use and returns a
// fresh onboarding link
func (s *Service) StartOnboarding(ctx context.Context, userID uuid.UUID) (*domain.OnboardingResponse, error) {
	st, err := s.streamers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	accountID := st.StripeAccountID
	if accountID == "" {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}

		accountID, err = s.payments.CreateConnectAccount(ctx, user.Email, userID)
		if err != nil {
			return nil, apperrors.PaymentError(err)
		}
		if err := s.streamers.SetStripeAccount(ctx, userID, accountID); err != nil {
			return nil, err
		}
		s.logAction(ctx, userID, audit.EventStripeOnboarding, "account_created")
	}

	link, err := s.payments.CreateOnboardingLink(ctx, accountID,
		s.cfg.AppURL+"/dashboard/payouts?refresh=1",
		s.cfg.AppURL+"/dashboard/payouts?done=1")
	if err != nil {
		return nil, apperrors.PaymentError(err)
	}

	return &domain.OnboardingResponse{AccountID: accountID, URL: link}, nil
}

// StripeStatus refreshes the Connect account state from the provider
func (s *Service) StripeStatus(ctx context.Context, userID uuid.UUID) (*domain.StripeStatusResponse, error) {
	st, err := s.streamers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st.StripeAccountID == "" {
		return &domain.StripeStatusResponse{}, nil
	}

	acct, err := s.payments.AccountStatus(ctx, st.StripeAccountID)
	if err != nil {
		return nil, apperrors.PaymentError(err)
	}

	if acct.ChargesEnabled != st.StripeOnboarded {
		if err := s.streamers.SetStripeOnboarded(ctx, userID, acct.ChargesEnabled); err != nil {
			return nil, err
		}
		// Losing charges closes the queue
		if !acct.ChargesEnabled && st.Settings.AcceptingCalls {
			if err := s.streamers.SetAccepting(ctx, userID, false); err != nil {
				return nil, err
			}
		}
		s.profiles.Delete(st.Slug)
		s.logAction(ctx, userID, audit.EventStripeOnboarding,
			fmt.Sprintf("charges_enabled=%t", acct.ChargesEnabled))
	}

	return &domain.StripeStatusResponse{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		Onboarded:        acct.ChargesEnabled,
	}, nil
}

// BlockCaller stops a viewer from requesting calls
func (s *Service) BlockCaller(ctx context.Context, streamerID, viewerID uuid.UUID) error {
	return s.setBlocked(ctx, streamerID, viewerID, true)
}

// UnblockCaller lifts a block
func (s *Service) UnblockCaller(ctx context.Context, streamerID, viewerID uuid.UUID) error {
	return s.setBlocked(ctx, streamerID, viewerID, false)
}

func (s *Service) setBlocked(ctx context.Context, streamerID, viewerID uuid.UUID, blocked bool) error {
	if streamerID == viewerID {
		return apperrors.ValidationError("You cannot block yourself")
	}
	if _, err := s.streamers.GetByUserID(ctx, streamerID); err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, viewerID); err != nil {
		return err
	}

	if err := s.stats.SetBlocked(ctx, streamerID, viewerID, blocked); err != nil {
		return err
	}

	eventType := audit.EventCallerUnblocked
	if blocked {
		eventType = audit.EventCallerBlocked
	}
	s.logAction(ctx, streamerID, eventType, viewerID.String())
	return nil
}

func (s *Service) isOnline(ctx context.Context, userID uuid.UUID) bool {
	online, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Debug("Presence lookup failed", zap.Error(err))
		return false
	}
	return online
}

func (s *Service) logAction(ctx context.Context, userID uuid.UUID, eventType audit.AuditEventType, details string) {
	if err := s.audit.LogStreamerAction(ctx, userID, eventType, details); err != nil {
		logger.FromContext(ctx).Warn("Failed to write audit event",
			zap.String("user_id", userID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func (s *Service) toResponse(st *domain.Streamer, pending int) *domain.StreamerResponse {
	return &domain.StreamerResponse{
		UserID:          st.UserID,
		Slug:            st.Slug,
		Bio:             st.Bio,
		Settings:        st.Settings,
		Price:           money.Format(st.Settings.PriceCents, st.Settings.Currency),
		StripeConnected: st.StripeAccountID != "",
		StripeOnboarded: st.StripeOnboarded,
		PendingCount:    pending,
		CreatedAt:       st.CreatedAt,
	}
}

func (s *Service) toProfile(st *domain.Streamer) *domain.PublicProfile {
	return &domain.PublicProfile{
		UserID:          st.UserID,
		Slug:            st.Slug,
		Login:           st.Login,
		DisplayName:     st.DisplayName,
		AvatarURL:       st.AvatarURL,
		Bio:             st.Bio,
		PriceCents:      st.Settings.PriceCents,
		Currency:        st.Settings.Currency,
		Price:           money.Format(st.Settings.PriceCents, st.Settings.Currency),
		DurationMinutes: st.Settings.DurationMinutes,
		AcceptingCalls:  st.Settings.AcceptingCalls,
	}
}

func validateSettings(settings domain.StreamerSettings) error {
	switch {
	case settings.PriceCents < constants.MinPriceCents || settings.PriceCents > constants.MaxPriceCents:
		return apperrors.ValidationError(fmt.Sprintf("Price must be between %s and %s",
			money.Format(constants.MinPriceCents, settings.Currency), money.Format(constants.MaxPriceCents, settings.Currency)))
	case settings.DurationMinutes < constants.MinDurationMinutes || settings.DurationMinutes > constants.MaxDurationMinutes:
		return apperrors.ValidationError(fmt.Sprintf("Duration must be between %d and %d minutes",
			constants.MinDurationMinutes, constants.MaxDurationMinutes))
	case settings.CooldownMinutes < 0 || settings.CooldownMinutes > constants.MaxCooldownMinutes:
		return apperrors.ValidationError(fmt.Sprintf("Cooldown must be between 0 and %d minutes", constants.MaxCooldownMinutes))
	case settings.MaxPendingRequests < constants.MinPendingRequests || settings.MaxPendingRequests > constants.MaxPendingRequests:
		return apperrors.ValidationError(fmt.Sprintf("Queue size must be between %d and %d",
			constants.MinPendingRequests, constants.MaxPendingRequests))
	case settings.MinAccountAgeDays < 0 || settings.MinAccountAgeDays > constants.MaxAccountAgeDays:
		return apperrors.ValidationError(fmt.Sprintf("Minimum account age must be between 0 and %d days", constants.MaxAccountAgeDays))
	}
	return nil
}

// ProfileCacheTTL bounds how stale a cached public profile can be
const ProfileCacheTTL = 30 * time.Second
