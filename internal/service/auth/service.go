package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/pkg/constants"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/jwt"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/twitch"
)

// UserRepository interface
type UserRepository interface {
	Upsert(ctx context.Context, in *domain.UserUpsert) (*domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// SessionRepository interface
type SessionRepository interface {
	SaveOAuthState(ctx context.Context, state string, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (bool, error)
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
	RevokeOnce(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// AuditLogger records sign-in activity
type AuditLogger interface {
	LogLogin(ctx context.Context, userID uuid.UUID, ipAddress string, success bool, details string) error
	LogLogout(ctx context.Context, userID uuid.UUID, ipAddress string) error
}

// Service handles Twitch sign-in and token lifecycle
type Service struct {
	userRepo    UserRepository
	sessionRepo SessionRepository
	provider    twitch.Provider
	jwtManager  *jwt.JWTManager
	audit       AuditLogger
	appURL      string
}

// NewService creates a new auth service
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	provider twitch.Provider,
	jwtManager *jwt.JWTManager,
	audit AuditLogger,
	appURL string,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		provider:    provider,
		jwtManager:  jwtManager,
		audit:       audit,
		appURL:      appURL,
	}
}

// CallbackInput contains the parameters Twitch redirects back with
type CallbackInput struct {
	State     string
	Code      string
	IPAddress string
}

// LoginOutput contains the issued session
type LoginOutput struct {
	User         *domain.UserResponse
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// BeginLogin stores a fresh state nonce and returns the Twitch consent URL
func (s *Service) BeginLogin(ctx context.Context) (string, error) {
	state, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	if err := s.sessionRepo.SaveOAuthState(ctx, state, constants.OAuthStateTTL); err != nil {
		return "", err
	}

	return s.provider.AuthCodeURL(state), nil
}

// CompleteLogin verifies the state, exchanges the code and signs the user in
func (s *Service) CompleteLogin(ctx context.Context, input *CallbackInput) (*LoginOutput, error) {
	if input.State == "" || input.Code == "" {
		return nil, apperrors.InvalidOAuthStateError()
	}

	// 1. State must exist and is consumed on first use
	ok, err := s.sessionRepo.ConsumeOAuthState(ctx, input.State)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.FromContext(ctx).Warn("OAuth callback with unknown state",
			zap.String("ip", input.IPAddress))
		return nil, apperrors.InvalidOAuthStateError()
	}

	// 2. Exchange the code for the Twitch profile
	profile, err := s.provider.Exchange(ctx, input.Code)
	if err != nil {
		return nil, apperrors.WrapWithStatus(apperrors.ErrCodeUnauthorized,
			"Twitch sign-in failed", http.StatusUnauthorized, err)
	}

	// 3. Create or refresh the local user
	user, err := s.userRepo.Upsert(ctx, &domain.UserUpsert{
		TwitchID:        profile.ID,
		Login:           profile.Login,
		DisplayName:     profile.DisplayName,
		Email:           profile.Email,
		AvatarURL:       profile.ProfileImageURL,
		TwitchCreatedAt: profile.CreatedAt,
	})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	out, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	if err := s.audit.LogLogin(ctx, user.UserID, input.IPAddress, true, "twitch"); err != nil {
		logger.FromContext(ctx).Warn("Failed to write login audit event",
			zap.String("user_id", user.UserID.String()),
			zap.Error(err))
	}

	logger.FromContext(ctx).Info("User signed in",
		zap.String("user_id", user.UserID.String()),
		zap.String("login", user.Login))

	return out, nil
}

// CompletionRedirect builds the frontend URL that hands the tokens over. They
// travel in the fragment so they never reach server logs.
func (s *Service) CompletionRedirect(out *LoginOutput) string {
	fragment := url.Values{}
	fragment.Set("access_token", out.AccessToken)
	fragment.Set("refresh_token", out.RefreshToken)
	fragment.Set("expires_in", strconv.FormatInt(out.ExpiresIn, 10))
	return s.appURL + "/auth/complete#" + fragment.Encode()
}

// ErrorRedirect builds the frontend URL for a failed sign-in
func (s *Service) ErrorRedirect(code string) string {
	fragment := url.Values{}
	fragment.Set("error", code)
	return s.appURL + "/auth/complete#" + fragment.Encode()
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// issued. Revoking is the claim, so a token redeems at most once even when
// requests race.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.InvalidTokenError("Invalid refresh token")
	}

	claimed, err := s.sessionRepo.RevokeOnce(ctx, claims.ID, claims.RemainingTTL())
	if err != nil {
		return nil, err
	}
	if !claimed {
		logger.FromContext(ctx).Warn("Revoked refresh token presented",
			zap.String("user_id", claims.UserID.String()))
		return nil, apperrors.InvalidTokenError("Refresh token has been revoked")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	out, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	return &domain.AuthResponse{
		User:         out.User,
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresIn:    out.ExpiresIn,
	}, nil
}

// Logout revokes the access token and, when given, the refresh token
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, accessToken, refreshToken, ipAddress string) error {
	claims, err := s.jwtManager.ValidateAccessToken(accessToken)
	if err != nil {
		return apperrors.InvalidTokenError("Invalid access token")
	}
	if err := s.sessionRepo.BlacklistToken(ctx, claims.ID, claims.RemainingTTL()); err != nil {
		return err
	}

	if refreshToken != "" {
		refreshClaims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
		if err == nil && refreshClaims.UserID == userID {
			if err := s.sessionRepo.BlacklistToken(ctx, refreshClaims.ID, refreshClaims.RemainingTTL()); err != nil {
				// Log but don't fail, the access token is already revoked
				logger.FromContext(ctx).Warn("Failed to revoke refresh token during logout",
					zap.String("user_id", userID.String()),
					zap.Error(err))
			}
		}
	}

	if err := s.audit.LogLogout(ctx, userID, ipAddress); err != nil {
		logger.FromContext(ctx).Warn("Failed to write logout audit event",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	return nil
}

// IsTokenRevoked checks if a token ID has been blacklisted
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return s.sessionRepo.IsTokenBlacklisted(ctx, jti)
}

// Me returns the signed-in user's profile
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.ToResponse(), nil
}

func (s *Service) issue(user *domain.User) (*LoginOutput, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.UserID, user.Login, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &LoginOutput{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessTokenDuration().Seconds()),
	}, nil
}

// generateToken generates a random token
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
