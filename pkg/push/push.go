package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsubs-backend/pkg/logger"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Notification represents a push notification
type Notification struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	Priority    string            `json:"priority,omitempty"` // high, normal
	Sound       string            `json:"sound,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
}

// Platform of the device holding a token
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

// Token represents a push notification token for a user
type Token struct {
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Platform  Platform  `json:"platform"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// TokenRepository defines interface for storing and retrieving push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	Delete(ctx context.Context, userID uuid.UUID, token string) error
	DeleteByToken(ctx context.Context, token string) error
}

// Service handles push notification operations
type Service struct {
	provider Provider
	repo     TokenRepository
}

// NewService creates a new push notification service
func NewService(provider Provider, repo TokenRepository) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
	}
}

// RegisterToken registers a device token for a user. Re-registering the
// same token moves it to the new owner.
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	if token.Token == "" {
		return fmt.Errorf("token is required")
	}
	if err := s.repo.DeleteByToken(ctx, token.Token); err != nil {
		logger.Warn("Failed to clear previous token owner", zap.Error(err))
	}
	return s.repo.Store(ctx, token)
}

// UnregisterToken removes one device token of a user
func (s *Service) UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error {
	return s.repo.Delete(ctx, userID, token)
}

// NotifyUser sends a notification to every device of a user. Having no
// devices is not an error.
func (s *Service) NotifyUser(ctx context.Context, userID uuid.UUID, notification *Notification) error {
	tokens, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get push tokens: %w", err)
	}

	values := make([]string, 0, len(tokens))
	for _, token := range tokens {
		values = append(values, token.Token)
	}
	if len(values) == 0 {
		logger.Debug("No push tokens for user", zap.String("user_id", userID.String()))
		return nil
	}

	result, err := s.provider.Send(ctx, notification, values)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}

	logger.Info("Push notification sent",
		zap.String("user_id", userID.String()),
		zap.String("type", notification.Data["type"]),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)))

	for _, invalid := range result.InvalidTokens {
		if err := s.repo.Delete(ctx, userID, invalid); err != nil {
			logger.Warn("Failed to remove invalid push token", zap.Error(err))
		}
	}

	return nil
}

// CallNotification builds the notification for a call request status change
func CallNotification(callID uuid.UUID, status, title, body string) *Notification {
	priority := "normal"
	if status == "pending" || status == "active" {
		priority = "high"
	}
	return &Notification{
		Title:       title,
		Body:        body,
		Priority:    priority,
		Sound:       "default",
		ClickAction: "OPEN_CALL",
		Data: map[string]string{
			"type":    "call_status",
			"call_id": callID.String(),
			"status":  status,
		},
	}
}

// MockProvider records notifications instead of sending them
type MockProvider struct {
	mu   sync.Mutex
	sent []*Notification
}

// Send implements Provider interface
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.mu.Lock()
	m.sent = append(m.sent, notification)
	m.mu.Unlock()

	logger.Debug("MockProvider: Sending notification",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))

	return &SendResult{SuccessCount: len(tokens)}, nil
}

// Sent returns a copy of every notification passed to Send
func (m *MockProvider) Sent() []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Notification, len(m.sent))
	copy(out, m.sent)
	return out
}
