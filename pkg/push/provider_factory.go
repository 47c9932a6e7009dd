package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"callsubs-backend/pkg/config"
	"callsubs-backend/pkg/logger"
)

// ProviderType represents the type of push notification provider
type ProviderType string

const (
	ProviderTypeMock     ProviderType = "mock"
	ProviderTypeFirebase ProviderType = "firebase"
)

// NewProvider creates the push provider selected by configuration
func NewProvider(ctx context.Context, cfg config.PushConfig) (Provider, error) {
	providerType := ProviderType(cfg.Provider)

	logger.Info("Initializing push notification provider",
		zap.String("provider_type", string(providerType)))

	switch providerType {
	case ProviderTypeFirebase:
		return NewFirebaseProvider(ctx, cfg.ProjectID, cfg.CredentialsPath)
	case ProviderTypeMock, "":
		return &MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}
