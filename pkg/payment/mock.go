package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"callsubs-backend/pkg/logger"
)

// MockProvider is an in-memory payment provider for development. Checkout
// URLs point at the app's own mock checkout page and webhooks are accepted
// unsigned, in Stripe's event JSON shape.
type MockProvider struct {
	appURL string

	mu       sync.Mutex
	accounts map[string]*ConnectAccount
	expired  map[string]bool
	refunds  []string
}

// NewMockProvider creates a mock provider
func NewMockProvider(appURL string) *MockProvider {
	return &MockProvider{
		appURL:   strings.TrimRight(appURL, "/"),
		accounts: make(map[string]*ConnectAccount),
		expired:  make(map[string]bool),
	}
}

// CreateCheckout returns a fake session
func (m *MockProvider) CreateCheckout(ctx context.Context, input *CheckoutInput) (*CheckoutSession, error) {
	id := "cs_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	logger.Info("Mock checkout session created",
		zap.String("session_id", id),
		zap.String("call_request_id", input.CallRequestID.String()),
		zap.Int64("amount", input.PriceCents),
		zap.Int64("fee", input.ApplicationFeeCents))

	return &CheckoutSession{
		ID:        id,
		URL:       fmt.Sprintf("%s/mock-checkout/%s?call=%s", m.appURL, id, input.CallRequestID),
		ExpiresAt: input.ExpiresAt,
	}, nil
}

// ExpireCheckout marks the session expired
func (m *MockProvider) ExpireCheckout(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired[sessionID] = true
	return nil
}

// Refund records the refund
func (m *MockProvider) Refund(ctx context.Context, paymentIntentID string, callRequestID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, paymentIntentID)
	logger.Info("Mock refund issued",
		zap.String("payment_intent_id", paymentIntentID),
		zap.String("call_request_id", callRequestID.String()))
	return nil
}

// CreateConnectAccount creates an account that is immediately chargeable
func (m *MockProvider) CreateConnectAccount(ctx context.Context, email string, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "acct_mock_" + strings.ReplaceAll(userID.String(), "-", "")[:16]
	m.accounts[id] = &ConnectAccount{ID: id, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}
	return id, nil
}

// CreateOnboardingLink returns the return URL directly
func (m *MockProvider) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return returnURL, nil
}

// AccountStatus returns the stored account
func (m *MockProvider) AccountStatus(ctx context.Context, accountID string) (*ConnectAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[accountID]; ok {
		copied := *account
		return &copied, nil
	}
	// Accounts created before a restart are treated as onboarded
	return &ConnectAccount{ID: accountID, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}, nil
}

// ParseWebhook decodes an unsigned event
func (m *MockProvider) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeEvent(&event)
}

// Refunds returns the payment intents refunded so far
func (m *MockProvider) Refunds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.refunds...)
}

// Expired reports whether ExpireCheckout was called for the session
func (m *MockProvider) Expired(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expired[sessionID]
}
