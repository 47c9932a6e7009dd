// Package payment wraps the payment processor used to charge viewers and pay
// streamers out through connected accounts.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Webhook event types the call lifecycle reacts to
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutExpired               = "checkout.session.expired"

	// MetadataCallRequestID is the checkout metadata key linking a session to its call request
	MetadataCallRequestID = "call_request_id"
)

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutInput describes the checkout session for one accepted call request
type CheckoutInput struct {
	CallRequestID       uuid.UUID
	StreamerName        string
	DurationMinutes     int
	PriceCents          int64
	Currency            string
	ApplicationFeeCents int64
	DestinationAccount  string
	CustomerEmail       string
	SuccessURL          string
	CancelURL           string
	ExpiresAt           time.Time
}

// CheckoutSession is the created session
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// ConnectAccount is a streamer's payout account
type ConnectAccount struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// WebhookEvent is the subset of a verified webhook the service needs
type WebhookEvent struct {
	ID                string
	Type              string
	CheckoutSessionID string
	PaymentIntentID   string
	CallRequestID     uuid.UUID
	AmountTotal       int64
	Currency          string
	PaymentStatus     string
}

// Paid reports whether the checkout session collected the money
func (e *WebhookEvent) Paid() bool {
	return e.PaymentStatus == "paid" || e.PaymentStatus == "no_payment_required"
}

// Provider is the payment processor
type Provider interface {
	CreateCheckout(ctx context.Context, input *CheckoutInput) (*CheckoutSession, error)
	ExpireCheckout(ctx context.Context, sessionID string) error
	Refund(ctx context.Context, paymentIntentID string, callRequestID uuid.UUID) error
	CreateConnectAccount(ctx context.Context, email string, userID uuid.UUID) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	AccountStatus(ctx context.Context, accountID string) (*ConnectAccount, error)
	ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}
