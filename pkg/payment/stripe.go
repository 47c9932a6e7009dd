package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	// minCheckoutLifetime is the shortest expiry Stripe accepts for a checkout session
	minCheckoutLifetime = 30 * time.Minute

	// checkoutExpiryMargin covers the time between building the request and
	// Stripe receiving it
	checkoutExpiryMargin = time.Minute
)

// StripeProvider implements Provider with Stripe Checkout and Connect Express
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	observe       func(operation string, duration time.Duration, err error)
	now           func() time.Time
}

// NewStripeProvider creates a provider for the given secret key
func NewStripeProvider(secretKey, webhookSecret string, observe func(string, time.Duration, error)) *StripeProvider {
	return &StripeProvider{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		observe:       observe,
		now:           time.Now,
	}
}

func (p *StripeProvider) record(operation string, start time.Time, err error) {
	if p.observe != nil {
		p.observe(operation, time.Since(start), err)
	}
}

// CreateCheckout creates a one-off Checkout session whose funds go to the
// streamer's connected account minus the platform fee
func (p *StripeProvider) CreateCheckout(ctx context.Context, input *CheckoutInput) (*CheckoutSession, error) {
	expiresAt := input.ExpiresAt
	if earliest := p.now().Add(minCheckoutLifetime + checkoutExpiryMargin); expiresAt.Before(earliest) {
		expiresAt = earliest
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(input.CallRequestID.String()),
		SuccessURL:        stripe.String(input.SuccessURL),
		CancelURL:         stripe.String(input.CancelURL),
		ExpiresAt:         stripe.Int64(ceilUnix(expiresAt)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(input.Currency),
					UnitAmount: stripe.Int64(input.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d minute call with %s", input.DurationMinutes, input.StreamerName)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(input.ApplicationFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(input.DestinationAccount),
			},
			Metadata: map[string]string{MetadataCallRequestID: input.CallRequestID.String()},
		},
	}
	if input.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(input.CustomerEmail)
	}
	params.AddMetadata(MetadataCallRequestID, input.CallRequestID.String())
	params.SetIdempotencyKey("checkout-" + input.CallRequestID.String())
	params.Context = ctx

	start := time.Now()
	session, err := p.api.CheckoutSessions.New(params)
	p.record("create_checkout", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{
		ID:        session.ID,
		URL:       session.URL,
		ExpiresAt: time.Unix(session.ExpiresAt, 0),
	}, nil
}

// ExpireCheckout closes an open checkout session so it can no longer be paid.
// Sessions that are already complete or expired are left alone.
func (p *StripeProvider) ExpireCheckout(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	start := time.Now()
	_, err := p.api.CheckoutSessions.Expire(sessionID, params)
	p.record("expire_checkout", start, err)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 400 {
			return nil
		}
		return fmt.Errorf("failed to expire checkout session: %w", err)
	}
	return nil
}

// Refund returns the full charge, pulling the transfer and fee back
func (p *StripeProvider) Refund(ctx context.Context, paymentIntentID string, callRequestID uuid.UUID) error {
	params := &stripe.RefundParams{
		PaymentIntent:        stripe.String(paymentIntentID),
		ReverseTransfer:      stripe.Bool(true),
		RefundApplicationFee: stripe.Bool(true),
		Reason:               stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata(MetadataCallRequestID, callRequestID.String())
	params.SetIdempotencyKey("refund-" + callRequestID.String())
	params.Context = ctx

	start := time.Now()
	_, err := p.api.Refunds.New(params)
	p.record("refund", start, err)
	if err != nil {
		return fmt.Errorf("failed to refund payment: %w", err)
	}
	return nil
}

// CreateConnectAccount creates an Express account for a streamer
func (p *StripeProvider) CreateConnectAccount(ctx context.Context, email string, userID uuid.UUID) (string, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID.String())
	params.SetIdempotencyKey("account-" + userID.String())
	params.Context = ctx

	start := time.Now()
	account, err := p.api.Accounts.New(params)
	p.record("create_account", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to create connect account: %w", err)
	}
	return account.ID, nil
}

// CreateOnboardingLink returns a one-time URL to finish account onboarding
func (p *StripeProvider) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	start := time.Now()
	link, err := p.api.AccountLinks.New(params)
	p.record("create_account_link", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to create onboarding link: %w", err)
	}
	return link.URL, nil
}

// AccountStatus fetches the connected account capabilities
func (p *StripeProvider) AccountStatus(ctx context.Context, accountID string) (*ConnectAccount, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	start := time.Now()
	account, err := p.api.Accounts.GetByID(accountID, params)
	p.record("get_account", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get connect account: %w", err)
	}

	return &ConnectAccount{
		ID:               account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event
func (p *StripeProvider) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeEvent(&event)
}

// decodeEvent extracts the checkout session fields from an event. Events of
// other types are returned with only ID and Type set.
func decodeEvent(event *stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceeded, EventCheckoutExpired:
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("webhook event %s has no data", event.ID)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	out.CheckoutSessionID = session.ID
	out.AmountTotal = session.AmountTotal
	out.Currency = string(session.Currency)
	out.PaymentStatus = string(session.PaymentStatus)
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}

	raw := session.Metadata[MetadataCallRequestID]
	if raw == "" {
		raw = session.ClientReferenceID
	}
	callID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("checkout session %s has no valid %s: %w", session.ID, MetadataCallRequestID, err)
	}
	out.CallRequestID = callID

	return out, nil
}

// ceilUnix rounds up to the next whole second so truncation never shortens
// the lifetime
func ceilUnix(t time.Time) int64 {
	if t.Nanosecond() > 0 {
		return t.Unix() + 1
	}
	return t.Unix()
}
