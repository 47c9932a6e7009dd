package domain

import (
	"time"

	"github.com/google/uuid"
)

// Streamer is the profile a user creates to accept paid calls
// Maps to the streamers table
type Streamer struct {
	UserID          uuid.UUID        `json:"user_id" db:"user_id"`
	Slug            string           `json:"slug" db:"slug"`
	Bio             string           `json:"bio" db:"bio"`
	Settings        StreamerSettings `json:"settings"`
	StripeAccountID string           `json:"-" db:"stripe_account_id"`
	StripeOnboarded bool             `json:"stripe_onboarded" db:"stripe_onboarded"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`

	// Joined from users
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// StreamerSettings are the call terms a streamer controls
type StreamerSettings struct {
	PriceCents         int64  `json:"price_cents" db:"price_cents"`
	Currency           string `json:"currency" db:"currency"`
	DurationMinutes    int    `json:"duration_minutes" db:"duration_minutes"`
	AcceptingCalls     bool   `json:"accepting_calls" db:"accepting_calls"`
	MinAccountAgeDays  int    `json:"min_account_age_days" db:"min_account_age_days"`
	CooldownMinutes    int    `json:"cooldown_minutes" db:"cooldown_minutes"`
	MaxPendingRequests int    `json:"max_pending_requests" db:"max_pending_requests"`
}

// UpdateSettingsRequest is the body of PUT /v1/streamers/me/settings
type UpdateSettingsRequest struct {
	Bio                *string `json:"bio" binding:"omitempty,max=4000"`
	PriceCents         *int64  `json:"price_cents" binding:"omitempty,min=100,max=100000"`
	DurationMinutes    *int    `json:"duration_minutes" binding:"omitempty,min=1,max=60"`
	MinAccountAgeDays  *int    `json:"min_account_age_days" binding:"omitempty,min=0,max=3650"`
	CooldownMinutes    *int    `json:"cooldown_minutes" binding:"omitempty,min=0,max=10080"`
	MaxPendingRequests *int    `json:"max_pending_requests" binding:"omitempty,min=1,max=100"`
}

// CreateStreamerRequest is the optional body of POST /v1/streamers
type CreateStreamerRequest struct {
	Slug string `json:"slug" binding:"omitempty,slug"`
}

// AvailabilityRequest toggles whether new requests are accepted
type AvailabilityRequest struct {
	AcceptingCalls *bool `json:"accepting_calls" binding:"required"`
}

// StreamerResponse is the private view a streamer sees of their own profile
type StreamerResponse struct {
	UserID          uuid.UUID        `json:"user_id"`
	Slug            string           `json:"slug"`
	Bio             string           `json:"bio"`
	Settings        StreamerSettings `json:"settings"`
	Price           string           `json:"price"`
	StripeConnected bool             `json:"stripe_connected"`
	StripeOnboarded bool             `json:"stripe_onboarded"`
	PendingCount    int              `json:"pending_count"`
	CreatedAt       time.Time        `json:"created_at"`
}

// PublicProfile is what viewers see on a streamer page
type PublicProfile struct {
	UserID          uuid.UUID `json:"user_id"`
	Slug            string    `json:"slug"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	Bio             string    `json:"bio"`
	PriceCents      int64     `json:"price_cents"`
	Currency        string    `json:"currency"`
	Price           string    `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	AcceptingCalls  bool      `json:"accepting_calls"`
	Online          bool      `json:"online"`
}

// OnboardingResponse carries the Stripe account link a streamer must visit
type OnboardingResponse struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

// StripeStatusResponse reports the streamer's Connect account state
type StripeStatusResponse struct {
	AccountID        string `json:"account_id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	Onboarded        bool   `json:"onboarded"`
}
