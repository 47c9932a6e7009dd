package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a call request
type CallStatus string

const (
	CallStatusPending        CallStatus = "pending"
	CallStatusPaymentPending CallStatus = "payment_pending"
	CallStatusActive         CallStatus = "active"
	CallStatusCompleted      CallStatus = "completed"
	CallStatusRejected       CallStatus = "rejected"
	CallStatusCancelled      CallStatus = "cancelled"
	CallStatusExpired        CallStatus = "expired"
)

// Reasons recorded in end_reason
const (
	EndReasonCompletedByStreamer = "completed_by_streamer"
	EndReasonCompletedByViewer   = "completed_by_viewer"
	EndReasonTimeUp              = "time_up"
	EndReasonRequestTimeout      = "request_timeout"
	EndReasonPaymentTimeout      = "payment_timeout"
	EndReasonRejected            = "rejected"
	EndReasonCancelled           = "cancelled"
)

// transitions lists the statuses each status may move to
var transitions = map[CallStatus][]CallStatus{
	CallStatusPending:        {CallStatusPaymentPending, CallStatusRejected, CallStatusCancelled, CallStatusExpired},
	CallStatusPaymentPending: {CallStatusActive, CallStatusCancelled, CallStatusExpired},
	CallStatusActive:         {CallStatusCompleted},
}

// OpenStatuses are the statuses covered by the one-open-request index
var OpenStatuses = []CallStatus{CallStatusPending, CallStatusPaymentPending, CallStatusActive}

// IsTerminal reports whether no further transition is possible
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusRejected, CallStatusCancelled, CallStatusExpired:
		return true
	}
	return false
}

// IsValid reports whether s is a known status
func (s CallStatus) IsValid() bool {
	switch s {
	case CallStatusPending, CallStatusPaymentPending, CallStatusActive,
		CallStatusCompleted, CallStatusRejected, CallStatusCancelled, CallStatusExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesFor returns every status that may move to target
func SourcesFor(target CallStatus) []CallStatus {
	var from []CallStatus
	for _, s := range []CallStatus{CallStatusPending, CallStatusPaymentPending, CallStatusActive} {
		if s.CanTransitionTo(target) {
			from = append(from, s)
		}
	}
	return from
}

// StatusStrings converts statuses for use as a SQL text array
func StatusStrings(statuses []CallStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// CallRequest is one viewer's request for a paid call with a streamer
// Maps to the call_requests table
type CallRequest struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	StreamerID        uuid.UUID  `json:"streamer_id" db:"streamer_id"`
	ViewerID          uuid.UUID  `json:"viewer_id" db:"viewer_id"`
	Status            CallStatus `json:"status" db:"status"`
	Message           string     `json:"message" db:"message"`
	PriceCents        int64      `json:"price_cents" db:"price_cents"`
	Currency          string     `json:"currency" db:"currency"`
	DurationMinutes   int        `json:"duration_minutes" db:"duration_minutes"`
	CheckoutSessionID string     `json:"-" db:"checkout_session_id"`
	CheckoutURL       string     `json:"-" db:"checkout_url"`
	PaymentIntentID   string     `json:"-" db:"payment_intent_id"`
	AmountPaidCents   int64      `json:"amount_paid_cents" db:"amount_paid_cents"`
	RoomName          string     `json:"-" db:"room_name"`
	RoomURL           string     `json:"-" db:"room_url"`
	PaymentExpiresAt  *time.Time `json:"payment_expires_at,omitempty" db:"payment_expires_at"`
	StartedAt         *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndsAt            *time.Time `json:"ends_at,omitempty" db:"ends_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	EndReason         string     `json:"end_reason,omitempty" db:"end_reason"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`

	// PreviousStatus is the status the row held just before the last
	// Transition. Empty on reads.
	PreviousStatus CallStatus `json:"-" db:"-"`
}

// IsParticipant reports whether userID is the streamer or the viewer
func (c *CallRequest) IsParticipant(userID uuid.UUID) bool {
	return c.StreamerID == userID || c.ViewerID == userID
}

// Duration returns the booked call length
func (c *CallRequest) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// ElapsedSeconds returns how long the call ran, zero if it never started
func (c *CallRequest) ElapsedSeconds() int64 {
	if c.StartedAt == nil {
		return 0
	}
	end := c.EndedAt
	if end == nil {
		return 0
	}
	secs := int64(end.Sub(*c.StartedAt).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// TransitionUpdate holds the columns set together with a status change.
// Zero values leave the column untouched.
type TransitionUpdate struct {
	CheckoutSessionID string
	CheckoutURL       string
	PaymentIntentID   string
	AmountPaidCents   int64
	RoomName          string
	RoomURL           string
	PaymentExpiresAt  *time.Time
	StartedAt         *time.Time
	EndsAt            *time.Time
	EndedAt           *time.Time
	EndReason         string
}

// CreateCallRequest is the body of POST /v1/streamers/:slug/calls
type CreateCallRequest struct {
	Message string `json:"message" binding:"max=2000"`
}

// CallListFilter narrows streamer and viewer call lists
type CallListFilter struct {
	Statuses []CallStatus
	Limit    int
	Offset   int
}

// CallView is the status payload polled by clients and pushed over WebSocket
type CallView struct {
	ID               uuid.UUID  `json:"id"`
	Status           CallStatus `json:"status"`
	Role             string     `json:"role"` // streamer or viewer
	StreamerID       uuid.UUID  `json:"streamer_id"`
	ViewerID         uuid.UUID  `json:"viewer_id"`
	StreamerName     string     `json:"streamer_name,omitempty"`
	ViewerName       string     `json:"viewer_name,omitempty"`
	Message          string     `json:"message,omitempty"`
	PriceCents       int64      `json:"price_cents"`
	Currency         string     `json:"currency"`
	Price            string     `json:"price"`
	DurationMinutes  int        `json:"duration_minutes"`
	CheckoutURL      string     `json:"checkout_url,omitempty"`
	PaymentExpiresAt *time.Time `json:"payment_expires_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	EndReason        string     `json:"end_reason,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	ServerTime       int64      `json:"server_time"`
	CreatedAt        time.Time  `json:"created_at"`
}

// JoinTokenResponse lets a participant enter the call room
type JoinTokenResponse struct {
	RoomURL   string    `json:"room_url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CallEvent is published on call:status:<id> and streamer:calls:<streamer id>
// after every transition
type CallEvent struct {
	CallID     uuid.UUID  `json:"call_id"`
	StreamerID uuid.UUID  `json:"streamer_id"`
	From       CallStatus `json:"from,omitempty"`
	Status     CallStatus `json:"status"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
	EndReason  string     `json:"end_reason,omitempty"`
	ServerTime int64      `json:"server_time"`
}

// SweepResult counts what one expiry pass changed
type SweepResult struct {
	ExpiredPending  int `json:"expired_pending"`
	ExpiredPayment  int `json:"expired_payment"`
	CompletedActive int `json:"completed_active"`
	Failed          int `json:"failed"`
}
