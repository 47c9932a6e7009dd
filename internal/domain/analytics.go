package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallerStats aggregates one viewer's history with one streamer
// Maps to the caller_stats table
type CallerStats struct {
	StreamerID      uuid.UUID  `json:"streamer_id" db:"streamer_id"`
	ViewerID        uuid.UUID  `json:"viewer_id" db:"viewer_id"`
	TotalCalls      int        `json:"total_calls" db:"total_calls"`
	TotalSpentCents int64      `json:"total_spent_cents" db:"total_spent_cents"`
	TotalSeconds    int64      `json:"total_seconds" db:"total_seconds"`
	LastCallAt      *time.Time `json:"last_call_at,omitempty" db:"last_call_at"`
	Blocked         bool       `json:"blocked" db:"blocked"`
}

// AnalyticsTotals summarises completed calls in a window
type AnalyticsTotals struct {
	CompletedCalls int    `json:"completed_calls"`
	GrossCents     int64  `json:"gross_cents"`
	NetCents       int64  `json:"net_cents"`
	Gross          string `json:"gross"`
	Net            string `json:"net"`
	TotalMinutes   int64  `json:"total_minutes"`
	UniqueCallers  int    `json:"unique_callers"`
}

// DailyEarnings is one point of the earnings chart
type DailyEarnings struct {
	Day        time.Time `json:"day"`
	Calls      int       `json:"calls"`
	GrossCents int64     `json:"gross_cents"`
	NetCents   int64     `json:"net_cents"`
}

// TopCaller ranks viewers by spend
type TopCaller struct {
	ViewerID        uuid.UUID  `json:"viewer_id"`
	Login           string     `json:"login"`
	DisplayName     string     `json:"display_name"`
	TotalCalls      int        `json:"total_calls"`
	TotalSpentCents int64      `json:"total_spent_cents"`
	TotalMinutes    int64      `json:"total_minutes"`
	LastCallAt      *time.Time `json:"last_call_at,omitempty"`
}

// Analytics is returned by GET /v1/streamers/me/analytics
type Analytics struct {
	Days       int             `json:"days"`
	Since      time.Time       `json:"since"`
	Currency   string          `json:"currency"`
	Totals     AnalyticsTotals `json:"totals"`
	Daily      []DailyEarnings `json:"daily"`
	TopCallers []TopCaller     `json:"top_callers"`
}

// CallHistoryRow is one line of the CSV export
type CallHistoryRow struct {
	ID              uuid.UUID
	ViewerLogin     string
	Status          CallStatus
	PriceCents      int64
	AmountPaidCents int64
	Currency        string
	DurationMinutes int
	StartedAt       *time.Time
	EndedAt         *time.Time
	EndReason       string
	CreatedAt       time.Time
}

// ExportResponse either carries a presigned URL or signals an inline CSV body
type ExportResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Rows      int       `json:"rows"`
}
