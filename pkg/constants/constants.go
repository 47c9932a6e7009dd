// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// VendorTimeout bounds a single request to Stripe, Daily or Twitch
	VendorTimeout = 10 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 30 * time.Second

	// WebSocketPongWait is how long a client may stay silent before the stream is closed
	WebSocketPongWait = 70 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// PresenceTTL is how long a streamer stays online after the last dashboard heartbeat
	PresenceTTL = 90 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Auth-related constants
const (
	// OAuthStateTTL is how long a login attempt may take before its state is forgotten
	OAuthStateTTL = 10 * time.Minute

	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 30 * 24 * time.Hour
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Storage constants
const (
	// PresignedURLExpiry is the validity period for presigned export URLs
	PresignedURLExpiry = 15 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour
)

// Audit log constants
const (
	// AuditLogRetention is the duration audit logs are retained
	AuditLogRetention = 90 * 24 * time.Hour

	// AuditLogMaxEntries caps a single audit list
	AuditLogMaxEntries = 500
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100

	// MinPageSize is the minimum number of items per page
	MinPageSize = 1
)

// Streamer settings bounds
const (
	MinPriceCents = 100
	MaxPriceCents = 100000

	MinDurationMinutes = 1
	MaxDurationMinutes = 60

	MaxCooldownMinutes = 10080 // one week

	MinPendingRequests = 1
	MaxPendingRequests = 100

	MaxAccountAgeDays = 3650

	// Defaults applied when a user becomes a streamer
	DefaultPriceCents         = 500
	DefaultDurationMinutes    = 5
	DefaultMaxPendingRequests = 10
)

// Validation constants
const (
	// MaxBioLength is the maximum allowed streamer bio length after sanitization
	MaxBioLength = 1000

	// MaxCallMessageLength is the maximum length of the note attached to a call request
	MaxCallMessageLength = 500

	// MinSlugLength is the minimum allowed slug length
	MinSlugLength = 3

	// MaxSlugLength is the maximum allowed slug length
	MaxSlugLength = 40

	// MaxAnalyticsDays is the widest analytics window
	MaxAnalyticsDays = 365
)
