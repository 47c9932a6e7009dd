package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"callsubs-backend/pkg/constants"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Authentication events
	EventLoginSuccess AuditEventType = "login_success"
	EventLoginFailed  AuditEventType = "login_failed"
	EventLogout       AuditEventType = "logout"

	// Streamer events
	EventStreamerCreated  AuditEventType = "streamer_created"
	EventSettingsUpdate   AuditEventType = "settings_update"
	EventCallerBlocked    AuditEventType = "caller_blocked"
	EventCallerUnblocked  AuditEventType = "caller_unblocked"
	EventStripeOnboarding AuditEventType = "stripe_onboarding"

	// Call events
	EventCallTransition AuditEventType = "call_transition"
	EventCallRefund     AuditEventType = "call_refund"
)

// AuditEvent represents an audit log entry
type AuditEvent struct {
	EventID   uuid.UUID      `json:"event_id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	CallID    *uuid.UUID     `json:"call_id,omitempty"`
	EventType AuditEventType `json:"event_type"`
	Action    string         `json:"action,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	Success   bool           `json:"success"`
	Details   string         `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditLogger stores audit events in capped Redis lists, one per user and
// one per call request
type AuditLogger struct {
	redisClient *redis.Client
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(redisClient *redis.Client) *AuditLogger {
	return &AuditLogger{
		redisClient: redisClient,
	}
}

func userKey(userID uuid.UUID) string {
	return fmt.Sprintf("audit:user:%s", userID)
}

func callKey(callID uuid.UUID) string {
	return fmt.Sprintf("audit:call:%s", callID)
}

// Log logs an audit event
func (al *AuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	keys := make([]string, 0, 2)
	if event.UserID != nil {
		keys = append(keys, userKey(*event.UserID))
	}
	if event.CallID != nil {
		keys = append(keys, callKey(*event.CallID))
	}
	if len(keys) == 0 {
		return fmt.Errorf("audit event has neither user nor call")
	}

	pipe := al.redisClient.TxPipeline()
	for _, key := range keys {
		pipe.RPush(ctx, key, eventJSON)
		pipe.LTrim(ctx, key, -constants.AuditLogMaxEntries, -1)
		pipe.Expire(ctx, key, constants.AuditLogRetention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}

	return nil
}

// LogLogin logs a sign-in attempt
func (al *AuditLogger) LogLogin(ctx context.Context, userID uuid.UUID, ipAddress string, success bool, details string) error {
	eventType := EventLoginSuccess
	if !success {
		eventType = EventLoginFailed
	}
	return al.Log(ctx, &AuditEvent{
		UserID:    &userID,
		EventType: eventType,
		IPAddress: ipAddress,
		Success:   success,
		Details:   details,
	})
}

// LogLogout logs a logout
func (al *AuditLogger) LogLogout(ctx context.Context, userID uuid.UUID, ipAddress string) error {
	return al.Log(ctx, &AuditEvent{
		UserID:    &userID,
		EventType: EventLogout,
		IPAddress: ipAddress,
		Success:   true,
	})
}

// LogStreamerAction logs a change a streamer made to their own account
func (al *AuditLogger) LogStreamerAction(ctx context.Context, userID uuid.UUID, eventType AuditEventType, details string) error {
	return al.Log(ctx, &AuditEvent{
		UserID:    &userID,
		EventType: eventType,
		Success:   true,
		Details:   details,
	})
}

// LogCallTransition logs a status change on a call request. actorID is nil
// when the change came from the payment webhook or the expiry worker.
func (al *AuditLogger) LogCallTransition(ctx context.Context, callID uuid.UUID, actorID *uuid.UUID, from, to string) error {
	return al.Log(ctx, &AuditEvent{
		UserID:    actorID,
		CallID:    &callID,
		EventType: EventCallTransition,
		Action:    fmt.Sprintf("%s->%s", from, to),
		Success:   true,
	})
}

// LogCallRefund logs a refund issued for a call request
func (al *AuditLogger) LogCallRefund(ctx context.Context, callID uuid.UUID, details string) error {
	return al.Log(ctx, &AuditEvent{
		CallID:    &callID,
		EventType: EventCallRefund,
		Success:   true,
		Details:   details,
	})
}

// GetUserEvents returns the most recent events for a user, newest first
func (al *AuditLogger) GetUserEvents(ctx context.Context, userID uuid.UUID, limit int) ([]*AuditEvent, error) {
	return al.read(ctx, userKey(userID), limit, true)
}

// GetCallEvents returns the timeline of a call request, oldest first
func (al *AuditLogger) GetCallEvents(ctx context.Context, callID uuid.UUID) ([]*AuditEvent, error) {
	return al.read(ctx, callKey(callID), constants.AuditLogMaxEntries, false)
}

func (al *AuditLogger) read(ctx context.Context, key string, limit int, newestFirst bool) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}

	members, err := al.redisClient.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}

	events := make([]*AuditEvent, 0, len(members))
	for _, member := range members {
		var event AuditEvent
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}

	if newestFirst {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}

	return events, nil
}
