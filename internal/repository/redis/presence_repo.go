package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callsubs-backend/pkg/database"
)

// PresenceRepository tracks which streamers have the dashboard open. Presence
// is a hint for viewers, so every method is skipped while Redis is degraded.
type PresenceRepository struct {
	client *database.RedisClient
	ttl    time.Duration
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{client: client, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetOnline marks a user online. Calling it again acts as a heartbeat.
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	if r.client.IsDegraded() {
		return nil
	}
	if err := r.client.Client.Set(ctx, presenceKey(userID), "online", r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	return nil
}

// SetOffline clears a user's presence
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if r.client.IsDegraded() {
		return nil
	}
	if err := r.client.Client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}
	return nil
}

// IsOnline checks if a user is currently online
func (r *PresenceRepository) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	if r.client.IsDegraded() {
		return false, nil
	}
	n, err := r.client.Client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return n > 0, nil
}
