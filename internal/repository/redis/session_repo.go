package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRepository holds short-lived auth state: OAuth state nonces and
// revoked token IDs
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

func oauthStateKey(state string) string {
	return fmt.Sprintf("oauth:state:%s", state)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("token:blacklist:%s", jti)
}

// SaveOAuthState stores a sign-in state nonce
func (r *SessionRepository) SaveOAuthState(ctx context.Context, state string, ttl time.Duration) error {
	if err := r.client.Set(ctx, oauthStateKey(state), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState deletes the nonce and reports whether it existed. A
// state can be consumed only once.
func (r *SessionRepository) ConsumeOAuthState(ctx context.Context, state string) (bool, error) {
	err := r.client.GetDel(ctx, oauthStateKey(state)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return true, nil
}

// BlacklistToken revokes a token ID until its natural expiry
func (r *SessionRepository) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, blacklistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// RevokeOnce blacklists a token ID and reports whether this call did it.
// Concurrent callers for the same ID see exactly one true.
func (r *SessionRepository) RevokeOnce(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	ok, err := r.client.SetNX(ctx, blacklistKey(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return ok, nil
}

// IsTokenBlacklisted reports whether a token ID was revoked
func (r *SessionRepository) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}
