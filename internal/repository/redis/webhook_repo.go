package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WebhookRepository de-duplicates payment webhook deliveries by event ID
type WebhookRepository struct {
	client *redis.Client
}

// NewWebhookRepository creates a new WebhookRepository
func NewWebhookRepository(client *redis.Client) *WebhookRepository {
	return &WebhookRepository{client: client}
}

func webhookKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// MarkProcessing claims an event. It returns false if the event was already
// claimed within ttl.
func (r *WebhookRepository) MarkProcessing(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, webhookKey(eventID), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	return ok, nil
}

// Release drops the claim so a redelivery of the event is processed again
func (r *WebhookRepository) Release(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, webhookKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to release webhook event: %w", err)
	}
	return nil
}
