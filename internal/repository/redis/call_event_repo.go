package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"callsubs-backend/internal/domain"
)

// CallEventRepository fans call status changes out over Redis pub/sub so
// every API instance can push them to its WebSocket clients
type CallEventRepository struct {
	client *redis.Client
}

// NewCallEventRepository creates a new CallEventRepository
func NewCallEventRepository(client *redis.Client) *CallEventRepository {
	return &CallEventRepository{client: client}
}

// CallChannel returns the pub/sub channel for one call request
func CallChannel(callID uuid.UUID) string {
	return fmt.Sprintf("call:status:%s", callID)
}

// StreamerChannel returns the pub/sub channel carrying every call event of
// one streamer, used by the dashboard stream
func StreamerChannel(streamerID uuid.UUID) string {
	return fmt.Sprintf("streamer:calls:%s", streamerID)
}

// Publish sends an event to the call's channel and to its streamer's channel
func (r *CallEventRepository) Publish(ctx context.Context, event *domain.CallEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal call event: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Publish(ctx, CallChannel(event.CallID), data)
	if event.StreamerID != uuid.Nil {
		pipe.Publish(ctx, StreamerChannel(event.StreamerID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish call event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to one channel. The caller must Close the
// returned PubSub.
func (r *CallEventRepository) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	// Wait for confirmation so no event published right after is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to call events: %w", err)
	}
	return pubsub, nil
}

// DecodeEvent parses a pub/sub payload
func DecodeEvent(payload string) (*domain.CallEvent, error) {
	var event domain.CallEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to decode call event: %w", err)
	}
	return &event, nil
}
