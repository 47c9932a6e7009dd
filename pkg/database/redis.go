package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"callsubs-backend/pkg/config"
	"callsubs-backend/pkg/logger"
)

// RedisClient wraps the Redis client with degraded mode tracking. Callers
// that can live without Redis (rate limiting, presence) check IsDegraded and
// skip the round trip instead of waiting for a timeout.
type RedisClient struct {
	Client        *redis.Client
	degraded      atomic.Bool
	healthCheckMu sync.Mutex
}

// NewRedis creates a new Redis client from config and pings it
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: client}, nil
}

// NewRedisFromClient wraps an existing client, used by tests
func NewRedisFromClient(client *redis.Client) *RedisClient {
	return &RedisClient{Client: client}
}

// Close closes the Redis client connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// IsDegraded returns true if the last health check failed
func (r *RedisClient) IsDegraded() bool {
	return r.degraded.Load()
}

// HealthCheck pings Redis and updates degraded mode
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		if !r.degraded.Swap(true) {
			logger.Warn("Redis unavailable, entering degraded mode", zap.Error(err))
		}
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if r.degraded.Swap(false) {
		logger.Info("Redis recovered, leaving degraded mode")
	}
	return nil
}

// StartHealthCheck periodically checks Redis health until ctx is done
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = r.HealthCheck(ctx)
			}
		}
	}()
}
