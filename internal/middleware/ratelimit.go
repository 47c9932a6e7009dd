package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callsubs-backend/pkg/database"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/response"
)

// BlockedRecorder counts rejected requests
type BlockedRecorder interface {
	RecordRateLimitBlocked(endpoint string)
}

// RateLimiter applies fixed-window limits shared through Redis. While Redis
// is degraded it falls back to per-process counters, and if a Redis call
// fails it lets the request through.
type RateLimiter struct {
	redis    *database.RedisClient
	fallback *InMemoryRateLimiter
	recorder BlockedRecorder
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter. recorder may be nil.
func NewRateLimiter(redisClient *database.RedisClient, recorder BlockedRecorder) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		fallback: NewInMemoryRateLimiter(),
		recorder: recorder,
		now:      time.Now,
	}
}

// Limit returns a middleware enforcing rule. Authenticated callers are
// counted per user, anonymous ones per client IP.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			identifier = "user:" + userID.String()
		}

		allowed, remaining, resetAt := rl.check(c.Request.Context(), rule, identifier)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			if rl.recorder != nil {
				rl.recorder.RecordRateLimitBlocked(rule.Name)
			}
			retryAfter := int(resetAt.Sub(rl.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.FromError(c, apperrors.RateLimitExceededError())
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) check(ctx context.Context, rule RateLimitRule, identifier string) (bool, int, time.Time) {
	key := fmt.Sprintf("ratelimit:%s:%s", rule.Name, identifier)

	if rl.redis == nil || rl.redis.IsDegraded() {
		return rl.fallback.Allow(key, rule.Requests, rule.Window)
	}

	count, ttl, err := rl.increment(ctx, key, rule.Window)
	if err != nil {
		logger.FromContext(ctx).Warn("Rate limit check failed, allowing request",
			zap.String("rule", rule.Name),
			zap.Error(err))
		return true, rule.Requests, rl.now().Add(rule.Window)
	}

	remaining := rule.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= rule.Requests, remaining, rl.now().Add(ttl)
}

// increment bumps the window counter and starts its expiry on first use
func (rl *RateLimiter) increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := rl.redis.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	ttl := pttl.Val()
	if ttl <= 0 {
		// New window, or a key that lost its expiry
		if err := rl.redis.Client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return incr.Val(), ttl, nil
}
