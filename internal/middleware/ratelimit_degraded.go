package middleware

import (
	"sync"
	"time"
)

// InMemoryRateLimiter is the per-process fallback used while Redis is
// degraded. Limits then apply per instance rather than globally.
type InMemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewInMemoryRateLimiter creates a new in-memory rate limiter
func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// Allow counts one request against key and reports whether it fits the limit
func (im *InMemoryRateLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Time) {
	im.mu.Lock()
	defer im.mu.Unlock()

	now := im.now()
	w, ok := im.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		im.windows[key] = w
	}
	w.count++

	if len(im.windows) > 10000 {
		im.evictExpired(now)
	}

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return w.count <= limit, remaining, w.resetAt
}

func (im *InMemoryRateLimiter) evictExpired(now time.Time) {
	for key, w := range im.windows {
		if !now.Before(w.resetAt) {
			delete(im.windows, key)
		}
	}
}
