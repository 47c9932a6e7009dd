package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"callsubs-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without calling the operation while the circuit is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// Options tunes a Breaker
type Options struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // time spent open before a probe is allowed
	MaxAttempts      int           // attempts per Execute, including the first
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	Timeout          time.Duration // per Execute, covering all attempts

	// OnResult is called after every attempt, e.g. to record vendor metrics
	OnResult func(operation string, duration time.Duration, err error)
}

// DefaultOptions are used for vendor HTTP calls
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 3,
		Cooldown:         10 * time.Second,
		MaxAttempts:      3,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		Timeout:          15 * time.Second,
	}
}

// Breaker wraps calls to one remote dependency with retry, timeout and a
// circuit breaker
type Breaker struct {
	name string
	opts Options

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	probing             bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBreaker creates a breaker for the named dependency
func NewBreaker(name string, opts Options) *Breaker {
	defaults := DefaultOptions()
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaults.FailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaults.Cooldown
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaults.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaults.MaxBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}

	return &Breaker{
		name:  name,
		opts:  opts,
		state: CircuitBreakerClosed,
		now:   time.Now,
		sleep: sleepContext,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Permanent errors do not count
// toward opening the circuit because the remote side answered.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Execute runs fn with retry, timeout, and circuit breaker
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= b.opts.MaxAttempts; attempt++ {
		if err := b.allow(); err != nil {
			logger.Warn("Circuit breaker rejected request",
				zap.String("dependency", b.name),
				zap.String("operation", operation),
			)
			if lastErr != nil {
				return fmt.Errorf("%s %s: %w (last error: %v)", b.name, operation, err, lastErr)
			}
			return fmt.Errorf("%s %s: %w", b.name, operation, err)
		}

		if attempt > 1 {
			logger.Warn("Retrying vendor operation",
				zap.String("dependency", b.name),
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		start := b.now()
		err := fn(ctx)
		if b.opts.OnResult != nil {
			b.opts.OnResult(operation, b.now().Sub(start), err)
		}

		if err == nil {
			b.onSuccess()
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			b.onSuccess()
			return err
		}
		b.onFailure(operation, err)

		if attempt == b.opts.MaxAttempts {
			break
		}
		if sleepErr := b.sleep(ctx, b.backoff(attempt)); sleepErr != nil {
			return fmt.Errorf("%s %s timed out: %w", b.name, operation, lastErr)
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", b.name, operation, b.opts.MaxAttempts, lastErr)
}

// State returns the current circuit breaker state
func (b *Breaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.opts.Cooldown {
			return ErrCircuitOpen
		}
		b.state = CircuitBreakerHalfOpen
		b.probing = true
		logger.Info("Circuit breaker HALF-OPEN, sending probe", zap.String("dependency", b.name))
		return nil
	case CircuitBreakerHalfOpen:
		// Only one probe at a time
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitBreakerClosed {
		logger.Info("Circuit breaker CLOSED", zap.String("dependency", b.name))
	}
	b.state = CircuitBreakerClosed
	b.consecutiveFailures = 0
	b.probing = false
}

func (b *Breaker) onFailure(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.probing = false

	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.opts.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker OPEN",
				zap.String("dependency", b.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.String("error_type", classifyError(err)),
			)
		}
		b.state = CircuitBreakerOpen
		b.openedAt = b.now()
	}
}

func (b *Breaker) backoff(attempt int) time.Duration {
	backoff := b.opts.InitialBackoff << (attempt - 1)
	if backoff > b.opts.MaxBackoff || backoff <= 0 {
		backoff = b.opts.MaxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyError classifies errors for log fields
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host"):
		return "dns"
	case strings.Contains(errMsg, "status 5"):
		return "server_error"
	default:
		return "unknown"
	}
}
