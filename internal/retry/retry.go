package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Controller wraps a single outbound call with bounded retries. It knows
// nothing about payloads, only about the error classes in this package.
type Controller struct {
	maxRetries int // total attempts, including the first
	baseDelay  time.Duration
	sleep      SleepFunc
	logger     *slog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithSleep replaces the wait between attempts (tests use an instant sleeper)
func WithSleep(fn SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithLogger sets the logger used for retry warnings
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller. Non-positive values fall back to the defaults
// (3 attempts, 2s base delay).
func New(maxRetries int, baseDelay time.Duration, opts ...Option) *Controller {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	c := &Controller{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      contextSleep,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxRetries returns the attempt budget
func (c *Controller) MaxRetries() int { return c.maxRetries }

// BaseDelay returns the unit delay between attempts
func (c *Controller) BaseDelay() time.Duration { return c.baseDelay }

// Do runs fn until it succeeds, hits a terminal error, or the attempt budget
// runs out. Delay after attempt n is baseDelay*n, doubled for rate limits.
func (c *Controller) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsQuotaExceeded(err) {
			c.logger.Warn("Provider quota exhausted, not retrying",
				"provider", name,
				"attempt", attempt,
				"error", err,
			)
			return err
		}

		// The round's deadline or shutdown cancelled the call itself
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return fmt.Errorf("%s: %w", name, err)
		}

		if attempt == c.maxRetries {
			break
		}

		delay := c.delayFor(attempt, err)
		c.logger.Warn("Provider call failed, retrying",
			"provider", name,
			"attempt", attempt,
			"max_attempts", c.maxRetries,
			"delay", delay,
			"rate_limited", IsRateLimited(err),
			"error", err,
		)

		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: backoff interrupted: %w", name, err)
		}
	}

	return &MaxRetriesExceededError{Attempts: c.maxRetries, Err: lastErr}
}

// delayFor computes the wait after the given (1-based) failed attempt
func (c *Controller) delayFor(attempt int, err error) time.Duration {
	delay := c.baseDelay * time.Duration(attempt)

	var rl *RateLimitError
	if errors.As(err, &rl) {
		delay *= 2
		if rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
	}
	return delay
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
