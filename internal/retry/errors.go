package retry

import (
	"errors"
	"fmt"
	"time"
)

// TransientError marks a failure worth retrying: network hiccups, 5xx
// responses, malformed bodies
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// RateLimitError signals the source asked us to slow down (HTTP 429)
type RateLimitError struct {
	RetryAfter time.Duration // zero when the source gave no hint
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// QuotaExceededError is terminal for the round: exhausted quota or an
// authorization failure. It is never retried.
type QuotaExceededError struct {
	Reason string
	Err    error
}

func (e *QuotaExceededError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("quota exceeded: %s", e.Reason)
	}
	return fmt.Sprintf("quota exceeded: %s: %v", e.Reason, e.Err)
}

func (e *QuotaExceededError) Unwrap() error { return e.Err }

// MaxRetriesExceededError is returned once the attempt budget is spent
type MaxRetriesExceededError struct {
	Attempts int
	Err      error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e *MaxRetriesExceededError) Unwrap() error { return e.Err }

// IsQuotaExceeded reports whether err (or anything it wraps) is terminal
// for the provider this round
func IsQuotaExceeded(err error) bool {
	var q *QuotaExceededError
	return errors.As(err, &q)
}

// IsRateLimited reports whether err carries a rate-limit signal
func IsRateLimited(err error) bool {
	var r *RateLimitError
	return errors.As(err, &r)
}
