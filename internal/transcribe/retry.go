package transcribe

import (
	"context"
	"fmt"
	"time"
)

// Default retry configuration.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
)

// RetryConfig holds retry parameters for exponential backoff.
//
// MaxAttempts is the TOTAL attempt budget, not a count of extra tries:
// MaxAttempts of 3 means at most three requests hit the wire. Invalid
// values are normalized:
// - MaxAttempts < 1 becomes 1 (single attempt)
// - BaseDelay <= 0 becomes 1ms
// - MaxDelay <= 0 becomes BaseDelay
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// normalize ensures all RetryConfig fields have valid values.
func (c *RetryConfig) normalize() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.BaseDelay
	}
}

// RetryWithBackoff executes fn up to cfg.MaxAttempts times with
// exponential backoff. The wait before retry k is BaseDelay*2^(k-1),
// capped at MaxDelay. It retries only if shouldRetry returns true for
// the error, and honors context cancellation while waiting.
func RetryWithBackoff[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func() (T, error),
	shouldRetry func(error) bool,
) (T, error) {
	cfg.normalize()

	var zero T
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return zero, ctx.Err()
			case <-timer.C:
			}
			// Exponential backoff with cap.
			delay = min(delay*2, cfg.MaxDelay)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
