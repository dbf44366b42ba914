package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxAttempts bounds media uploads.
const DefaultMaxAttempts = 10

// Policy is a bounded retry policy. The zero value makes a single attempt.
type Policy struct {
	MaxAttempts int
	// Delay returns the pause before attempt n+1 after attempt n failed.
	// Nil means NoDelay.
	Delay func(attempt int) time.Duration
	// OnFailure, when set, observes every failed attempt.
	OnFailure func(attempt int, err error)
	Logger    *slog.Logger
}

// NoDelay retries immediately.
func NoDelay(int) time.Duration { return 0 }

// DefaultPolicy retries up to DefaultMaxAttempts times without pausing.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: NoDelay}
}

// ExhaustedError is returned once every attempt failed. It unwraps to the
// error of the final attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds or the attempts run out. Context cancellation
// between attempts stops the loop with the context error.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay == nil {
		delay = NoDelay
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		if p.OnFailure != nil {
			p.OnFailure(attempt, last)
		}
		if attempt == attempts {
			break
		}
		logger.Warn("attempt failed, retrying", "op", op, "attempt", attempt, "max_attempts", attempts, "error", last)

		if wait := delay(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return &ExhaustedError{Op: op, Attempts: attempts, Err: last}
}
