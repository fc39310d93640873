package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/codexrag/ingesta/internal/core"
)

// RetryPolicy is applied uniformly by every call site that talks to the
// embedding provider or the registry: max attempts, base delay, exponential
// multiplier (1s, 2s, 4s, 8s, 16s with the defaults).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy mirrors the provider backoff the run was tuned with.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2}
}

// Do runs fn until it succeeds, exhausts MaxAttempts, or hits a terminal
// error class. Auth errors propagate immediately (the run must abort);
// extraction and other non-transient errors are not retried. onRetry fires
// once per sleep, letting the monitor count retries by class without ever
// reporting eventually-successful calls as failures.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, onRetry func(core.ErrorClass)) error {
	delay := p.BaseDelay
	var lastErr error

	attempt := 1
	for ; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		class := core.Classify(lastErr)
		if class == core.ClassAuth {
			return lastErr
		}
		if !core.Retryable(class) || attempt >= p.MaxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(class)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return fmt.Errorf("after %d attempt(s): %w", attempt, lastErr)
}
