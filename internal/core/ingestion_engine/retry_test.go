package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexrag/ingesta/internal/core"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	retries := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("429 rate limit exceeded")
		}
		return nil
	}, func(core.ErrorClass) { retries++ })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries, "only the sleeps count, not the final success")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return errors.New("connection refused")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.Contains(t, err.Error(), "after 5 attempt(s)")
}

func TestRetryAuthPropagatesImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("embed: %w", core.ErrAuth)
	}, nil)

	require.ErrorIs(t, err, core.ErrAuth)
	assert.Equal(t, 1, calls, "credential failures are terminal for the whole run")
}

func TestRetryExtractionNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("%w: corrupt pdf", core.ErrExtraction)
	}, nil)

	require.ErrorIs(t, err, core.ErrExtraction)
	assert.Equal(t, 1, calls)
}

func TestRetryReportsClassOnEachSleep(t *testing.T) {
	var classes []core.ErrorClass
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		switch calls {
		case 1:
			return errors.New("rate limit")
		case 2:
			return errors.New("connection reset")
		default:
			return nil
		}
	}, func(c core.ErrorClass) { classes = append(classes, c) })

	require.NoError(t, err)
	assert.Equal(t, []core.ErrorClass{core.ClassRateLimit, core.ClassNetwork}, classes)
}

func TestRetryDelaysGrowExponentially(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, Multiplier: 2}
	start := time.Now()
	_ = p.Do(context.Background(), func() error {
		return errors.New("rate limit")
	}, nil)
	// Sleeps: 10 + 20 + 40 = 70ms minimum.
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, Multiplier: 2}
	err := p.Do(ctx, func() error {
		return errors.New("rate limit")
	}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
