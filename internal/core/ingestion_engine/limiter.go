package ingestion_engine

import (
	"context"
	"sync"
	"time"
)

// reservation records one embedding request inside the sliding window.
type reservation struct {
	at     time.Time
	tokens int
}

// RateLimiter is the shared gate every worker passes through before calling
// the embedding provider. It enforces two independent sliding-window budgets,
// requests per minute and tokens per minute, each capped at a safety fraction
// of the provider's advertised ceiling.
//
// The lock protects only the check-and-reserve step; it is never held across
// a network call, so blocked workers wait on time, not on each other's I/O.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time

	maxRequests int
	maxTokens   int

	events []reservation
}

// NewRateLimiter builds a limiter over a 60-second sliding window with both
// budgets scaled by fraction (e.g. 5000 RPM at 0.7 allows 3500 requests per
// trailing minute).
func NewRateLimiter(rpmLimit, tpmLimit int, fraction float64) *RateLimiter {
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	return &RateLimiter{
		window:      time.Minute,
		now:         time.Now,
		maxRequests: int(float64(rpmLimit) * fraction),
		maxTokens:   int(float64(tpmLimit) * fraction),
	}
}

// Acquire blocks until one request carrying estimatedTokens fits under both
// budgets, then records the reservation atomically before returning. It never
// rejects; it delays. The only early exit is ctx cancellation.
func (rl *RateLimiter) Acquire(ctx context.Context, estimatedTokens int) error {
	for {
		rl.mu.Lock()
		now := rl.now()
		rl.prune(now)

		used := 0
		for _, ev := range rl.events {
			used += ev.tokens
		}

		fits := len(rl.events) < rl.maxRequests && used+estimatedTokens <= rl.maxTokens
		// A single oversized batch can never fit; let it through alone
		// rather than deadlocking the worker.
		if !fits && len(rl.events) == 0 {
			fits = true
		}
		if fits {
			rl.events = append(rl.events, reservation{at: now, tokens: estimatedTokens})
			rl.mu.Unlock()
			return nil
		}

		// Sleep until the oldest reservation rolls out of the window.
		wait := rl.events[0].at.Add(rl.window).Sub(now)
		rl.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Usage reports requests and tokens consumed in the trailing window. The
// monitor displays these; they never feed back into scheduling.
func (rl *RateLimiter) Usage() (requests, tokens int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.prune(rl.now())
	for _, ev := range rl.events {
		tokens += ev.tokens
	}
	return len(rl.events), tokens
}

// Budgets returns the effective per-window ceilings after the safety fraction.
func (rl *RateLimiter) Budgets() (requests, tokens int) {
	return rl.maxRequests, rl.maxTokens
}

// prune drops reservations older than the window. Caller holds rl.mu.
func (rl *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.events) && !rl.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		rl.events = append(rl.events[:0], rl.events[i:]...)
	}
}
