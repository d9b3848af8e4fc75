// Package backoff computes jittered exponential delays for retried store
// and broker operations.
package backoff

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff yields growing delays between a minimum and a maximum, each
// jittered by up to 20% either way.
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64

	mu       sync.Mutex
	current  time.Duration
	attempts int
}

// New creates a backoff starting at minDelay.
func New(minDelay, maxDelay time.Duration, multiplier float64) *Backoff {
	if multiplier < 1 {
		multiplier = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Backoff{
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		multiplier: multiplier,
		current:    minDelay,
	}
}

// Next returns the delay before the next attempt and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	jitterFactor := rand.Float64()*0.4 - 0.2
	jitter := time.Duration(jitterFactor * float64(b.current))
	wait := max(b.current+jitter, b.minDelay)

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

// Reset starts over from the minimum delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

// Attempts returns how many delays Next has handed out.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	return Sleep(ctx, b.Next())
}

// Sleep pauses for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs op until it succeeds, retryable reports false for its error,
// or maxAttempts runs have failed. onRetry is called before each wait.
func Retry(ctx context.Context, b *Backoff, maxAttempts int, retryable func(error) bool, onRetry func(attempt int, err error), op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil || attempt >= maxAttempts || !retryable(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if werr := b.Wait(ctx); werr != nil {
			return err
		}
	}
}
