package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/mrohitth/data-observability-platform/internal/config"
)

// Policy retries a unit of work with exponential backoff and jitter. One
// policy instance is shared by every caller that needs retry semantics;
// it holds no per-call state and is safe for concurrent use.
type Policy struct {
	MaxAttempts   int
	BackoffFactor float64
	InitialDelay  time.Duration
	MaxDelay      time.Duration

	// sleep is swapped out in tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPolicy(cfg config.RetryConfig) *Policy {
	return &Policy{
		MaxAttempts:   cfg.MaxAttempts,
		BackoffFactor: cfg.BackoffFactor,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay returns the backoff delay applied after the given zero-based
// attempt fails, before jitter.
func (p *Policy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs op up to MaxAttempts times. A failure for which isRetryable
// returns false propagates immediately. After the final attempt the last
// retryable error is returned. Jitter is uniform in [0, 0.1*delay].
func (p *Policy) Do(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := p.Delay(attempt)
		jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
		if err := sleep(ctx, delay+jitter); err != nil {
			return lastErr
		}
	}
	return lastErr
}
