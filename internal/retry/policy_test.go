package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrohitth/data-observability-platform/internal/config"
)

func testPolicy() (*Policy, *[]time.Duration) {
	p := NewPolicy(config.RetryConfig{
		MaxAttempts:   3,
		BackoffFactor: 2.0,
		InitialDelay:  time.Second,
		MaxDelay:      60 * time.Second,
	})
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return p, &delays
}

func TestDo_RetriesWithBackoffAndReturnsLastError(t *testing.T) {
	p, delays := testPolicy()
	transient := errors.New("connection refused")
	calls := 0

	err := p.Do(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(*delays))
	}
	// Delay before attempt 2 is ~1s and before attempt 3 is ~2s, each with
	// up to 10% jitter on top.
	for i, base := range []time.Duration{time.Second, 2 * time.Second} {
		got := (*delays)[i]
		if got < base || got > base+base/10 {
			t.Errorf("delay %d = %v, want in [%v, %v]", i, got, base, base+base/10)
		}
	}
}

func TestDo_DelayCappedAtMax(t *testing.T) {
	p, _ := testPolicy()
	p.MaxDelay = 1500 * time.Millisecond
	if got := p.Delay(5); got != 1500*time.Millisecond {
		t.Fatalf("expected capped delay, got %v", got)
	}
}

func TestDo_NonRetryableErrorPropagatesImmediately(t *testing.T) {
	p, delays := testPolicy()
	fatal := errors.New("syntax error")
	calls := 0

	err := p.Do(context.Background(), func(error) bool { return false }, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the fatal error, got %v", err)
	}
	if calls != 1 || len(*delays) != 0 {
		t.Fatalf("expected a single attempt and no sleeps, got calls=%d sleeps=%d", calls, len(*delays))
	}
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	p, _ := testPolicy()
	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	p, _ := testPolicy()
	p.sleep = sleepCtx
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transient := errors.New("transient")
	calls := 0
	err := p.Do(ctx, func(error) bool { return true }, func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected retry loop to stop after cancellation, got %d attempts", calls)
	}
}
