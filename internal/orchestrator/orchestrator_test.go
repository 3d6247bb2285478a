package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrohitth/data-observability-platform/internal/logger"
)

func TestRun_AllTasksSucceed(t *testing.T) {
	o := New(4, logger.NewNop())
	o.Add("profiler", func(ctx context.Context) (int, error) { return 0, nil })
	o.Add("detector", func(ctx context.Context) (int, error) { return 0, nil })

	res := o.Run(context.Background())
	if res.State != Succeeded {
		t.Fatalf("expected SUCCEEDED, got %s", res.State)
	}
	if len(res.Tasks) != 2 || res.Anomalies != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, tr := range res.Tasks {
		if !tr.Success {
			t.Fatalf("expected every task successful: %+v", tr)
		}
	}
}

func TestRun_AnomaliesMeanPartialFailure(t *testing.T) {
	o := New(4, logger.NewNop())
	o.Add("profiler", func(ctx context.Context) (int, error) { return 0, nil })
	o.Add("detector", func(ctx context.Context) (int, error) { return 2, nil })

	res := o.Run(context.Background())
	if res.State != PartiallyFailed {
		t.Fatalf("expected PARTIALLY_FAILED with anomalies, got %s", res.State)
	}
	if res.Anomalies != 2 {
		t.Fatalf("expected 2 anomalies, got %d", res.Anomalies)
	}
}

func TestRun_PanickingTaskIsIsolated(t *testing.T) {
	o := New(4, logger.NewNop())
	var ran atomic.Bool
	o.Add("boom", func(ctx context.Context) (int, error) { panic("kaboom") })
	o.Add("steady", func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 0, nil
	})

	res := o.Run(context.Background())
	if res.State != PartiallyFailed {
		t.Fatalf("expected PARTIALLY_FAILED, got %s", res.State)
	}
	if !ran.Load() {
		t.Fatalf("expected the sibling task to run despite the panic")
	}

	var boom TaskResult
	for _, tr := range res.Tasks {
		if tr.Task == "boom" {
			boom = tr
		}
	}
	if boom.Success || boom.Err == nil {
		t.Fatalf("expected the panicking task recorded as failed: %+v", boom)
	}
}

func TestRun_FailingTaskDoesNotStopSiblings(t *testing.T) {
	o := New(1, logger.NewNop())
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}
	o.Add("first", func(ctx context.Context) (int, error) {
		record("first")
		return 0, errors.New("db unavailable")
	})
	o.Add("second", func(ctx context.Context) (int, error) {
		record("second")
		return 0, nil
	})

	res := o.Run(context.Background())
	if res.State != PartiallyFailed {
		t.Fatalf("expected PARTIALLY_FAILED, got %s", res.State)
	}
	if len(order) != 2 {
		t.Fatalf("expected both tasks to run, got %v", order)
	}
}

func TestRun_WorkerLimitBoundsConcurrency(t *testing.T) {
	o := New(2, logger.NewNop())
	var current, peak atomic.Int32
	task := func(ctx context.Context) (int, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return 0, nil
	}
	for i := 0; i < 6; i++ {
		o.Add("task", task)
	}

	res := o.Run(context.Background())
	if res.State != Succeeded {
		t.Fatalf("expected SUCCEEDED, got %s", res.State)
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestRun_NoTasksIsFailed(t *testing.T) {
	o := New(4, logger.NewNop())
	res := o.Run(context.Background())
	if res.State != Failed {
		t.Fatalf("expected FAILED for an empty run, got %s", res.State)
	}
}
