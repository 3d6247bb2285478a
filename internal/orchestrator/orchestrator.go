package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrohitth/data-observability-platform/internal/logger"
)

type RunState string

const (
	Succeeded       RunState = "SUCCEEDED"
	PartiallyFailed RunState = "PARTIALLY_FAILED"
	Failed          RunState = "FAILED"
)

// Task is one unit of monitoring work. Run reports how many anomalies it
// found alongside any execution error.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// TaskResult is the isolated outcome of one task. A panic inside the task
// surfaces here as Err; it never takes sibling tasks down.
type TaskResult struct {
	Task      string        `json:"task"`
	Success   bool          `json:"success"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Anomalies int           `json:"anomalies"`
}

// Result aggregates one monitoring run.
type Result struct {
	State     RunState      `json:"state"`
	Tasks     []TaskResult  `json:"tasks"`
	Anomalies int           `json:"anomalies"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Orchestrator runs monitoring tasks concurrently on a bounded pool.
type Orchestrator struct {
	workers int
	tasks   []Task
	log     *logger.Logger
}

func New(workers int, baseLog *logger.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		workers: workers,
		log:     baseLog.With("service", "Orchestrator"),
	}
}

func (o *Orchestrator) Add(name string, run func(ctx context.Context) (int, error)) {
	o.tasks = append(o.tasks, Task{Name: name, Run: run})
}

func (o *Orchestrator) runTask(ctx context.Context, t Task) (result TaskResult) {
	start := time.Now()
	result = TaskResult{Task: t.Name}
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			result.Success = false
			result.Err = fmt.Errorf("task %s panicked: %v", t.Name, r)
			result.Error = result.Err.Error()
			o.log.Error("Task panicked", "task", t.Name, "panic", r)
		}
	}()

	anomalies, err := t.Run(ctx)
	result.Anomalies = anomalies
	if err != nil {
		result.Err = err
		result.Error = err.Error()
		o.log.Error("Task failed", "task", t.Name, "error", err)
		return result
	}
	result.Success = true
	o.log.Info("Task completed", "task", t.Name, "anomalies", anomalies)
	return result
}

// Run executes every registered task, at most workers at a time. Tasks are
// isolated: a failing or panicking task is recorded and the rest continue.
func (o *Orchestrator) Run(ctx context.Context) Result {
	start := time.Now()
	out := Result{
		State:     Failed,
		Timestamp: start.UTC(),
	}
	if len(o.tasks) == 0 {
		out.Duration = time.Since(start)
		return out
	}

	o.log.Info("Starting monitoring run", "tasks", len(o.tasks), "workers", o.workers)

	results := make([]TaskResult, len(o.tasks))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, t := range o.tasks {
		i, t := i, t
		g.Go(func() error {
			results[i] = o.runTask(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	out.Tasks = results
	out.State = Succeeded
	for _, r := range results {
		out.Anomalies += r.Anomalies
		if !r.Success || r.Anomalies > 0 {
			out.State = PartiallyFailed
		}
	}
	out.Duration = time.Since(start)

	o.log.Info("Monitoring run finished",
		"state", out.State,
		"anomalies", out.Anomalies,
		"duration", out.Duration,
	)
	return out
}
