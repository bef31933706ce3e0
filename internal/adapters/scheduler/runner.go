// Package scheduler triggers batch runs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/opsdesk/internal/domain/model"
	"github.com/target/opsdesk/internal/observability/statsd"
)

// BatchRunner is the batch service surface the scheduler triggers.
type BatchRunner interface {
	RunAllJobs(ctx context.Context) (*model.BatchReport, error)
	RunEntityScan(ctx context.Context, entities []model.EntityKey) (*model.BatchReport, error)
}

// Task names used in logs and metric tags.
const (
	TaskRunAll     = "run_all_jobs"
	TaskEntityScan = "entity_scan"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Batch BatchRunner
	// RunAllSpec is a standard five-field cron spec or descriptor; empty disables the task.
	RunAllSpec string
	// EntityScanSpec schedules a catalog-wide entity scan; empty disables the task.
	EntityScanSpec string
	// Timeout bounds one triggered run; zero means no deadline.
	Timeout  time.Duration
	Location *time.Location
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

type task struct {
	name string
	spec string
	run  func(ctx context.Context) (*model.BatchReport, error)
}

// Runner owns a cron scheduler. Overlapping firings of the same task are skipped.
type Runner struct {
	cron    *cron.Cron
	tasks   []task
	timeout time.Duration
	metrics statsd.Sink
	logger  *slog.Logger
	baseCtx context.Context //nolint:containedctx // set once by Run, read by cron callbacks
}

// NewRunner validates the schedules and registers the enabled tasks.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Batch == nil {
		return nil, errors.New("batch runner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	r := &Runner{
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logger:  logger,
		baseCtx: context.Background(),
	}
	cl := cronLogger{logger: logger}
	r.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	candidates := []task{
		{name: TaskRunAll, spec: opts.RunAllSpec, run: opts.Batch.RunAllJobs},
		{name: TaskEntityScan, spec: opts.EntityScanSpec, run: func(ctx context.Context) (*model.BatchReport, error) {
			return opts.Batch.RunEntityScan(ctx, nil)
		}},
	}
	for _, t := range candidates {
		if t.spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(t.spec); err != nil {
			return nil, fmt.Errorf("invalid schedule for %s: %w", t.name, err)
		}
		if _, err := r.cron.AddFunc(t.spec, func() { r.fire(r.baseCtx, t) }); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.name, err)
		}
		r.tasks = append(r.tasks, t)
	}
	return r, nil
}

// Tasks returns the names of the registered tasks.
func (r *Runner) Tasks() []string {
	out := make([]string, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.name)
	}
	return out
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for running tasks.
func (r *Runner) Run(ctx context.Context) error {
	r.baseCtx = ctx
	r.logger.InfoContext(ctx, "scheduler starting", "tasks", r.Tasks())
	r.cron.Start()

	<-ctx.Done()
	r.logger.InfoContext(ctx, "scheduler stopping", "reason", ctx.Err())
	<-r.cron.Stop().Done()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (r *Runner) fire(ctx context.Context, t task) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := t.run(ctx)
	result := "success"
	if err != nil {
		result = "error"
		r.logger.ErrorContext(ctx, "scheduled run failed", "task", t.name, "error", err)
	} else if report != nil {
		r.logger.InfoContext(ctx, "scheduled run finished",
			"task", t.name,
			"batch_id", report.BatchID,
			"items", report.Items,
			"failed", report.Failed,
		)
	}
	if r.metrics != nil {
		tags := map[string]string{"task": t.name, "result": result}
		r.metrics.Count("scheduler.trigger", 1, tags)
		r.metrics.Timing("scheduler.trigger.duration", time.Since(start), tags)
	}
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
