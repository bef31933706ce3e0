package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/batch"
	"github.com/target/opsdesk/internal/domain/model"
	"github.com/target/opsdesk/internal/observability/metrics"
	"github.com/target/opsdesk/internal/observability/statsd"
)

// jobCatalog is the registry surface the batch engine reads.
type jobCatalog interface {
	ListActive(ctx context.Context, schedulableOnly bool) ([]*model.JobDefinition, error)
	Get(ctx context.Context, id int64) (*model.JobDefinition, error)
}

// runRecorder is the ledger surface the batch engine writes.
type runRecorder interface {
	CreateRun(ctx context.Context, jobID *int64) (*model.JobRun, error)
	CompleteRun(ctx context.Context, runID int64, completed bool, payload string) error
}

// OrchestratorConfig tunes job execution.
type OrchestratorConfig struct {
	// LockTTL bounds how long one job id stays locked; zero uses 30 minutes.
	LockTTL time.Duration
}

// JobRunOrchestratorOptions groups dependencies for JobRunOrchestrator.
type JobRunOrchestratorOptions struct {
	Registry jobCatalog           // Required
	Ledger   runRecorder          // Required
	Handlers map[int64]JobHandler // Required; built once at startup
	Locker   core.RunLocker       // Optional; nil disables serialization
	Metrics  statsd.Sink          // Optional
	Config   OrchestratorConfig
	Logger   *slog.Logger
}

// JobRunOrchestrator runs maintenance jobs through their registered handlers and records
// each attempt in the run ledger.
type JobRunOrchestrator struct {
	registry jobCatalog
	ledger   runRecorder
	handlers map[int64]JobHandler
	locker   core.RunLocker
	metrics  statsd.Sink
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewJobRunOrchestrator constructs the orchestrator. It panics when a required dependency is missing.
func NewJobRunOrchestrator(opts JobRunOrchestratorOptions) *JobRunOrchestrator {
	if opts.Registry == nil || opts.Ledger == nil {
		panic("JobRunOrchestrator requires a registry and a ledger")
	}
	handlers := make(map[int64]JobHandler, len(opts.Handlers))
	for id, h := range opts.Handlers {
		if h != nil {
			handlers[id] = h
		}
	}
	ttl := opts.Config.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunOrchestrator{
		registry: opts.Registry,
		ledger:   opts.Ledger,
		handlers: handlers,
		locker:   opts.Locker,
		metrics:  opts.Metrics,
		lockTTL:  ttl,
		logger:   logger.With("component", "job_orchestrator"),
	}
}

// Enumerate lists the work for a job selector. A single explicit job must exist, so an
// unknown id is returned to the caller. Run-all yields active schedulable jobs in id order.
func (o *JobRunOrchestrator) Enumerate(ctx context.Context, trig model.Trigger) ([]*model.JobDefinition, error) {
	switch trig.Selector {
	case model.SelectorJob:
		if trig.JobID == nil {
			return nil, errors.New("job selector without job id")
		}
		def, err := o.registry.Get(ctx, *trig.JobID)
		if err != nil {
			return nil, err
		}
		return []*model.JobDefinition{def}, nil
	case model.SelectorAllJobs:
		return o.registry.ListActive(ctx, true)
	default:
		return nil, fmt.Errorf("selector %q does not enumerate jobs", trig.Selector)
	}
}

// Open records the run for item before any handler executes.
func (o *JobRunOrchestrator) Open(ctx context.Context, item model.JobWorkItem) (model.JobWorkItem, error) {
	jobID := item.JobID
	run, err := o.ledger.CreateRun(ctx, &jobID)
	if err != nil {
		return item, err
	}
	item.RunID = run.ID
	return item, nil
}

// Execute runs the handler registered for item.JobID. Every failure is returned as an item error.
func (o *JobRunOrchestrator) Execute(ctx context.Context, item model.JobWorkItem) (model.JobOutcome, error) {
	out := model.JobOutcome{JobID: item.JobID, RunID: item.RunID}

	def, err := o.registry.Get(ctx, item.JobID)
	if err != nil {
		return out, err
	}
	if !def.Active {
		return out, fmt.Errorf("job %d: %w", item.JobID, model.ErrJobInactive)
	}
	handler, ok := o.handlers[item.JobID]
	if !ok {
		return out, fmt.Errorf("job %d: %w", item.JobID, model.ErrNoHandler)
	}

	if o.locker != nil {
		release, acquired, lockErr := o.locker.TryLock(ctx, "job:"+strconv.FormatInt(item.JobID, 10), o.lockTTL)
		if lockErr != nil {
			return out, fmt.Errorf("lock job %d: %w", item.JobID, lockErr)
		}
		if !acquired {
			return out, fmt.Errorf("job %d: %w", item.JobID, model.ErrJobBusy)
		}
		defer release()
	}

	value, err := handler.Handle(ctx, HandlerRequest{Job: def, RunID: item.RunID})
	if err != nil {
		return out, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return out, fmt.Errorf("encode payload for job %d: %w", item.JobID, err)
	}
	out.Completed = true
	out.Payload = payload
	return out, nil
}

// Finish closes the run for one result: success stores the payload, failure stores the
// error text. The returned outcome reflects what was written.
func (o *JobRunOrchestrator) Finish(
	ctx context.Context,
	res batch.Result[model.JobWorkItem, model.JobOutcome],
	elapsed time.Duration,
) (model.JobOutcome, error) {
	out := res.Value
	out.JobID = res.Item.JobID
	out.RunID = res.Item.RunID

	out.Completed = !res.Failed()
	payload := string(out.Payload)
	if res.Failed() {
		out.Payload = nil
		out.Error = res.Err.Error()
		payload = out.Error
	}

	err := o.ledger.CompleteRun(ctx, out.RunID, out.Completed, payload)
	metrics.EmitJobRun(o.metrics, metrics.JobRunMetric{
		JobID:     strconv.FormatInt(out.JobID, 10),
		Completed: out.Completed,
		Duration:  elapsed,
		Err:       res.Err,
	})
	if res.Failed() {
		o.logger.WarnContext(ctx, "job run failed", "job_id", out.JobID, "run_id", out.RunID, "error", res.Err)
	} else {
		o.logger.InfoContext(ctx, "job run completed", "job_id", out.JobID, "run_id", out.RunID)
	}
	if err != nil {
		return out, err
	}
	return out, nil
}
