package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/batch"
	"github.com/target/opsdesk/internal/domain/model"
	apperrors "github.com/target/opsdesk/internal/errors"
	"github.com/target/opsdesk/internal/observability/metrics"
	"github.com/target/opsdesk/internal/observability/notify"
	"github.com/target/opsdesk/internal/observability/statsd"
)

// maxNotifyBody caps the message body; payloads can be large.
const maxNotifyBody = 4000

type entityResolver interface {
	Resolve(ctx context.Context, item model.EntityWorkItem) (string, error)
}

type entityLister interface {
	List(ctx context.Context) ([]model.EntityKey, error)
}

// BatchConfig tunes pipeline execution.
type BatchConfig struct {
	Concurrency      int
	ItemTimeout      time.Duration
	AggregateTimeout time.Duration
	// ScanRecipients receive a summary after every entity scan. Empty disables scan notifications.
	ScanRecipients []string
}

// BatchServiceOptions groups dependencies for BatchService.
type BatchServiceOptions struct {
	Orchestrator *JobRunOrchestrator     // Required
	Resolver     entityResolver          // Required
	Ledger       runRecorder             // Required; records entity scan runs
	Settings     core.SettingsRepository // Required
	Catalog      entityLister            // Optional; used when a scan has no entity list
	Notifier     core.Notifier           // Optional
	Metrics      statsd.Sink             // Optional
	Config       BatchConfig
	Logger       *slog.Logger
	Now          func() time.Time
}

// BatchService drives the enumerate/process/aggregate pipeline for every trigger kind.
type BatchService struct {
	jobs     *JobRunOrchestrator
	resolver entityResolver
	ledger   runRecorder
	settings core.SettingsRepository
	catalog  entityLister
	notifier core.Notifier
	metrics  statsd.Sink
	cfg      BatchConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewBatchService constructs the service. It panics when a required dependency is missing.
func NewBatchService(opts BatchServiceOptions) *BatchService {
	if opts.Orchestrator == nil || opts.Resolver == nil || opts.Ledger == nil || opts.Settings == nil {
		panic("BatchService requires an orchestrator, resolver, ledger and settings repository")
	}
	cfg := opts.Config
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &BatchService{
		jobs:     opts.Orchestrator,
		resolver: opts.Resolver,
		ledger:   opts.Ledger,
		settings: opts.Settings,
		catalog:  opts.Catalog,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		cfg:      cfg,
		logger:   logger.With("component", "batch"),
		now:      now,
	}
}

// Run validates trig and executes it. Malformed triggers fail with a validation AppError
// before any run is recorded.
func (s *BatchService) Run(ctx context.Context, trig model.Trigger) (*model.BatchReport, error) {
	if err := trig.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid trigger")
	}
	switch trig.Selector {
	case model.SelectorEntityScan:
		return s.RunEntityScan(ctx, trig.Entities)
	default:
		return s.runJobs(ctx, trig)
	}
}

// RunJob executes a single job definition. An unknown id is returned as an error wrapping model.ErrJobNotFound.
func (s *BatchService) RunJob(ctx context.Context, jobID int64) (*model.BatchReport, error) {
	return s.Run(ctx, model.Trigger{Selector: model.SelectorJob, JobID: &jobID})
}

// RunAllJobs executes every active schedulable job.
func (s *BatchService) RunAllJobs(ctx context.Context) (*model.BatchReport, error) {
	return s.Run(ctx, model.Trigger{Selector: model.SelectorAllJobs})
}

// LatestActivity returns the stored activity snapshot.
func (s *BatchService) LatestActivity(ctx context.Context) (*model.ActivitySnapshot, error) {
	return s.settings.GetSnapshot(ctx)
}

func (s *BatchService) pipelineOptions(logger *slog.Logger) batch.Options {
	return batch.Options{
		Concurrency:      s.cfg.Concurrency,
		ItemTimeout:      s.cfg.ItemTimeout,
		AggregateTimeout: s.cfg.AggregateTimeout,
		Logger:           logger,
	}
}

func (s *BatchService) runJobs(ctx context.Context, trig model.Trigger) (*model.BatchReport, error) {
	batchID := uuid.NewString()
	logger := s.logger.With("batch_id", batchID, "selector", trig.Selector)
	report := &model.BatchReport{BatchID: batchID, Selector: trig.Selector, StartedAt: s.now().UTC()}

	defs := make(map[int64]*model.JobDefinition)
	var (
		mu      sync.Mutex
		elapsed = make(map[int64]time.Duration)
	)

	stages := batch.Stages[model.Trigger, model.JobWorkItem, model.JobOutcome, []model.JobOutcome]{
		Enumerate: func(ctx context.Context, trig model.Trigger) ([]model.JobWorkItem, error) {
			list, err := s.jobs.Enumerate(ctx, trig)
			if err != nil {
				return nil, err
			}
			items := make([]model.JobWorkItem, 0, len(list))
			for _, def := range list {
				if def == nil {
					continue
				}
				defs[def.ID] = def
				items = append(items, model.JobWorkItem{JobID: def.ID})
			}
			return items, nil
		},
		Open: s.jobs.Open,
		Process: func(ctx context.Context, item model.JobWorkItem) (model.JobOutcome, error) {
			start := time.Now()
			out, err := s.jobs.Execute(ctx, item)
			mu.Lock()
			elapsed[item.JobID] = time.Since(start)
			mu.Unlock()
			return out, err
		},
		Aggregate: func(ctx context.Context, results []batch.Result[model.JobWorkItem, model.JobOutcome]) ([]model.JobOutcome, error) {
			outcomes := make([]model.JobOutcome, 0, len(results))
			for _, res := range results {
				out, err := s.jobs.Finish(ctx, res, elapsed[res.Item.JobID])
				if err != nil {
					// The run stays open in the ledger; report it as failed and keep going.
					logger.ErrorContext(ctx, "record job run result failed",
						"job_id", out.JobID, "run_id", out.RunID, "error", err)
					out.Completed = false
					out.Payload = nil
					out.Error = errors.Join(res.Err, err).Error()
				}
				outcomes = append(outcomes, out)
				s.notifyJob(ctx, defs[res.Item.JobID], out, batchID)
			}
			if len(results) == 0 {
				logger.InfoContext(ctx, "no jobs to run")
			}
			return outcomes, nil
		},
	}

	p, err := batch.New(stages, s.pipelineOptions(logger))
	if err != nil {
		return nil, err
	}
	outcomes, stats, err := p.Run(ctx, trig)
	if err == nil {
		// Runs whose result could not be recorded count as failed too.
		stats.Failed = 0
		for _, out := range outcomes {
			if !out.Completed {
				stats.Failed++
			}
		}
	}
	s.emit(trig.Selector, stats, err)
	if err != nil {
		logger.ErrorContext(ctx, "batch failed", "error", err)
		return nil, err
	}

	report.FinishedAt = s.now().UTC()
	report.Items = stats.Items
	report.Failed = stats.Failed
	report.Jobs = outcomes
	logger.InfoContext(ctx, "batch finished", "items", stats.Items, "failed", stats.Failed, "duration", stats.Duration)
	return report, nil
}

// RunEntityScan resolves the last activity of every entity and replaces the stored snapshot.
// With no entities the catalog supplies the full list.
func (s *BatchService) RunEntityScan(ctx context.Context, entities []model.EntityKey) (*model.BatchReport, error) {
	batchID := uuid.NewString()
	logger := s.logger.With("batch_id", batchID, "selector", model.SelectorEntityScan)
	report := &model.BatchReport{BatchID: batchID, Selector: model.SelectorEntityScan, StartedAt: s.now().UTC()}

	var runID int64
	stages := batch.Stages[[]model.EntityKey, model.EntityWorkItem, string, *model.ActivitySnapshot]{
		Enumerate: func(ctx context.Context, keys []model.EntityKey) ([]model.EntityWorkItem, error) {
			if len(keys) == 0 && s.catalog != nil {
				listed, err := s.catalog.List(ctx)
				if err != nil {
					return nil, err
				}
				keys = listed
			}
			items := make([]model.EntityWorkItem, 0, len(keys))
			for _, k := range keys {
				k.Name = strings.TrimSpace(k.Name)
				items = append(items, model.EntityWorkItem{EntityKey: k})
			}
			// One run covers the whole scan; it exists before any lookup starts.
			run, err := s.ledger.CreateRun(ctx, nil)
			if err != nil {
				return nil, err
			}
			runID = run.ID
			return items, nil
		},
		Process: s.resolver.Resolve,
		Aggregate: func(ctx context.Context, results []batch.Result[model.EntityWorkItem, string]) (*model.ActivitySnapshot, error) {
			return s.persistSnapshot(ctx, logger, runID, results)
		},
	}

	p, err := batch.New(stages, s.pipelineOptions(logger))
	if err != nil {
		return nil, err
	}
	snap, stats, err := p.Run(ctx, entities)
	s.emit(model.SelectorEntityScan, stats, err)
	if err != nil {
		logger.ErrorContext(ctx, "entity scan failed", "error", err)
		return nil, err
	}

	report.FinishedAt = snap.FinishedAt
	report.Items = stats.Items
	report.Failed = stats.Failed
	report.Activity = snap
	logger.InfoContext(ctx, "entity scan finished", "items", stats.Items, "failed", stats.Failed, "duration", stats.Duration)
	s.notifyScan(ctx, snap, stats, batchID)
	return report, nil
}

// persistSnapshot merges results by key, writes the snapshot and closes the scan run.
func (s *BatchService) persistSnapshot(
	ctx context.Context,
	logger *slog.Logger,
	runID int64,
	results []batch.Result[model.EntityWorkItem, string],
) (*model.ActivitySnapshot, error) {
	prior, err := s.settings.GetSnapshot(ctx)
	if err != nil && !errors.Is(err, model.ErrSnapshotNotFound) {
		logger.WarnContext(ctx, "previous snapshot unavailable", "error", err)
	}

	snap := MergeActivity(results, prior)
	snap.FinishedAt = s.now().UTC()

	if err := s.settings.PutSnapshot(ctx, snap); err != nil {
		if cerr := s.ledger.CompleteRun(ctx, runID, false, err.Error()); cerr != nil {
			logger.ErrorContext(ctx, "complete scan run failed", "run_id", runID, "error", cerr)
		}
		return nil, fmt.Errorf("store activity snapshot: %w", err)
	}

	summary := fmt.Sprintf(`{"entities":%d,"failed":%d}`, len(snap.Entries), snap.Failed)
	if err := s.ledger.CompleteRun(ctx, runID, true, summary); err != nil {
		// The snapshot is stored; only the run record is left open.
		logger.ErrorContext(ctx, "complete scan run failed", "run_id", runID, "error", err)
	}
	return snap, nil
}

// MergeActivity folds per-entity results into a snapshot sorted by key. Duplicate keys keep
// the latest activity. A key whose every lookup failed keeps its value from prior, or "".
func MergeActivity(
	results []batch.Result[model.EntityWorkItem, string],
	prior *model.ActivitySnapshot,
) *model.ActivitySnapshot {
	resolved := make(map[model.EntityKey]string, len(results))
	failedKeys := make(map[model.EntityKey]struct{})
	snap := &model.ActivitySnapshot{}

	for _, res := range results {
		key := res.Item.EntityKey
		if res.Failed() {
			snap.Failed++
			failedKeys[key] = struct{}{}
			continue
		}
		if cur, ok := resolved[key]; !ok || laterActivity(res.Value, cur) {
			resolved[key] = res.Value
		}
	}

	snap.Entries = make([]model.ActivityEntry, 0, len(resolved)+len(failedKeys))
	for key, v := range resolved {
		snap.Entries = append(snap.Entries, model.ActivityEntry{Key: key, LastActivity: v})
	}
	for key := range failedKeys {
		if _, ok := resolved[key]; ok {
			continue
		}
		prev, _ := prior.Lookup(key)
		snap.Entries = append(snap.Entries, model.ActivityEntry{Key: key, LastActivity: prev.LastActivity})
	}
	snap.SortEntries()
	return snap
}

func (s *BatchService) notifyJob(ctx context.Context, def *model.JobDefinition, out model.JobOutcome, batchID string) {
	if s.notifier == nil || def == nil || !def.NotifyOnCompletion {
		return
	}
	status, body := "completed", string(out.Payload)
	if !out.Completed {
		status, body = "failed", out.Error
	}
	s.notifier.Send(ctx, notify.Message{
		Recipients: def.NotifyRecipients,
		Subject:    fmt.Sprintf("%s %s", def.Name, status),
		Body:       truncateBody(body, maxNotifyBody),
		JobID:      strconv.FormatInt(def.ID, 10),
		Failed:     !out.Completed,
		OccurredAt: s.now().UTC(),
		Metadata: map[string]string{
			"batch_id": batchID,
			"run_id":   strconv.FormatInt(out.RunID, 10),
		},
	})
}

func (s *BatchService) notifyScan(ctx context.Context, snap *model.ActivitySnapshot, stats batch.Stats, batchID string) {
	if s.notifier == nil || len(s.cfg.ScanRecipients) == 0 {
		return
	}
	s.notifier.Send(ctx, notify.Message{
		Recipients: s.cfg.ScanRecipients,
		Subject:    "Entity activity scan finished",
		Body:       fmt.Sprintf("%d entities resolved, %d failed.", len(snap.Entries), stats.Failed),
		Failed:     stats.Failed > 0,
		OccurredAt: snap.FinishedAt,
		Metadata:   map[string]string{"batch_id": batchID},
	})
}

func (s *BatchService) emit(sel model.Selector, stats batch.Stats, err error) {
	metrics.EmitBatch(s.metrics, metrics.BatchMetric{
		Selector: string(sel),
		Items:    stats.Items,
		Failed:   stats.Failed,
		Duration: stats.Duration,
		Err:      err,
	})
}

func truncateBody(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
