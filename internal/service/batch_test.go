package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/batch"
	"github.com/target/opsdesk/internal/domain/model"
	apperrors "github.com/target/opsdesk/internal/errors"
	"github.com/target/opsdesk/internal/observability/statsd"
)

type batchHarness struct {
	jobs     *memJobRepo
	runs     *memRunRepo
	settings *memSettings
	notifier *recordingNotifier
	metrics  *statsd.Recorder
	ledger   *RunLedgerService
	svc      *BatchService
}

type harnessOptions struct {
	defs           []*model.JobDefinition
	handlers       func(h *batchHarness) map[int64]JobHandler
	source         core.QuerySource
	catalog        entityLister
	scanRecipients []string
}

func newBatchHarness(t *testing.T, opts harnessOptions) *batchHarness {
	t.Helper()
	h := &batchHarness{
		jobs:     newMemJobRepo(opts.defs...),
		runs:     newMemRunRepo(),
		settings: &memSettings{},
		notifier: &recordingNotifier{},
		metrics:  &statsd.Recorder{},
	}
	h.ledger = NewRunLedgerService(RunLedgerServiceOptions{Repo: h.runs})
	registry := NewJobRegistryService(JobRegistryServiceOptions{Repo: h.jobs})

	var handlers map[int64]JobHandler
	if opts.handlers != nil {
		handlers = opts.handlers(h)
	}
	source := opts.source
	if source == nil {
		source = core.QuerySourceFunc(func(context.Context, core.Query) ([]core.Row, error) { return nil, nil })
	}

	orch := NewJobRunOrchestrator(JobRunOrchestratorOptions{
		Registry: registry,
		Ledger:   h.ledger,
		Handlers: handlers,
		Metrics:  h.metrics,
	})
	h.svc = NewBatchService(BatchServiceOptions{
		Orchestrator: orch,
		Resolver:     NewActivityResolver(ActivityResolverOptions{Source: source}),
		Ledger:       h.ledger,
		Settings:     h.settings,
		Catalog:      opts.catalog,
		Notifier:     h.notifier,
		Metrics:      h.metrics,
		Config:       BatchConfig{Concurrency: 4, ScanRecipients: opts.scanRecipients},
		Now:          func() time.Time { return baseTime.Add(time.Hour) },
	})
	return h
}

func TestRunJob_ErrorScanWindowFollowsCheckpoint(t *testing.T) {
	now := baseTime.Add(48 * time.Hour)
	var sinceArgs []time.Time
	source := core.QuerySourceFunc(func(_ context.Context, q core.Query) ([]core.Row, error) {
		sinceArgs = append(sinceArgs, q.Args[1].(time.Time))
		assert.Equal(t, []string{"ERROR", "EMERGENCY"}, q.Args[0])
		return []core.Row{{
			"id":         "log-1",
			"severity":   "ERROR",
			"title":      "nightly sync failed",
			"created_at": now.Add(-time.Hour),
		}}, nil
	})

	h := newBatchHarness(t, harnessOptions{
		defs:   []*model.JobDefinition{activeJob(ErrorScanJobID, "Recent error scan")},
		source: source,
		handlers: func(h *batchHarness) map[int64]JobHandler {
			return map[int64]JobHandler{
				ErrorScanJobID: NewErrorScanHandler(ErrorScanHandlerOptions{
					Source: source,
					Ledger: h.ledger,
					Config: ErrorScanConfig{Lookback: 24 * time.Hour, Threshold: "ERROR"},
					Now:    func() time.Time { return now },
				}),
			}
		},
	})
	ctx := context.Background()

	_, ok, err := h.ledger.LastCompletedRun(ctx, ErrorScanJobID)
	require.NoError(t, err)
	assert.False(t, ok)

	report, err := h.svc.RunJob(ctx, ErrorScanJobID)
	require.NoError(t, err)
	require.Len(t, report.Jobs, 1)
	assert.True(t, report.Jobs[0].Completed)
	assert.Contains(t, string(report.Jobs[0].Payload), "nightly sync failed")

	require.Len(t, sinceArgs, 1)
	assert.True(t, sinceArgs[0].Equal(now.Add(-24*time.Hour)), "first scan uses the lookback window")

	runs := h.runs.runsFor(ErrorScanJobID)
	require.Len(t, runs, 1)
	last, ok, err := h.ledger.LastCompletedRun(ctx, ErrorScanJobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(runs[0].CreatedAt))

	_, err = h.svc.RunJob(ctx, ErrorScanJobID)
	require.NoError(t, err)
	require.Len(t, sinceArgs, 2)
	assert.True(t, sinceArgs[1].Equal(runs[0].CreatedAt), "second scan starts at the previous checkpoint")
}

func TestRunEntityScan_StoresSortedSnapshotUnderOneRun(t *testing.T) {
	source := core.QuerySourceFunc(func(_ context.Context, q core.Query) ([]core.Row, error) {
		if q.Args[0] == "a@x.com" {
			return []core.Row{{"last_activity": "2024-01-01 10:00:00"}}, nil
		}
		return nil, nil
	})
	h := newBatchHarness(t, harnessOptions{source: source})

	report, err := h.svc.Run(context.Background(), model.Trigger{
		Selector: model.SelectorEntityScan,
		Entities: []model.EntityKey{
			{Type: model.EntityTypeUser, Name: "a@x.com"},
			{Type: model.EntityTypeToken, Name: "T1"},
		},
	})
	require.NoError(t, err)

	want := []model.ActivityEntry{
		{Key: model.EntityKey{Type: model.EntityTypeUser, Name: "a@x.com"}, LastActivity: "2024-01-01 10:00:00"},
		{Key: model.EntityKey{Type: model.EntityTypeToken, Name: "T1"}, LastActivity: ""},
	}
	require.NotNil(t, report.Activity)
	assert.Equal(t, want, report.Activity.Entries)
	assert.Equal(t, 2, report.Items)
	assert.Zero(t, report.Failed)

	require.NotNil(t, h.settings.snap)
	assert.Equal(t, want, h.settings.snap.Entries)
	assert.Equal(t, 1, h.settings.puts)

	require.Len(t, h.runs.runs, 1, "one run for the whole scan")
	scanRun := h.runs.runs[0]
	assert.Nil(t, scanRun.JobID)
	assert.True(t, scanRun.Completed)
	assert.Equal(t, 1, h.runs.completions[scanRun.ID])
}

func TestRunAllJobs_IsolatesHandlerFailure(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{
		defs: []*model.JobDefinition{activeJob(1, "first"), activeJob(2, "second")},
		handlers: func(*batchHarness) map[int64]JobHandler {
			return map[int64]JobHandler{
				1: JobHandlerFunc(func(context.Context, HandlerRequest) (any, error) {
					return map[string]bool{"ok": true}, nil
				}),
				2: JobHandlerFunc(func(context.Context, HandlerRequest) (any, error) {
					return nil, errors.New("boom")
				}),
			}
		},
	})

	report, err := h.svc.RunAllJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Items)
	assert.Equal(t, 1, report.Failed)

	first := h.runs.runsFor(1)
	require.Len(t, first, 1)
	assert.True(t, first[0].Completed)
	require.NotNil(t, first[0].ResultPayload)
	assert.JSONEq(t, `{"ok":true}`, *first[0].ResultPayload)

	second := h.runs.runsFor(2)
	require.Len(t, second, 1)
	assert.False(t, second[0].Completed)
	require.NotNil(t, second[0].ResultPayload)
	assert.Equal(t, "boom", *second[0].ResultPayload)

	for _, run := range h.runs.runs {
		assert.Equal(t, 1, h.runs.completions[run.ID], "run %d completed exactly once", run.ID)
	}
}

func TestRunJob_UnknownJobIsFatal(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{defs: []*model.JobDefinition{activeJob(1, "first")}})

	report, err := h.svc.RunJob(context.Background(), 99)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, model.ErrJobNotFound)
	assert.Empty(t, h.runs.runs)
}

func TestRunAllEnumeratesActiveSchedulableInIDOrder(t *testing.T) {
	inactive := activeJob(3, "inactive")
	inactive.Active = false
	manual := activeJob(4, "manual only")
	manual.Schedulable = false

	ok := JobHandlerFunc(func(context.Context, HandlerRequest) (any, error) { return "done", nil })
	h := newBatchHarness(t, harnessOptions{
		defs: []*model.JobDefinition{activeJob(9, "c"), activeJob(2, "a"), inactive, manual, activeJob(5, "b")},
		handlers: func(*batchHarness) map[int64]JobHandler {
			return map[int64]JobHandler{2: ok, 3: ok, 4: ok, 5: ok, 9: ok}
		},
	})

	report, err := h.svc.RunAllJobs(context.Background())
	require.NoError(t, err)

	var ids []int64
	for _, j := range report.Jobs {
		ids = append(ids, j.JobID)
	}
	assert.Equal(t, []int64{2, 5, 9}, ids)
	assert.Empty(t, h.runs.runsFor(3))
	assert.Empty(t, h.runs.runsFor(4))
}

func TestRunAllWithNothingToDoStillAggregates(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{})

	report, err := h.svc.RunAllJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Items)
	assert.Empty(t, report.Jobs)

	runs := h.metrics.Find("batch.run")
	require.Len(t, runs, 1)
	assert.Equal(t, "noop", runs[0].Tags["result"])
}

func TestRunJobFailureModesAreItemErrors(t *testing.T) {
	inactive := activeJob(7, "retired")
	inactive.Active = false

	h := newBatchHarness(t, harnessOptions{
		defs: []*model.JobDefinition{activeJob(1, "no handler"), activeJob(2, "panics"), inactive},
		handlers: func(*batchHarness) map[int64]JobHandler {
			return map[int64]JobHandler{
				2: JobHandlerFunc(func(context.Context, HandlerRequest) (any, error) { panic("bad state") }),
				7: JobHandlerFunc(func(context.Context, HandlerRequest) (any, error) { return "x", nil }),
			}
		},
	})
	ctx := context.Background()

	tests := []struct {
		jobID   int64
		wantErr string
	}{
		{jobID: 1, wantErr: model.ErrNoHandler.Error()},
		{jobID: 2, wantErr: "panic: bad state"},
		{jobID: 7, wantErr: model.ErrJobInactive.Error()},
	}
	for _, tt := range tests {
		report, err := h.svc.RunJob(ctx, tt.jobID)
		require.NoError(t, err, "job %d", tt.jobID)
		require.Len(t, report.Jobs, 1)
		assert.False(t, report.Jobs[0].Completed)
		assert.Contains(t, report.Jobs[0].Error, tt.wantErr)

		runs := h.runs.runsFor(tt.jobID)
		require.Len(t, runs, 1)
		assert.Equal(t, model.JobRunFailed, runs[0].State())
	}
}

func TestRunRejectsMalformedTrigger(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{})

	_, err := h.svc.Run(context.Background(), model.Trigger{Selector: "everything"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.svc.Run(context.Background(), model.Trigger{Selector: model.SelectorEntityScan})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, h.runs.runs)
}

func TestCreateRunFailureIsFatal(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{defs: []*model.JobDefinition{activeJob(1, "first")}})
	h.runs.createErr = errors.New("store unreachable")

	_, err := h.svc.RunJob(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unreachable")

	_, err = h.svc.RunEntityScan(context.Background(), []model.EntityKey{{Type: model.EntityTypeUser, Name: "a"}})
	require.Error(t, err)
	assert.Nil(t, h.settings.snap)
}

func TestEntityScanOneResultPerEntity(t *testing.T) {
	source := core.QuerySourceFunc(func(_ context.Context, q core.Query) ([]core.Row, error) {
		if q.Args[0] == "slow-app" {
			return nil, context.DeadlineExceeded
		}
		return []core.Row{{"last_activity": nil}}, nil
	})
	h := newBatchHarness(t, harnessOptions{source: source})

	report, err := h.svc.Run(context.Background(), model.Trigger{
		Selector: model.SelectorEntityScan,
		Entities: []model.EntityKey{
			{Type: model.EntityTypeUser, Name: "b@x.com"},
			{Type: model.EntityTypeIntegration, Name: "slow-app"},
			{Type: "group", Name: "admins"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Items)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Activity.Entries, 3)
	assert.Equal(t, 2, report.Activity.Failed)
}

func TestEntityScanFallsBackToCatalog(t *testing.T) {
	var looked []string
	source := core.QuerySourceFunc(func(_ context.Context, q core.Query) ([]core.Row, error) {
		looked = append(looked, q.Args[0].(string))
		return nil, nil
	})
	catalog := staticCatalog{
		{Type: model.EntityTypeToken, Name: "deploy"},
		{Type: model.EntityTypeUser, Name: "ops@x.com"},
	}
	h := newBatchHarness(t, harnessOptions{source: source, catalog: catalog, scanRecipients: []string{"ops@x.com"}})
	h.svc.cfg.Concurrency = 1

	report, err := h.svc.RunEntityScan(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Items)
	assert.ElementsMatch(t, []string{"deploy", "ops@x.com"}, looked)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"ops@x.com"}, msgs[0].Recipients)
	assert.False(t, msgs[0].Failed)
}

func TestSnapshotStoreFailureClosesScanRunAsFailed(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{})
	h.settings.putErr = errors.New("disk full")

	_, err := h.svc.RunEntityScan(context.Background(), []model.EntityKey{{Type: model.EntityTypeUser, Name: "a"}})
	require.Error(t, err)
	require.Len(t, h.runs.runs, 1)
	assert.Equal(t, model.JobRunFailed, h.runs.runs[0].State())
}

func TestRunAllJobs_RecordsRunsAfterCallerDeadline(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{
		defs: []*model.JobDefinition{activeJob(1, "slow")},
		handlers: func(*batchHarness) map[int64]JobHandler {
			return map[int64]JobHandler{
				1: JobHandlerFunc(func(ctx context.Context, _ HandlerRequest) (any, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				}),
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := h.svc.RunAllJobs(ctx)
	require.NoError(t, err, "a timed-out item does not abort the invocation")
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Jobs, 1)
	assert.False(t, report.Jobs[0].Completed)
	assert.Contains(t, report.Jobs[0].Error, context.DeadlineExceeded.Error())

	runs := h.runs.runsFor(1)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].FinishedAt, "run is closed even though the caller's deadline passed")
	assert.False(t, runs[0].Completed)
	require.NotNil(t, runs[0].ResultPayload)
	assert.Contains(t, *runs[0].ResultPayload, context.DeadlineExceeded.Error())
	assert.Equal(t, 1, h.runs.completions[runs[0].ID])
}

func TestRunAllJobs_CompletionWriteFailureStaysWithItsRun(t *testing.T) {
	ok := JobHandlerFunc(func(context.Context, HandlerRequest) (any, error) { return "done", nil })
	h := newBatchHarness(t, harnessOptions{
		defs: []*model.JobDefinition{activeJob(1, "first"), activeJob(2, "second")},
		handlers: func(*batchHarness) map[int64]JobHandler {
			return map[int64]JobHandler{1: ok, 2: ok}
		},
	})
	h.runs.completeErr = map[int64]error{2: errors.New("store blip")}

	report, err := h.svc.RunAllJobs(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Items)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Jobs, 2)
	assert.True(t, report.Jobs[0].Completed)
	assert.False(t, report.Jobs[1].Completed)
	assert.Nil(t, report.Jobs[1].Payload)
	assert.Contains(t, report.Jobs[1].Error, "store blip")

	first := h.runs.runsFor(1)
	require.Len(t, first, 1)
	require.NotNil(t, first[0].FinishedAt)
	assert.True(t, first[0].Completed)

	second := h.runs.runsFor(2)
	require.Len(t, second, 1)
	assert.Nil(t, second[0].FinishedAt)

	failed := h.metrics.Find("batch.failed")
	require.Len(t, failed, 1)
	assert.InDelta(t, 1, failed[0].Value, 0)
}

func TestRunEntityScan_StoresSnapshotAfterCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := core.QuerySourceFunc(func(qctx context.Context, _ core.Query) ([]core.Row, error) {
		cancel()
		<-qctx.Done()
		return nil, qctx.Err()
	})
	h := newBatchHarness(t, harnessOptions{source: source})

	report, err := h.svc.RunEntityScan(ctx, []model.EntityKey{{Type: model.EntityTypeUser, Name: "a@x.com"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	require.NotNil(t, h.settings.snap)
	assert.Equal(t, 1, h.settings.snap.Failed)
	require.Len(t, h.runs.runs, 1)
	require.NotNil(t, h.runs.runs[0].FinishedAt)
	assert.True(t, h.runs.runs[0].Completed)
	require.NotNil(t, h.runs.runs[0].ResultPayload)
	assert.JSONEq(t, `{"entities":1,"failed":1}`, *h.runs.runs[0].ResultPayload)
}

func TestRunEntityScan_CompletionWriteFailureKeepsSnapshot(t *testing.T) {
	h := newBatchHarness(t, harnessOptions{})
	h.runs.completeErr = map[int64]error{1: errors.New("store blip")}

	report, err := h.svc.RunEntityScan(context.Background(), []model.EntityKey{{Type: model.EntityTypeToken, Name: "T1"}})
	require.NoError(t, err)
	require.NotNil(t, report.Activity)
	assert.Equal(t, 1, h.settings.puts)
	assert.Nil(t, h.runs.runs[0].FinishedAt)
}

func TestJobNotificationFollowsDefinition(t *testing.T) {
	notified := activeJob(1, "Recent error scan")
	notified.NotifyOnCompletion = true
	notified.NotifyRecipients = []string{"oncall@x.com"}

	h := newBatchHarness(t, harnessOptions{
		defs: []*model.JobDefinition{notified, activeJob(2, "quiet")},
		handlers: func(*batchHarness) map[int64]JobHandler {
			ok := JobHandlerFunc(func(context.Context, HandlerRequest) (any, error) { return []int{1}, nil })
			return map[int64]JobHandler{1: ok, 2: ok}
		},
	})

	_, err := h.svc.RunAllJobs(context.Background())
	require.NoError(t, err)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"oncall@x.com"}, msgs[0].Recipients)
	assert.Equal(t, "Recent error scan completed", msgs[0].Subject)
	assert.Equal(t, "1", msgs[0].JobID)
	assert.Equal(t, "[1]", msgs[0].Body)
	assert.NotEmpty(t, msgs[0].Metadata["batch_id"])
}

type entityOutcome struct {
	key   model.EntityKey
	value string
	err   error
}

func entityResults(outcomes ...entityOutcome) []batch.Result[model.EntityWorkItem, string] {
	out := make([]batch.Result[model.EntityWorkItem, string], 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, batch.Result[model.EntityWorkItem, string]{
			Item:  model.EntityWorkItem{EntityKey: o.key},
			Value: o.value,
			Err:   o.err,
		})
	}
	return out
}

func TestMergeActivity(t *testing.T) {
	user := model.EntityKey{Type: model.EntityTypeUser, Name: "a@x.com"}
	app := model.EntityKey{Type: model.EntityTypeIntegration, Name: "crm"}
	tok := model.EntityKey{Type: model.EntityTypeToken, Name: "T1"}
	fail := errors.New("timeout")

	results := entityResults(
		entityOutcome{key: tok},
		entityOutcome{key: user, value: "2024-01-01 10:00:00"},
		entityOutcome{key: app, err: fail},
		entityOutcome{key: user, value: "2024-02-01 08:00:00"},
	)
	prior := &model.ActivitySnapshot{Entries: []model.ActivityEntry{{Key: app, LastActivity: "2023-12-31 23:00:00"}}}

	want := []model.ActivityEntry{
		{Key: user, LastActivity: "2024-02-01 08:00:00"},
		{Key: app, LastActivity: "2023-12-31 23:00:00"},
		{Key: tok, LastActivity: ""},
	}

	t.Run("keyed and sorted", func(t *testing.T) {
		snap := MergeActivity(results, prior)
		assert.Equal(t, want, snap.Entries)
		assert.Equal(t, 1, snap.Failed)
	})

	t.Run("order independent", func(t *testing.T) {
		reversed := make([]batch.Result[model.EntityWorkItem, string], len(results))
		for i := range results {
			reversed[len(results)-1-i] = results[i]
		}
		assert.Equal(t, want, MergeActivity(reversed, prior).Entries)
	})

	t.Run("failed without prior is empty", func(t *testing.T) {
		snap := MergeActivity(entityResults(entityOutcome{key: app, err: fail}), nil)
		require.Len(t, snap.Entries, 1)
		assert.Empty(t, snap.Entries[0].LastActivity)
	})

	t.Run("empty input", func(t *testing.T) {
		snap := MergeActivity(nil, nil)
		assert.Empty(t, snap.Entries)
		assert.Zero(t, snap.Failed)
	})
}
