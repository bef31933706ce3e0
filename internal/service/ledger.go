package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

// RunLedgerServiceOptions groups dependencies for RunLedgerService.
type RunLedgerServiceOptions struct {
	Repo   core.JobRunRepository // Required
	Logger *slog.Logger          // Optional
}

// RunLedgerService creates and closes job run records.
type RunLedgerService struct {
	repo   core.JobRunRepository
	logger *slog.Logger
}

// NewRunLedgerService constructs the ledger. It panics when Repo is nil.
func NewRunLedgerService(opts RunLedgerServiceOptions) *RunLedgerService {
	if opts.Repo == nil {
		panic("RunLedgerService requires a JobRunRepository")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLedgerService{repo: opts.Repo, logger: logger.With("component", "run_ledger")}
}

// CreateRun records an open run. jobID is nil for entity scans.
func (s *RunLedgerService) CreateRun(ctx context.Context, jobID *int64) (*model.JobRun, error) {
	run, err := s.repo.Create(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.logger.DebugContext(ctx, "run created", "run_id", run.ID, "job_id", jobIDAttr(jobID))
	return run, nil
}

// CompleteRun closes a run. A second completion for the same run fails with model.ErrRunNotOpen.
func (s *RunLedgerService) CompleteRun(ctx context.Context, runID int64, completed bool, payload string) error {
	ok, err := s.repo.Complete(ctx, model.CompleteRunParams{RunID: runID, Completed: completed, Payload: payload})
	if err != nil {
		return fmt.Errorf("complete run %d: %w", runID, err)
	}
	if !ok {
		return fmt.Errorf("complete run %d: %w", runID, model.ErrRunNotOpen)
	}
	return nil
}

// LastCompletedRun returns the createdAt of the newest completed=true run for jobID.
// ok is false when the job has never completed successfully.
func (s *RunLedgerService) LastCompletedRun(ctx context.Context, jobID int64) (time.Time, bool, error) {
	run, err := s.repo.LastCompleted(ctx, jobID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last completed run for job %d: %w", jobID, err)
	}
	if run == nil || !run.Completed {
		return time.Time{}, false, nil
	}
	return run.CreatedAt, true, nil
}

// LastCompleted returns the newest completed=true run for jobID, or nil.
func (s *RunLedgerService) LastCompleted(ctx context.Context, jobID int64) (*model.JobRun, error) {
	run, err := s.repo.LastCompleted(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("last completed run for job %d: %w", jobID, err)
	}
	return run, nil
}

// Get returns a run by id.
func (s *RunLedgerService) Get(ctx context.Context, runID int64) (*model.JobRun, error) {
	return s.repo.GetByID(ctx, runID)
}

// History returns the newest runs for a job first.
func (s *RunLedgerService) History(ctx context.Context, jobID int64, limit int) ([]*model.JobRun, error) {
	runs, err := s.repo.ListByJob(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for job %d: %w", jobID, err)
	}
	return runs, nil
}

func jobIDAttr(jobID *int64) any {
	if jobID == nil {
		return nil
	}
	return *jobID
}
