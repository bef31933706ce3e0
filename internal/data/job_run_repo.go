package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
	apperrors "github.com/target/opsdesk/internal/errors"
)

const jobRunColumns = `id, job_id, created_at, completed, result_payload, finished_at`

// JobRunRepo provides database operations for the run ledger.
type JobRunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.JobRunRepository = (*JobRunRepo)(nil)

// NewJobRunRepo creates a new JobRunRepo with real time provider.
func NewJobRunRepo(db *sql.DB) *JobRunRepo {
	return &JobRunRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobRunRepoWithTimeProvider creates a JobRunRepo with a custom time provider (useful for tests).
func NewJobRunRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobRunRepo {
	return &JobRunRepo{DB: db, timeProvider: tp}
}

// Create records an open run. jobID is nil for entity scans.
func (r *JobRunRepo) Create(ctx context.Context, jobID *int64) (*model.JobRun, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO job_runs (job_id, created_at, completed)
		VALUES ($1, $2, FALSE)
		RETURNING `+jobRunColumns,
		jobID, r.timeProvider.Now().UTC(),
	)
	run, err := scanJobRun(row)
	if err != nil {
		return nil, fmt.Errorf("create job run: %w", apperrors.MapDBError(err))
	}
	return run, nil
}

// Complete closes an open run. Runs that already finished are left untouched and report false.
func (r *JobRunRepo) Complete(ctx context.Context, params model.CompleteRunParams) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_runs
		SET completed = $2, result_payload = $3, finished_at = $4
		WHERE id = $1 AND finished_at IS NULL`,
		params.RunID, params.Completed, params.Payload, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("complete job run %d: %w", params.RunID, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// LastCompleted returns the newest completed=true run for jobID, or nil.
// Failed and still-open runs never count as a checkpoint.
func (r *JobRunRepo) LastCompleted(ctx context.Context, jobID int64) (*model.JobRun, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobRunColumns+`
		FROM job_runs
		WHERE job_id = $1 AND completed = TRUE
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		jobID,
	)
	run, err := scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last completed run for job %d: %w", jobID, apperrors.MapDBError(err))
	}
	return run, nil
}

// GetByID returns the run or model.ErrRunNotFound.
func (r *JobRunRepo) GetByID(ctx context.Context, id int64) (*model.JobRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobRunColumns+` FROM job_runs WHERE id = $1`, id)
	run, err := scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %d: %w", id, model.ErrRunNotFound)
		}
		return nil, fmt.Errorf("get job run %d: %w", id, apperrors.MapDBError(err))
	}
	return run, nil
}

// ListByJob returns the newest runs for a job first.
func (r *JobRunRepo) ListByJob(ctx context.Context, jobID int64, limit int) ([]*model.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobRunColumns+`
		FROM job_runs
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		jobID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs for job %d: %w", jobID, apperrors.MapDBError(err))
	}
	defer rows.Close()

	var out []*model.JobRun
	for rows.Next() {
		run, scanErr := scanJobRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job run: %w", scanErr)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job runs: %w", err)
	}
	return out, nil
}

func scanJobRun(s scanner) (*model.JobRun, error) {
	var (
		run        model.JobRun
		jobID      sql.NullInt64
		payload    sql.NullString
		finishedAt sql.NullTime
	)
	if err := s.Scan(&run.ID, &jobID, &run.CreatedAt, &run.Completed, &payload, &finishedAt); err != nil {
		return nil, err
	}
	if jobID.Valid {
		id := jobID.Int64
		run.JobID = &id
	}
	if payload.Valid {
		p := payload.String
		run.ResultPayload = &p
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
