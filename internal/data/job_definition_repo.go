package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/data/pgxutil"
	"github.com/target/opsdesk/internal/domain/model"
	apperrors "github.com/target/opsdesk/internal/errors"
)

const jobDefinitionColumns = `id, name, description, schedulable, notify_on_completion, notify_recipients, active, created_at, updated_at`

// JobDefinitionRepo provides database operations for the job registry.
type JobDefinitionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.JobDefinitionRepository = (*JobDefinitionRepo)(nil)

// NewJobDefinitionRepo creates a new JobDefinitionRepo with real time provider.
func NewJobDefinitionRepo(db *sql.DB) *JobDefinitionRepo {
	return &JobDefinitionRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobDefinitionRepoWithTimeProvider creates a JobDefinitionRepo with a custom time provider (useful for tests).
func NewJobDefinitionRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobDefinitionRepo {
	return &JobDefinitionRepo{DB: db, timeProvider: tp}
}

// ListActive returns active definitions ordered by id. With schedulableOnly set,
// definitions that are not schedulable are left out.
func (r *JobDefinitionRepo) ListActive(ctx context.Context, schedulableOnly bool) ([]*model.JobDefinition, error) {
	query := `SELECT ` + jobDefinitionColumns + ` FROM job_definitions WHERE active = TRUE`
	if schedulableOnly {
		query += ` AND schedulable = TRUE`
	}
	query += ` ORDER BY id ASC`

	defs, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active job definitions: %w", err)
	}
	return defs, nil
}

// List returns every definition ordered by id.
func (r *JobDefinitionRepo) List(ctx context.Context) ([]*model.JobDefinition, error) {
	defs, err := r.query(ctx, `SELECT `+jobDefinitionColumns+` FROM job_definitions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list job definitions: %w", err)
	}
	return defs, nil
}

// GetByID returns the definition or model.ErrJobNotFound.
func (r *JobDefinitionRepo) GetByID(ctx context.Context, id int64) (*model.JobDefinition, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobDefinitionColumns+` FROM job_definitions WHERE id = $1`, id)
	def, err := scanJobDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %d: %w", id, model.ErrJobNotFound)
		}
		return nil, fmt.Errorf("get job definition %d: %w", id, apperrors.MapDBError(err))
	}
	return def, nil
}

// Upsert creates the definition or refreshes its descriptive fields.
// The active flag is only set on insert; activation is an explicit operator step.
func (r *JobDefinitionRepo) Upsert(ctx context.Context, req *model.InstallJobRequest) (*model.JobDefinition, error) {
	if req == nil {
		return nil, ErrInstallRequestRequired
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job definition")
	}
	def, err := upsertJobDefinition(ctx, r.DB, req, r.timeProvider)
	if err != nil {
		return nil, err
	}
	return def, nil
}

// UpsertAll installs every request in one transaction. Nothing is written if any request fails.
func (r *JobDefinitionRepo) UpsertAll(
	ctx context.Context,
	reqs []*model.InstallJobRequest,
) ([]*model.JobDefinition, error) {
	for i, req := range reqs {
		if req == nil {
			return nil, fmt.Errorf("request %d: %w", i, ErrInstallRequestRequired)
		}
		if err := req.Validate(); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid job definition %d", req.ID)
		}
	}

	out := make([]*model.JobDefinition, 0, len(reqs))
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		for _, req := range reqs {
			def, err := upsertJobDefinition(ctx, tx, req, r.timeProvider)
			if err != nil {
				return err
			}
			out = append(out, def)
		}
		return nil
	}})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive toggles the active flag; false means the id is unknown.
func (r *JobDefinitionRepo) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE job_definitions SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("set job %d active=%t: %w", id, active, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertJobDefinition(
	ctx context.Context,
	q queryRower,
	req *model.InstallJobRequest,
	tp TimeProvider,
) (*model.JobDefinition, error) {
	recipients, err := json.Marshal(normalizeRecipients(req.NotifyRecipients))
	if err != nil {
		return nil, fmt.Errorf("encode recipients: %w", err)
	}
	now := tp.Now().UTC()
	row := q.QueryRowContext(ctx, `
		INSERT INTO job_definitions (
			id, name, description, schedulable, notify_on_completion, notify_recipients, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			schedulable = EXCLUDED.schedulable,
			notify_on_completion = EXCLUDED.notify_on_completion,
			notify_recipients = EXCLUDED.notify_recipients,
			updated_at = EXCLUDED.updated_at
		RETURNING `+jobDefinitionColumns,
		req.ID,
		strings.TrimSpace(req.Name),
		strings.TrimSpace(req.Description),
		req.Schedulable,
		req.NotifyOnCompletion,
		recipients,
		req.Active,
		now,
	)
	def, err := scanJobDefinition(row)
	if err != nil {
		return nil, fmt.Errorf("upsert job definition %d: %w", req.ID, apperrors.MapDBError(err))
	}
	return def, nil
}

func (r *JobDefinitionRepo) query(ctx context.Context, query string, args ...any) ([]*model.JobDefinition, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var out []*model.JobDefinition
	for rows.Next() {
		def, scanErr := scanJobDefinition(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJobDefinition(s scanner) (*model.JobDefinition, error) {
	var (
		def        model.JobDefinition
		recipients []byte
	)
	if err := s.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&def.Schedulable,
		&def.NotifyOnCompletion,
		&recipients,
		&def.Active,
		&def.CreatedAt,
		&def.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &def.NotifyRecipients); err != nil {
			return nil, fmt.Errorf("decode notify_recipients for job %d: %w", def.ID, err)
		}
	}
	return &def, nil
}

func normalizeRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
