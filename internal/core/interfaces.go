// Package core declares the ports the batch engine depends on.
package core

import (
	"context"
	"time"

	"github.com/target/opsdesk/internal/domain/model"
	"github.com/target/opsdesk/internal/observability/notify"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobDefinitionRepository stores the job catalog.
type JobDefinitionRepository interface {
	// ListActive returns active definitions ordered by id ascending.
	ListActive(ctx context.Context, schedulableOnly bool) ([]*model.JobDefinition, error)
	// List returns every definition, active or not, ordered by id ascending.
	List(ctx context.Context) ([]*model.JobDefinition, error)
	// GetByID returns model.ErrJobNotFound when the id is unknown.
	GetByID(ctx context.Context, id int64) (*model.JobDefinition, error)
	// Upsert creates the definition or refreshes its descriptive fields.
	Upsert(ctx context.Context, req *model.InstallJobRequest) (*model.JobDefinition, error)
	// SetActive toggles the active flag. Returns false when the id is unknown.
	SetActive(ctx context.Context, id int64, active bool) (bool, error)
}

// JobRunRepository stores the run ledger.
type JobRunRepository interface {
	// Create inserts an open run (completed=false, no payload) and returns it.
	Create(ctx context.Context, jobID *int64) (*model.JobRun, error)
	// Complete closes an open run. Returns false when no open run with that id exists.
	Complete(ctx context.Context, params model.CompleteRunParams) (bool, error)
	// LastCompleted returns the most recent completed=true run for jobID, or nil when there is none.
	LastCompleted(ctx context.Context, jobID int64) (*model.JobRun, error)
	// GetByID returns model.ErrRunNotFound when the id is unknown.
	GetByID(ctx context.Context, id int64) (*model.JobRun, error)
	// ListByJob returns the newest runs for a job first.
	ListByJob(ctx context.Context, jobID int64, limit int) ([]*model.JobRun, error)
}

// SettingsRepository stores the single activity snapshot.
type SettingsRepository interface {
	// GetSnapshot returns model.ErrSnapshotNotFound before the first scan completes.
	GetSnapshot(ctx context.Context) (*model.ActivitySnapshot, error)
	PutSnapshot(ctx context.Context, snapshot *model.ActivitySnapshot) error
}

// Row is one record returned by a QuerySource. Callers cast the fields they expect.
type Row map[string]any

// Query is a read-only statement with positional arguments.
type Query struct {
	Text string
	Args []any
}

// QuerySource executes read queries against business records.
type QuerySource interface {
	Query(ctx context.Context, q Query) ([]Row, error)
}

// QuerySourceFunc adapts a function to the QuerySource interface (useful for tests).
type QuerySourceFunc func(ctx context.Context, q Query) ([]Row, error)

// Query implements QuerySource.
func (f QuerySourceFunc) Query(ctx context.Context, q Query) ([]Row, error) {
	return f(ctx, q)
}

// RunLocker serializes invocations that must not overlap.
type RunLocker interface {
	// TryLock acquires key for ttl. ok is false when another holder owns the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Notifier delivers completion messages. Delivery is best-effort.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message)
}
