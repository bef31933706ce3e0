package model

import (
	"time"
)

// JobRunState is the lifecycle state of a JobRun.
type JobRunState string

const (
	// JobRunCreated marks a run that has been recorded but not yet completed.
	JobRunCreated JobRunState = "created"
	// JobRunSucceeded marks a run completed with completed=true.
	JobRunSucceeded JobRunState = "succeeded"
	// JobRunFailed marks a run completed with completed=false.
	JobRunFailed JobRunState = "failed"
)

// JobRun is the durable audit record of one execution attempt.
// JobID is nil for ad hoc entity-activity scans.
type JobRun struct {
	ID            int64      `json:"id"                       db:"id"`
	JobID         *int64     `json:"job_id,omitempty"         db:"job_id"`
	CreatedAt     time.Time  `json:"created_at"               db:"created_at"`
	Completed     bool       `json:"completed"                db:"completed"`
	ResultPayload *string    `json:"result_payload,omitempty" db:"result_payload"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"    db:"finished_at"`
}

// State derives the lifecycle state from the persisted columns.
// A run with no finish time is still in the Created state regardless of the completed flag.
func (r *JobRun) State() JobRunState {
	switch {
	case r == nil || r.FinishedAt == nil:
		return JobRunCreated
	case r.Completed:
		return JobRunSucceeded
	default:
		return JobRunFailed
	}
}

// CompleteRunParams groups the arguments for closing a run.
type CompleteRunParams struct {
	RunID     int64
	Completed bool
	Payload   string
}
