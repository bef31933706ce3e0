package model

import "errors"

// Sentinel errors shared across the batch engine.
var (
	// ErrJobNotFound is returned when a job definition id is unknown.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobInactive is returned when a job definition exists but is deactivated.
	ErrJobInactive = errors.New("job is inactive")
	// ErrNoHandler is returned when no handler is registered for a job id.
	ErrNoHandler = errors.New("no handler registered for job")
	// ErrJobBusy is returned when another invocation holds the lock for a job id.
	ErrJobBusy = errors.New("job is already running")
	// ErrRunNotOpen is returned when completing a run that already finished or does not exist.
	ErrRunNotOpen = errors.New("job run is not open")
	// ErrRunNotFound is returned when a job run id is unknown.
	ErrRunNotFound = errors.New("job run not found")
	// ErrUnknownEntityType is returned when an entity work item carries an unsupported type.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrSnapshotNotFound is returned when no activity snapshot has been stored yet.
	ErrSnapshotNotFound = errors.New("activity snapshot not found")
)
