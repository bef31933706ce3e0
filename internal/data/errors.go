package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrInstallRequestRequired = errors.New("install job request is required")
	ErrSnapshotRequired       = errors.New("activity snapshot is required")
	ErrLockKeyRequired        = errors.New("lock key is required")
)
