package mediakit

import "errors"

var (
	// ErrInvalidArgument marks a missing or malformed identifier passed to a mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks an operation against a component id absent from state.
	ErrNotFound = errors.New("component not found")
	// ErrDuplicateDetected marks more than one live node for one component id.
	ErrDuplicateDetected = errors.New("duplicate element detected")
	// ErrSyncConflict marks a sync dropped because its field lock was held.
	ErrSyncConflict = errors.New("sync already in progress")
	// ErrPersistence marks a failed storage read or write.
	ErrPersistence = errors.New("persistence failure")
	// ErrNoStoredState is returned by storage when nothing was saved yet.
	ErrNoStoredState = errors.New("no stored state")
)

var (
	ErrNothingToSync  = errors.New("external source has nothing to sync")
	ErrNothingToClear = errors.New("media kit is already empty")
	ErrNoSnapshot     = errors.New("no bulk operation to undo")
	ErrCancelled      = errors.New("operation cancelled")
)
