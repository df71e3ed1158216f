package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the configuration core.
var (
	// ErrStorageUnavailable indicates the backing document store could not
	// be opened at startup. Fatal; aborts initialization.
	ErrStorageUnavailable = errors.New("document storage unavailable")

	// ErrNativeObjectCreationFailed indicates the native media engine
	// rejected a create call (bad type or settings).
	ErrNativeObjectCreationFailed = errors.New("native object creation failed")

	// ErrRevisionConflict indicates a persistence write was rejected
	// because the held revision was stale. Single-flight queueing should
	// prevent this; it is logged as an internal defect and never retried.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrNativeStartFailure indicates an output failed to start. Recovered
	// at the controller boundary and surfaced to the user with the native
	// engine's last-error string.
	ErrNativeStartFailure = errors.New("output failed to start")

	// ErrNotFound indicates a document or registry entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyInitialized indicates a service's initialize ran twice in
	// a way that is not the benign idempotent no-op.
	ErrAlreadyInitialized = errors.New("already initialized")
)

// ConflictError carries the revision details of a rejected write.
type ConflictError struct {
	Store            string
	DocID            string
	ExpectedRevision string
	CurrentRevision  string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %s/%s: held %q, current %q",
		e.Store, e.DocID, e.ExpectedRevision, e.CurrentRevision)
}

// Is reports whether target is ErrRevisionConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrRevisionConflict
}
