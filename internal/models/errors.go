package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error codes for structured error handling.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeTransition = "INVALID_TRANSITION"
	ErrCodeConflict   = "SYNC_CONFLICT"
	ErrCodeFetch      = "FETCH_ERROR"
	ErrCodePersist    = "PERSIST_ERROR"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeFatal      = "FATAL_ERROR"
)

// Sentinel errors
var (
	ErrInvalidTargetID   = errors.New("invalid target id")
	ErrInvalidTransition = errors.New("invalid checkpoint transition")
	ErrNotInProgress     = errors.New("checkpoint not in progress")
	ErrCannotResume      = errors.New("checkpoint cannot be resumed")
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrValidation        = errors.New("validation failed")
)

// TransitionError reports a status edge that is not in the transition graph.
type TransitionError struct {
	TargetID string
	From     Status
	To       Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("checkpoint %s: invalid transition %s -> %s", e.TargetID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// TransientError wraps a network or store failure that is worth resuming.
// The coordinator records these as INTERRUPTED, never FAILED.
type TransientError struct {
	Op  string // "fetch" or "persist"
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should interrupt rather than fail a sync.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// SyncError provides detailed sync failure information.
type SyncError struct {
	Code     string
	Phase    string
	TargetID string
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s [%s]: target %s: %v", e.Phase, e.Code, e.TargetID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
