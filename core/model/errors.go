package model

import (
	"errors"
	"fmt"
)

// Business-rule violations are recoverable: they mean the caller acted on a
// stale view of the world and should re-fetch and retry or report back to the
// user. Infrastructure failures are never wrapped in these sentinels and
// propagate unchanged.
var (
	// ErrInvalidArgument marks malformed or missing input (coordinates out of
	// range, unknown support kind, empty mandatory notes).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks an exclusivity-rule violation: a second pending
	// request for a technician or a second active service for a unit.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState marks a transition attempted from a state that forbids
	// it.
	ErrInvalidState = errors.New("invalid state")
	// ErrExpired marks an accept attempted on a request past its deadline.
	ErrExpired = errors.New("request expired")
	// ErrAlreadyStarted guards the work-start timestamp against double writes.
	ErrAlreadyStarted = errors.New("work already started")
	// ErrAlreadyFinished guards the work-finish timestamp against double
	// writes.
	ErrAlreadyFinished = errors.New("work already finished")
	// ErrForbidden marks an actor/role mismatch for the attempted operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks an unknown entity id.
	ErrNotFound = errors.New("not found")
)

// ArgumentError carries the offending field alongside ErrInvalidArgument.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

// StateError reports the state that blocked a transition so the caller can
// refresh its view.
type StateError struct {
	Entity  string
	Current string
	Op      string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s cannot %s while %s", e.Entity, e.Op, e.Current)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }
