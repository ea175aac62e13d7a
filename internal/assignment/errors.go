package assignment

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an assignment does not exist or is not
	// visible to the requesting actor.
	ErrNotFound = errors.New("assignment not found")

	// ErrRequestNotAssignable is returned when creating an assignment for a
	// service request that is not PENDING or already has an active assignment.
	ErrRequestNotAssignable = errors.New("service request is not available for assignment")

	// ErrUnknownAction is returned for an action outside the transition catalog.
	ErrUnknownAction = errors.New("unknown transition action")
)

// InvalidTransitionError reports an action that is not legal in the
// assignment's current state. The current status is carried for diagnosis.
type InvalidTransitionError struct {
	Action Action
	Status Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s assignment in %s state", e.Action, e.Status)
}

// ValidationError reports missing or malformed caller input. It is resolved
// before any state is read or written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
