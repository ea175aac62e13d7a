package assignment

import (
	"strings"
	"time"
)

// Action is a trader-initiated lifecycle transition.
type Action string

const (
	ActionAssign   Action = "assigned"
	ActionAccept   Action = "accepted"
	ActionReject   Action = "rejected"
	ActionStart    Action = "started"
	ActionComplete Action = "completed"
)

// Transition is the planned outcome of a legal action: which timestamp to
// set, the resulting assignment status, and the service request status that
// must be written in the same transaction.
type Transition struct {
	Action        Action
	Status        Status
	RequestStatus string
	Reason        string
	OccurredAt    time.Time
}

// Plan validates an action against the assignment's current state and
// returns the mutation to apply. It performs no writes; all errors are
// computed here, before any store is touched.
func Plan(a *Assignment, action Action, reason string, now time.Time) (*Transition, error) {
	status := a.Status()

	switch action {
	case ActionAccept:
		if status != StatusPending {
			return nil, &InvalidTransitionError{Action: action, Status: status}
		}
		return &Transition{
			Action:        ActionAccept,
			Status:        StatusAccepted,
			RequestStatus: RequestStatusAssigned,
			OccurredAt:    now,
		}, nil

	case ActionReject:
		// Input validation precedes the state check so a blank reason is
		// reported as caller error even on terminal assignments.
		trimmed := strings.TrimSpace(reason)
		if trimmed == "" {
			return nil, &ValidationError{Field: "reason", Reason: "rejection reason is required"}
		}
		if status != StatusPending {
			return nil, &InvalidTransitionError{Action: action, Status: status}
		}
		// A rejected job goes back to the owner's queue for reassignment.
		return &Transition{
			Action:        ActionReject,
			Status:        StatusRejected,
			RequestStatus: RequestStatusPending,
			Reason:        trimmed,
			OccurredAt:    now,
		}, nil

	case ActionStart:
		if status != StatusAccepted {
			return nil, &InvalidTransitionError{Action: action, Status: status}
		}
		return &Transition{
			Action:        ActionStart,
			Status:        StatusInProgress,
			RequestStatus: RequestStatusInProgress,
			OccurredAt:    now,
		}, nil

	case ActionComplete:
		if status != StatusInProgress {
			return nil, &InvalidTransitionError{Action: action, Status: status}
		}
		return &Transition{
			Action:        ActionComplete,
			Status:        StatusCompleted,
			RequestStatus: RequestStatusCompleted,
			OccurredAt:    now,
		}, nil

	default:
		return nil, ErrUnknownAction
	}
}

// Apply mutates the assignment in memory according to a planned transition.
// Storage implementations enforce the same precondition atomically in SQL;
// Apply exists for in-memory stores and for shaping responses.
func Apply(a *Assignment, t *Transition) {
	ts := t.OccurredAt
	switch t.Action {
	case ActionAccept:
		a.AcceptedAt = &ts
	case ActionReject:
		a.RejectedAt = &ts
		a.RejectionReason = t.Reason
	case ActionStart:
		a.StartedAt = &ts
	case ActionComplete:
		a.CompletedAt = &ts
	}
	a.UpdatedAt = ts
}
