package assignment

import "time"

// Status is the lifecycle state of a job assignment, derived from its
// timestamp fields. It is never stored as independent truth.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Service request statuses mirrored by the assignment lifecycle. The
// mapping from a transition to the request status lives in Plan so the
// dual-write is derived in exactly one place.
const (
	RequestStatusPending    = "PENDING"
	RequestStatusAssigned   = "ASSIGNED"
	RequestStatusInProgress = "IN_PROGRESS"
	RequestStatusCompleted  = "COMPLETED"
)

// Assignment links a service request to the trader responsible for it.
// The five timestamps encode a strictly ordered lifecycle:
// completed implies started implies accepted, and rejected excludes all
// of started/completed.
type Assignment struct {
	AssignmentID     string     `db:"assignment_id"`
	ServiceRequestID string     `db:"service_request_id"`
	TraderID         string     `db:"trader_id"`
	AssignedAt       time.Time  `db:"assigned_at"`
	AcceptedAt       *time.Time `db:"accepted_at"`
	RejectedAt       *time.Time `db:"rejected_at"`
	RejectionReason  string     `db:"rejection_reason"`
	StartedAt        *time.Time `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// Status derives the lifecycle state from the timestamp fields.
func (a *Assignment) Status() Status {
	switch {
	case a.RejectedAt != nil:
		return StatusRejected
	case a.CompletedAt != nil:
		return StatusCompleted
	case a.StartedAt != nil:
		return StatusInProgress
	case a.AcceptedAt != nil:
		return StatusAccepted
	default:
		return StatusPending
	}
}

// Terminal reports whether the assignment accepts no further transitions.
func (a *Assignment) Terminal() bool {
	s := a.Status()
	return s == StatusRejected || s == StatusCompleted
}
