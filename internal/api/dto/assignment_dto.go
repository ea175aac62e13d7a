package dto

type CreateAssignmentRequest struct {
	ServiceRequestID string `json:"service_request_id" binding:"required,uuid"`
	TraderID         string `json:"trader_id" binding:"required,uuid"`
}

type RejectAssignmentRequest struct {
	Reason string `json:"reason"`
}

type ListAssignmentsRequest struct {
	TraderID         string `form:"trader_id"`
	ServiceRequestID string `form:"service_request_id"`
	Status           string `form:"status"`
	PageSize         int    `form:"page_size"`
	Cursor           string `form:"cursor"`
}

type ListAssignmentsResponse struct {
	Assignments []AssignmentDTO `json:"assignments"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

// AssignmentDTO is the read-model projection: the five lifecycle
// timestamps plus the status label derived from them.
type AssignmentDTO struct {
	AssignmentID     string  `json:"assignment_id"`
	ServiceRequestID string  `json:"service_request_id"`
	TraderID         string  `json:"trader_id"`
	Status           string  `json:"status"`
	AssignedAt       string  `json:"assigned_at"`
	AcceptedAt       *string `json:"accepted_at"`
	RejectedAt       *string `json:"rejected_at"`
	RejectionReason  string  `json:"rejection_reason,omitempty"`
	StartedAt        *string `json:"started_at"`
	CompletedAt      *string `json:"completed_at"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}
