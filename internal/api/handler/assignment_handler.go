package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/propfix/propfix-be/internal/api/dto"
	"github.com/propfix/propfix-be/internal/api/storage"
	"github.com/propfix/propfix-be/internal/assignment"
	"github.com/propfix/propfix-be/internal/session"
)

// CreateAssignment handles POST /api/v1/assignments
// Assigns a trader to a PENDING service request (owner/admin only).
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	now := time.Now().UTC()
	a := assignment.Assignment{
		AssignmentID:     uuid.New().String(),
		ServiceRequestID: req.ServiceRequestID,
		TraderID:         req.TraderID,
		AssignedAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.assignments.CreateAssignment(c.Request.Context(), &a); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Assignment created",
		slog.String("assignment_id", a.AssignmentID),
		slog.String("service_request_id", a.ServiceRequestID),
		slog.String("trader_id", a.TraderID),
	)

	h.emitEvent(c, &a, assignment.ActionAssign, "", now)

	c.JSON(http.StatusCreated, toAssignmentDTO(&a))
}

// AcceptAssignment handles POST /api/v1/assignments/:assignment_id/accept
func (h *AssignmentHandler) AcceptAssignment(c *gin.Context) {
	h.transition(c, assignment.ActionAccept, "")
}

// RejectAssignment handles POST /api/v1/assignments/:assignment_id/reject
// The body must carry a non-empty rejection reason.
func (h *AssignmentHandler) RejectAssignment(c *gin.Context) {
	var req dto.RejectAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	h.transition(c, assignment.ActionReject, req.Reason)
}

// StartAssignment handles POST /api/v1/assignments/:assignment_id/start
func (h *AssignmentHandler) StartAssignment(c *gin.Context) {
	h.transition(c, assignment.ActionStart, "")
}

// CompleteAssignment handles POST /api/v1/assignments/:assignment_id/complete
func (h *AssignmentHandler) CompleteAssignment(c *gin.Context) {
	h.transition(c, assignment.ActionComplete, "")
}

// transition runs the shared accept/reject/start/complete flow: resolve the
// trader's own assignment, plan the action against its current state, then
// apply the plan as one guarded write. The plan is advisory (fast failure
// with a clean error); the storage predicate is what actually serializes
// concurrent calls.
func (h *AssignmentHandler) transition(c *gin.Context, action assignment.Action, reason string) {
	assignmentID := c.Param("assignment_id")
	if _, err := uuid.Parse(assignmentID); err != nil {
		h.logger.Error("Invalid assignment_id format",
			slog.String("assignment_id", assignmentID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "assignment_id must be a valid UUID",
		})
		return
	}

	traderID := c.GetString(ContextActorID)

	current, err := h.assignments.GetAssignment(c.Request.Context(), assignmentID, traderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	plan, err := assignment.Plan(current, action, reason, time.Now().UTC())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	updated, err := h.assignments.ApplyTransition(c.Request.Context(), assignmentID, traderID, plan)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.emitEvent(c, updated, plan.Action, plan.Reason, plan.OccurredAt)

	c.JSON(http.StatusOK, toAssignmentDTO(updated))
}

// emitEvent appends the audit event and publishes it to the broker. Runs
// after the transition commits; failures are logged and the response stays
// a success, per the best-effort emission contract.
func (h *AssignmentHandler) emitEvent(c *gin.Context, a *assignment.Assignment, action assignment.Action, reason string, occurredAt time.Time) {
	ev := assignment.NewEvent(a, action, reason, occurredAt)

	if err := h.assignments.AppendEvent(c.Request.Context(), ev); err != nil {
		h.logger.Error("Failed to append audit event",
			slog.String("assignment_id", a.AssignmentID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal event",
			slog.String("event_id", ev.EventID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to publish event",
			slog.String("event_id", ev.EventID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

// GetAssignment handles GET /api/v1/assignments/:assignment_id
// Traders only see their own assignments; owners and admins see all.
func (h *AssignmentHandler) GetAssignment(c *gin.Context) {
	assignmentID := c.Param("assignment_id")
	if _, err := uuid.Parse(assignmentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "assignment_id must be a valid UUID",
		})
		return
	}

	traderID := ""
	if c.GetString(ContextActorRole) == session.RoleTrader {
		traderID = c.GetString(ContextActorID)
	}

	a, err := h.assignments.GetAssignment(c.Request.Context(), assignmentID, traderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toAssignmentDTO(a))
}

// ListAssignments handles GET /api/v1/assignments
// Lists assignments with filtering and cursor pagination.
func (h *AssignmentHandler) ListAssignments(c *gin.Context) {
	var req dto.ListAssignmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeAssignmentCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	// Traders are always scoped to their own rows regardless of filters.
	traderID := req.TraderID
	if c.GetString(ContextActorRole) == session.RoleTrader {
		traderID = c.GetString(ContextActorID)
	}

	filter := storage.AssignmentFilter{
		TraderID:         traderID,
		ServiceRequestID: req.ServiceRequestID,
		Status:           assignment.Status(req.Status),
		PageSize:         req.PageSize,
		Cursor:           cursor,
	}

	assignments, err := h.assignments.ListAssignments(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(assignments) > req.PageSize
	if hasMore {
		assignments = assignments[:req.PageSize]
	}

	items := make([]dto.AssignmentDTO, len(assignments))
	for i := range assignments {
		items[i] = toAssignmentDTO(&assignments[i])
	}

	var nextCursor string
	if hasMore {
		last := assignments[len(assignments)-1]
		nextCursor = EncodeAssignmentCursor(&storage.AssignmentCursor{
			CreatedAt:    last.CreatedAt,
			AssignmentID: last.AssignmentID,
		})
	}

	c.JSON(http.StatusOK, dto.ListAssignmentsResponse{
		Assignments: items,
		NextCursor:  nextCursor,
	})
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toAssignmentDTO(a *assignment.Assignment) dto.AssignmentDTO {
	return dto.AssignmentDTO{
		AssignmentID:     a.AssignmentID,
		ServiceRequestID: a.ServiceRequestID,
		TraderID:         a.TraderID,
		Status:           string(a.Status()),
		AssignedAt:       a.AssignedAt.Format(time.RFC3339),
		AcceptedAt:       formatTime(a.AcceptedAt),
		RejectedAt:       formatTime(a.RejectedAt),
		RejectionReason:  a.RejectionReason,
		StartedAt:        formatTime(a.StartedAt),
		CompletedAt:      formatTime(a.CompletedAt),
		CreatedAt:        a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        a.UpdatedAt.Format(time.RFC3339),
	}
}
