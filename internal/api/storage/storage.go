package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/propfix/propfix-be/internal/assignment"
	"github.com/propfix/propfix-be/shared/postgresql"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index guarding one active assignment per service request.
const uniqueViolation = "23505"

const assignmentColumns = `
	assignment_id, service_request_id, trader_id, assigned_at,
	accepted_at, rejected_at, rejection_reason, started_at, completed_at,
	created_at, updated_at
`

// Storage handles assignment persistence for the API service.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance.
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// CreateAssignment inserts a new assignment for a PENDING service request
// and moves the request to ASSIGNED in the same transaction. Returns
// assignment.ErrRequestNotAssignable when the request is not PENDING or
// already carries an active assignment.
func (s *Storage) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	requestQuery := `
		UPDATE service_requests
		SET status = $1, updated_at = NOW()
		WHERE request_id = $2 AND status = $3
	`

	result, err := tx.ExecContext(ctx, requestQuery,
		assignment.RequestStatusAssigned, a.ServiceRequestID, assignment.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update service request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return assignment.ErrRequestNotAssignable
	}

	insertQuery := `
		INSERT INTO job_assignments (
			assignment_id, service_request_id, trader_id, assigned_at,
			rejection_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, '', $5, $6)
	`

	_, err = tx.ExecContext(ctx, insertQuery,
		a.AssignmentID,
		a.ServiceRequestID,
		a.TraderID,
		a.AssignedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return assignment.ErrRequestNotAssignable
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// timestampColumn maps a transition action to the column it sets.
func timestampColumn(action assignment.Action) (string, error) {
	switch action {
	case assignment.ActionAccept:
		return "accepted_at", nil
	case assignment.ActionReject:
		return "rejected_at", nil
	case assignment.ActionStart:
		return "started_at", nil
	case assignment.ActionComplete:
		return "completed_at", nil
	default:
		return "", assignment.ErrUnknownAction
	}
}

// precondition returns the guard the conditional UPDATE is keyed on. It is
// the SQL form of the planner's state check, so two concurrent calls can
// never both match.
func precondition(action assignment.Action) (string, error) {
	switch action {
	case assignment.ActionAccept, assignment.ActionReject:
		return "accepted_at IS NULL AND rejected_at IS NULL", nil
	case assignment.ActionStart:
		return "accepted_at IS NOT NULL AND rejected_at IS NULL AND started_at IS NULL", nil
	case assignment.ActionComplete:
		return "started_at IS NOT NULL AND completed_at IS NULL", nil
	default:
		return "", assignment.ErrUnknownAction
	}
}

// ApplyTransition executes a planned transition as one atomic unit: a
// conditional UPDATE on the assignment keyed on the transition's
// precondition, plus the service request status write, in one transaction.
// A zero-row update is classified by re-reading the row: missing or
// foreign rows yield ErrNotFound, live rows yield InvalidTransitionError
// for the state observed after the race.
func (s *Storage) ApplyTransition(ctx context.Context, assignmentID, traderID string, t *assignment.Transition) (*assignment.Assignment, error) {
	column, err := timestampColumn(t.Action)
	if err != nil {
		return nil, err
	}
	guard, err := precondition(t.Action)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		UPDATE job_assignments
		SET %s = $1, rejection_reason = $2, updated_at = $1
		WHERE assignment_id = $3 AND trader_id = $4 AND %s
		RETURNING %s
	`, column, guard, assignmentColumns)

	var updated assignment.Assignment
	err = tx.GetContext(ctx, &updated, query, t.OccurredAt, t.Reason, assignmentID, traderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyRejectedUpdate(ctx, assignmentID, traderID, t.Action)
		}
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}

	requestQuery := `
		UPDATE service_requests
		SET status = $1, updated_at = NOW()
		WHERE request_id = $2
	`

	if _, err := tx.ExecContext(ctx, requestQuery, t.RequestStatus, updated.ServiceRequestID); err != nil {
		return nil, fmt.Errorf("failed to update service request status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Assignment transition applied",
		slog.String("assignment_id", assignmentID),
		slog.String("action", string(t.Action)),
		slog.String("status", string(updated.Status())),
	)

	return &updated, nil
}

// classifyRejectedUpdate distinguishes NotFound from InvalidTransition
// after a guarded update matched no rows.
func (s *Storage) classifyRejectedUpdate(ctx context.Context, assignmentID, traderID string, action assignment.Action) error {
	current, err := s.GetAssignment(ctx, assignmentID, traderID)
	if err != nil {
		return err
	}
	return &assignment.InvalidTransitionError{Action: action, Status: current.Status()}
}

// GetAssignment fetches one assignment. A non-empty traderID restricts
// visibility to that trader's rows; foreign rows come back as ErrNotFound.
func (s *Storage) GetAssignment(ctx context.Context, assignmentID, traderID string) (*assignment.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_assignments WHERE assignment_id = $1`, assignmentColumns)
	args := []interface{}{assignmentID}

	if traderID != "" {
		query += " AND trader_id = $2"
		args = append(args, traderID)
	}

	var a assignment.Assignment
	err := s.db.GetContext(ctx, &a, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, assignment.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return &a, nil
}

// AssignmentFilter holds list filters and cursor pagination settings.
type AssignmentFilter struct {
	TraderID         string
	ServiceRequestID string
	Status           assignment.Status
	PageSize         int
	Cursor           *AssignmentCursor
}

// AssignmentCursor is the keyset position for assignment pagination.
type AssignmentCursor struct {
	CreatedAt    time.Time
	AssignmentID string
}

// statusPredicate translates a derived status label into the timestamp
// predicate that defines it.
func statusPredicate(status assignment.Status) (string, bool) {
	switch status {
	case assignment.StatusPending:
		return "accepted_at IS NULL AND rejected_at IS NULL", true
	case assignment.StatusAccepted:
		return "accepted_at IS NOT NULL AND rejected_at IS NULL AND started_at IS NULL", true
	case assignment.StatusInProgress:
		return "started_at IS NOT NULL AND completed_at IS NULL", true
	case assignment.StatusCompleted:
		return "completed_at IS NOT NULL", true
	case assignment.StatusRejected:
		return "rejected_at IS NOT NULL", true
	default:
		return "", false
	}
}

// ListAssignments returns up to PageSize+1 rows so the caller can detect
// whether more results exist.
func (s *Storage) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]assignment.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_assignments WHERE 1=1`, assignmentColumns)
	args := []interface{}{}
	argIdx := 1

	if filter.TraderID != "" {
		query += fmt.Sprintf(" AND trader_id = $%d", argIdx)
		args = append(args, filter.TraderID)
		argIdx++
	}

	if filter.ServiceRequestID != "" {
		query += fmt.Sprintf(" AND service_request_id = $%d", argIdx)
		args = append(args, filter.ServiceRequestID)
		argIdx++
	}

	if filter.Status != "" {
		predicate, ok := statusPredicate(filter.Status)
		if !ok {
			return nil, &assignment.ValidationError{Field: "status", Reason: "unknown status label"}
		}
		query += " AND " + predicate
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, assignment_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.AssignmentID)
		argIdx += 2
	}

	// Order by created_at DESC, assignment_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, assignment_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var assignments []assignment.Assignment
	if err := s.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	return assignments, nil
}

// AppendEvent records the audit event for a committed transition. Called
// after the transition commits; failures here never undo the transition.
func (s *Storage) AppendEvent(ctx context.Context, ev assignment.Event) error {
	query := `
		INSERT INTO assignment_events (
			event_id, assignment_id, service_request_id, trader_id,
			action, reason, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.EventID,
		ev.AssignmentID,
		ev.ServiceRequestID,
		ev.TraderID,
		ev.Action,
		ev.Reason,
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}
