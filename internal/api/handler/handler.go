package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propfix/propfix-be/internal/api/storage"
	"github.com/propfix/propfix-be/internal/assignment"
	"github.com/propfix/propfix-be/internal/notification"
)

// Context keys set by the session middleware and read by handlers.
const (
	ContextActorID   = "actor_id"
	ContextActorRole = "actor_role"
)

// AssignmentStore is the persistence surface the assignment handlers need.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a *assignment.Assignment) error
	ApplyTransition(ctx context.Context, assignmentID, traderID string, t *assignment.Transition) (*assignment.Assignment, error)
	GetAssignment(ctx context.Context, assignmentID, traderID string) (*assignment.Assignment, error)
	ListAssignments(ctx context.Context, filter storage.AssignmentFilter) ([]assignment.Assignment, error)
	AppendEvent(ctx context.Context, ev assignment.Event) error
}

// NotificationStore is the persistence surface the feed handlers need.
type NotificationStore interface {
	ListNotifications(ctx context.Context, filter storage.NotificationFilter) ([]notification.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, notificationID, recipientID string) error
}

// EventPublisher publishes committed transition events to the broker.
type EventPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Assignments   AssignmentStore
	Notifications NotificationStore
	Publisher     EventPublisher
}

// AssignmentHandler handles assignment HTTP requests
type AssignmentHandler struct {
	logger      *slog.Logger
	assignments AssignmentStore
	publisher   EventPublisher
}

// NewAssignmentHandler creates a new AssignmentHandler instance
func NewAssignmentHandler(deps *Dependencies) *AssignmentHandler {
	return &AssignmentHandler{
		logger:      deps.Logger,
		assignments: deps.Assignments,
		publisher:   deps.Publisher,
	}
}

// NotificationHandler handles notification feed HTTP requests
type NotificationHandler struct {
	logger        *slog.Logger
	notifications NotificationStore
}

// NewNotificationHandler creates a new NotificationHandler instance
func NewNotificationHandler(deps *Dependencies) *NotificationHandler {
	return &NotificationHandler{
		logger:        deps.Logger,
		notifications: deps.Notifications,
	}
}

// respondError maps domain errors onto the HTTP error taxonomy:
// validation 400, illegal transition or conflicting assignment 409,
// missing or foreign rows 404, anything else a retryable 500.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var validationErr *assignment.ValidationError
	var transitionErr *assignment.InvalidTransitionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":          transitionErr.Error(),
			"current_status": string(transitionErr.Status),
		})
	case errors.Is(err, assignment.ErrRequestNotAssignable):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, assignment.ErrNotFound), errors.Is(err, notification.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, assignment.ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	default:
		logger.Error("Request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Persistence failure, please retry",
		})
	}
}
