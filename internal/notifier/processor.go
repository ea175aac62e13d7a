package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/propfix/propfix-be/internal/assignment"
	"github.com/propfix/propfix-be/internal/notification"
	"github.com/propfix/propfix-be/internal/notifier/storage"
)

// EventStore is the persistence surface the processor needs.
type EventStore interface {
	RequestOwner(ctx context.Context, serviceRequestID string) (string, error)
	AdminIDs(ctx context.Context) ([]string, error)
	InsertNotifications(ctx context.Context, rows []notification.Notification) error
}

// processEvent decodes one transition event and materializes its
// notification fan-out. Inserts are keyed on (event_id, recipient_id) so a
// redelivered event never duplicates rows.
func (n *Notifier) processEvent(ctx context.Context, body []byte) error {
	var ev assignment.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if ev.EventID == "" || ev.AssignmentID == "" || ev.ServiceRequestID == "" || ev.TraderID == "" {
		return fmt.Errorf("%w: missing identifiers", ErrMalformedEvent)
	}
	if _, err := uuid.Parse(ev.EventID); err != nil {
		return fmt.Errorf("%w: event_id is not a UUID", ErrMalformedEvent)
	}

	n.logger.Info("Processing event",
		slog.String("event_id", ev.EventID),
		slog.String("assignment_id", ev.AssignmentID),
		slog.String("action", string(ev.Action)),
	)

	ownerID, err := n.storage.RequestOwner(ctx, ev.ServiceRequestID)
	if err != nil {
		// A request that no longer exists can never resolve; requeueing
		// would loop the event forever.
		if errors.Is(err, storage.ErrRequestNotFound) {
			return fmt.Errorf("failed to resolve request owner: %w", err)
		}
		return NewRetryableError(fmt.Errorf("failed to resolve request owner: %w", err))
	}

	var adminIDs []string
	if ev.Action == assignment.ActionReject {
		adminIDs, err = n.storage.AdminIDs(ctx)
		if err != nil {
			return NewRetryableError(fmt.Errorf("failed to list admins: %w", err))
		}
	}

	drafts := assignment.Fanout(ev, ownerID, adminIDs)
	if len(drafts) == 0 {
		n.logger.Warn("Event produced no notifications",
			slog.String("event_id", ev.EventID),
			slog.String("action", string(ev.Action)),
		)
		return nil
	}

	now := time.Now().UTC()
	rows := make([]notification.Notification, len(drafts))
	for i, draft := range drafts {
		rows[i] = notification.Notification{
			NotificationID: uuid.New().String(),
			EventID:        ev.EventID,
			RecipientID:    draft.RecipientID,
			AssignmentID:   ev.AssignmentID,
			Action:         string(ev.Action),
			Title:          draft.Title,
			Message:        draft.Message,
			CreatedAt:      now,
		}
	}

	if err := n.storage.InsertNotifications(ctx, rows); err != nil {
		return NewRetryableError(fmt.Errorf("failed to insert notifications: %w", err))
	}

	n.logger.Info("Notifications written",
		slog.String("event_id", ev.EventID),
		slog.Int("recipients", len(rows)),
	)

	return nil
}

// shouldRequeue determines if an event should be redelivered based on the
// error type.
func (n *Notifier) shouldRequeue(err error) bool {
	// Malformed payloads can never succeed; drop them to the DLQ.
	if errors.Is(err, ErrMalformedEvent) {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	// Default: don't requeue unknown errors.
	return false
}
