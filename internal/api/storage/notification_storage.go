package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/propfix/propfix-be/internal/notification"
)

const notificationColumns = `
	notification_id, event_id, recipient_id, assignment_id, action,
	title, message, is_read, created_at, read_at
`

// NotificationFilter holds feed filters and cursor pagination settings.
// RecipientID is always required; the feed is never cross-recipient.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	PageSize    int
	Cursor      *NotificationCursor
}

// NotificationCursor is the keyset position for feed pagination.
type NotificationCursor struct {
	CreatedAt      time.Time
	NotificationID string
}

// ListNotifications returns up to PageSize+1 rows of the recipient's feed,
// newest first.
func (s *Storage) ListNotifications(ctx context.Context, filter NotificationFilter) ([]notification.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE recipient_id = $1`, notificationColumns)
	args := []interface{}{filter.RecipientID}
	argIdx := 2

	if filter.UnreadOnly {
		query += " AND is_read = false"
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, notification_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.NotificationID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, notification_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var notifications []notification.Notification
	if err := s.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, nil
}

// UnreadCount counts the recipient's unread notifications. The unread badge
// is always this query; no counter state is kept in process.
func (s *Storage) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`

	if err := s.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// MarkRead flags a notification as read. Idempotent: re-marking a read
// notification succeeds and keeps the original read_at.
func (s *Storage) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = COALESCE(read_at, NOW())
		WHERE notification_id = $1 AND recipient_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, notificationID, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notification.ErrNotFound
	}

	return nil
}
