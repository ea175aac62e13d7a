package notification

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a notification does not exist or belongs to
// another recipient.
var ErrNotFound = errors.New("notification not found")

// Notification is a user-facing record derived from an assignment event.
// Rows are append-only; only the read flag is ever mutated.
type Notification struct {
	NotificationID string     `db:"notification_id"`
	EventID        string     `db:"event_id"`
	RecipientID    string     `db:"recipient_id"`
	AssignmentID   string     `db:"assignment_id"`
	Action         string     `db:"action"`
	Title          string     `db:"title"`
	Message        string     `db:"message"`
	IsRead         bool       `db:"is_read"`
	CreatedAt      time.Time  `db:"created_at"`
	ReadAt         *time.Time `db:"read_at"`
}
