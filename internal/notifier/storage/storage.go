package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/propfix/propfix-be/internal/notification"
)

// ErrRequestNotFound is returned when an event references a service
// request that does not exist.
var ErrRequestNotFound = errors.New("service request not found")

// Storage handles all database operations for the notifier
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// RequestOwner resolves the owner of a service request.
func (s *Storage) RequestOwner(ctx context.Context, serviceRequestID string) (string, error) {
	var ownerID string
	query := `SELECT owner_id FROM service_requests WHERE request_id = $1`

	err := s.db.GetContext(ctx, &ownerID, query, serviceRequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRequestNotFound
		}
		return "", fmt.Errorf("failed to get request owner: %w", err)
	}

	return ownerID, nil
}

// AdminIDs lists every admin user; rejections fan out to all of them.
func (s *Storage) AdminIDs(ctx context.Context) ([]string, error) {
	var ids []string
	query := `SELECT user_id FROM users WHERE role = 'admin'`

	if err := s.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}

	return ids, nil
}

// InsertNotifications writes the fan-out rows for one event. The
// (event_id, recipient_id) unique index makes redelivery a no-op, so the
// insert is safe to retry.
func (s *Storage) InsertNotifications(ctx context.Context, rows []notification.Notification) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO notifications (
			notification_id, event_id, recipient_id, assignment_id,
			action, title, message, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
		ON CONFLICT (event_id, recipient_id) DO NOTHING
	`

	for _, row := range rows {
		_, err := tx.ExecContext(ctx, query,
			row.NotificationID,
			row.EventID,
			row.RecipientID,
			row.AssignmentID,
			row.Action,
			row.Title,
			row.Message,
			row.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Notification rows inserted",
		slog.Int("count", len(rows)),
	)

	return nil
}
