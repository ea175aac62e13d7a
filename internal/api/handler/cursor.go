package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/propfix/propfix-be/internal/api/storage"
)

// Cursors are base64 "unixNano|id" pairs matching the keyset ordering used
// by the list queries.

func decodeCursor(cursorStr string) (time.Time, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return time.Time{}, "", err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return time.Time{}, "", fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return time.Unix(0, createdAt), parts[1], nil
}

func encodeCursor(createdAt time.Time, id string) string {
	cs := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}

func DecodeAssignmentCursor(cursorStr string) (*storage.AssignmentCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	createdAt, id, err := decodeCursor(cursorStr)
	if err != nil {
		return nil, err
	}

	return &storage.AssignmentCursor{
		CreatedAt:    createdAt,
		AssignmentID: id,
	}, nil
}

func EncodeAssignmentCursor(cursor *storage.AssignmentCursor) string {
	return encodeCursor(cursor.CreatedAt, cursor.AssignmentID)
}

func DecodeNotificationCursor(cursorStr string) (*storage.NotificationCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	createdAt, id, err := decodeCursor(cursorStr)
	if err != nil {
		return nil, err
	}

	return &storage.NotificationCursor{
		CreatedAt:      createdAt,
		NotificationID: id,
	}, nil
}

func EncodeNotificationCursor(cursor *storage.NotificationCursor) string {
	return encodeCursor(cursor.CreatedAt, cursor.NotificationID)
}
