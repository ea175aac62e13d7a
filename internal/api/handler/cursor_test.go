package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propfix/propfix-be/internal/api/storage"
)

func TestAssignmentCursorRoundTrip(t *testing.T) {
	cursor := &storage.AssignmentCursor{
		CreatedAt:    time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC),
		AssignmentID: "a1b2c3d4-0000-0000-0000-000000000001",
	}

	encoded := EncodeAssignmentCursor(cursor)
	decoded, err := DecodeAssignmentCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)

	assert.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, cursor.AssignmentID, decoded.AssignmentID)
}

func TestNotificationCursorRoundTrip(t *testing.T) {
	cursor := &storage.NotificationCursor{
		CreatedAt:      time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC),
		NotificationID: "a1b2c3d4-0000-0000-0000-000000000002",
	}

	encoded := EncodeNotificationCursor(cursor)
	decoded, err := DecodeNotificationCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)

	assert.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, cursor.NotificationID, decoded.NotificationID)
}

func TestDecodeCursorEmpty(t *testing.T) {
	decoded, err := DecodeAssignmentCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "!!!"},
		{name: "missing separator", cursor: "MTIzNDU2Nzg5"},     // "123456789"
		{name: "non-numeric timestamp", cursor: "YWJjfGRlZg=="}, // "abc|def"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAssignmentCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
