package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/propfix/propfix-be/internal/api/dto"
	"github.com/propfix/propfix-be/internal/api/storage"
)

// ListNotifications handles GET /api/v1/notifications
// The feed is always scoped to the authenticated actor.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var req dto.ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
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

	cursor, err := DecodeNotificationCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.NotificationFilter{
		RecipientID: c.GetString(ContextActorID),
		UnreadOnly:  req.UnreadOnly,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	}

	notifications, err := h.notifications.ListNotifications(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(notifications) > req.PageSize
	if hasMore {
		notifications = notifications[:req.PageSize]
	}

	items := make([]dto.NotificationDTO, len(notifications))
	for i, n := range notifications {
		items[i] = dto.NotificationDTO{
			NotificationID: n.NotificationID,
			AssignmentID:   n.AssignmentID,
			Action:         n.Action,
			Title:          n.Title,
			Message:        n.Message,
			IsRead:         n.IsRead,
			CreatedAt:      n.CreatedAt.Format(time.RFC3339),
			ReadAt:         formatTime(n.ReadAt),
		}
	}

	var nextCursor string
	if hasMore {
		last := notifications[len(notifications)-1]
		nextCursor = EncodeNotificationCursor(&storage.NotificationCursor{
			CreatedAt:      last.CreatedAt,
			NotificationID: last.NotificationID,
		})
	}

	c.JSON(http.StatusOK, dto.ListNotificationsResponse{
		Notifications: items,
		NextCursor:    nextCursor,
	})
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), c.GetString(ContextActorID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.UnreadCountResponse{UnreadCount: count})
}

// MarkRead handles POST /api/v1/notifications/:notification_id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	notificationID := c.Param("notification_id")
	if _, err := uuid.Parse(notificationID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "notification_id must be a valid UUID",
		})
		return
	}

	err := h.notifications.MarkRead(c.Request.Context(), notificationID, c.GetString(ContextActorID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notification_id": notificationID,
		"is_read":         true,
	})
}
