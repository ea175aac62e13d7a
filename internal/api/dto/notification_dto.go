package dto

type ListNotificationsRequest struct {
	UnreadOnly bool   `form:"unread_only"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
	NextCursor    string            `json:"next_cursor,omitempty"`
}

type NotificationDTO struct {
	NotificationID string  `json:"notification_id"`
	AssignmentID   string  `json:"assignment_id"`
	Action         string  `json:"action"`
	Title          string  `json:"title"`
	Message        string  `json:"message"`
	IsRead         bool    `json:"is_read"`
	CreatedAt      string  `json:"created_at"`
	ReadAt         *string `json:"read_at"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}
