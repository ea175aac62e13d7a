package assignment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the append-only audit record emitted after a transition commits.
// It is also the message published to the notification exchange.
type Event struct {
	EventID          string    `db:"event_id" json:"event_id"`
	AssignmentID     string    `db:"assignment_id" json:"assignment_id"`
	ServiceRequestID string    `db:"service_request_id" json:"service_request_id"`
	TraderID         string    `db:"trader_id" json:"trader_id"`
	Action           Action    `db:"action" json:"action"`
	Reason           string    `db:"reason" json:"reason,omitempty"`
	OccurredAt       time.Time `db:"occurred_at" json:"occurred_at"`
}

// NewEvent builds the audit event for a committed transition.
func NewEvent(a *Assignment, action Action, reason string, occurredAt time.Time) Event {
	return Event{
		EventID:          uuid.New().String(),
		AssignmentID:     a.AssignmentID,
		ServiceRequestID: a.ServiceRequestID,
		TraderID:         a.TraderID,
		Action:           action,
		Reason:           reason,
		OccurredAt:       occurredAt,
	}
}

// NotificationDraft is a notification to be persisted for one recipient.
type NotificationDraft struct {
	RecipientID string
	Title       string
	Message     string
}

// Fanout maps an event to its notification recipients:
//
//	assigned                      -> the trader
//	accepted, started, completed  -> the request owner
//	rejected                      -> the request owner and every admin
//
// This catalog is the single authority on who hears about which transition.
func Fanout(ev Event, ownerID string, adminIDs []string) []NotificationDraft {
	switch ev.Action {
	case ActionAssign:
		return []NotificationDraft{{
			RecipientID: ev.TraderID,
			Title:       "New job offer",
			Message:     "You have been assigned to a service request. Accept or decline it from your dashboard.",
		}}

	case ActionAccept:
		return []NotificationDraft{{
			RecipientID: ownerID,
			Title:       "Job accepted",
			Message:     "The trader accepted the job for your service request.",
		}}

	case ActionStart:
		return []NotificationDraft{{
			RecipientID: ownerID,
			Title:       "Work started",
			Message:     "The trader has started work on your service request.",
		}}

	case ActionComplete:
		return []NotificationDraft{{
			RecipientID: ownerID,
			Title:       "Work completed",
			Message:     "The trader has marked your service request as completed.",
		}}

	case ActionReject:
		msg := fmt.Sprintf("The trader declined the job: %s", ev.Reason)
		drafts := []NotificationDraft{{
			RecipientID: ownerID,
			Title:       "Job declined",
			Message:     msg,
		}}
		for _, adminID := range adminIDs {
			if adminID == ownerID {
				continue
			}
			drafts = append(drafts, NotificationDraft{
				RecipientID: adminID,
				Title:       "Job declined",
				Message:     msg,
			})
		}
		return drafts

	default:
		return nil
	}
}
