package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicNotificationRequestedV1 = "changeorders.notification.requested.v1"
	EventVersionV1               = 1
)

type NotificationRequestedV1 struct {
	EventID      uuid.UUID `json:"event_id"`
	EventVersion int       `json:"event_version"`
	OccurredAt   time.Time `json:"occurred_at"`
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Category     string    `json:"category"`
	RelatedID    uuid.UUID `json:"related_id"`
}
