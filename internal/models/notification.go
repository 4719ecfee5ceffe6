package models

import "time"

// NotificationType identifies workflow events pushed to users.
type NotificationType string

const (
	NotificationTeacherAssigned     NotificationType = "TEACHER_ASSIGNED"
	NotificationAssignmentCancelled NotificationType = "ASSIGNMENT_CANCELLED"
	NotificationRequestSubmitted    NotificationType = "REQUEST_SUBMITTED"
	NotificationTeacherReviewed     NotificationType = "TEACHER_REVIEWED"
	NotificationSupervisorReviewed  NotificationType = "SUPERVISOR_REVIEWED"
)

// NotificationEvent is a workflow event dispatched asynchronously. Delivery
// is best-effort; the triggering operation never fails on dispatch errors.
type NotificationEvent struct {
	Type        NotificationType  `json:"type"`
	RecipientID string            `json:"recipient_id"`
	ResourceID  string            `json:"resource_id"`
	Data        map[string]string `json:"data,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Notification is a delivered in-app notification row.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	Type        NotificationType `db:"type" json:"type"`
	ResourceID  string           `db:"resource_id" json:"resource_id"`
	Message     string           `db:"message" json:"message"`
	Read        bool             `db:"read" json:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
