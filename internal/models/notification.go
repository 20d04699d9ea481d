package models

import "time"

// NotificationKind classifies a student notification.
type NotificationKind string

const (
	NotificationNewGrade          NotificationKind = "NEW_GRADE"
	NotificationGradeModified     NotificationKind = "GRADE_MODIFIED"
	NotificationGradeRemoved      NotificationKind = "GRADE_REMOVED"
	NotificationEnrollmentRemoved NotificationKind = "ENROLLMENT_REMOVED"
)

// Notification is a message addressed to one user. Only Read ever changes.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	Kind        NotificationKind `db:"kind" json:"kind"`
	Title       string           `db:"title" json:"title"`
	Body        string           `db:"body" json:"body"`
	Read        bool             `db:"read" json:"read"`
	EventID     *string          `db:"event_id" json:"event_id,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
