package models

import "time"

// ScoreEventKind names the committed mutation carried by an outbox event.
type ScoreEventKind string

const (
	EventScoreCreated      ScoreEventKind = "SCORE_CREATED"
	EventScoreUpdated      ScoreEventKind = "SCORE_UPDATED"
	EventScoreRemoved      ScoreEventKind = "SCORE_REMOVED"
	EventEnrollmentRemoved ScoreEventKind = "ENROLLMENT_REMOVED"
)

// ScoreEvent is written in the same transaction as the mutation it describes and delivered
// to the notifier at least once.
type ScoreEvent struct {
	ID           string         `db:"id" json:"id"`
	Kind         ScoreEventKind `db:"kind" json:"kind"`
	ScoreID      *string        `db:"score_id" json:"score_id,omitempty"`
	EnrollmentID string         `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	OfferingID   string         `db:"offering_id" json:"offering_id"`
	CategoryID   *string        `db:"category_id" json:"category_id,omitempty"`
	CategoryName string         `db:"category_name" json:"category_name"`
	SubjectName  string         `db:"subject_name" json:"subject_name"`
	Value        *float64       `db:"value" json:"value,omitempty"`
	ActorID      string         `db:"actor_id" json:"actor_id"`
	Origin       string         `db:"origin" json:"origin"`
	Attempts     int            `db:"attempts" json:"attempts"`
	LastError    *string        `db:"last_error" json:"last_error,omitempty"`
	DeliveredAt  *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
