package models

import "time"

// AuditAction constants represent mutations recorded in the audit trail.
const (
	AuditActionCreate = "CREATE"
	AuditActionEdit   = "EDIT"
	AuditActionDelete = "DELETE"
)

// Audited entity types.
const (
	EntityScore              = "Score"
	EntityEvaluationScheme   = "EvaluationScheme"
	EntityEnrollment         = "Enrollment"
	EntityEvaluationCategory = "EvaluationCategory"
)

// AuditEntry is an append-only record of a mutation.
type AuditEntry struct {
	ID          string    `db:"id" json:"id"`
	ActorID     string    `db:"actor_id" json:"actor_id"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Description string    `db:"description" json:"description"`
	Origin      string    `db:"origin" json:"origin"`
	EventID     *string   `db:"event_id" json:"event_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter scopes audit trail queries.
type AuditFilter struct {
	ActorID    string     `form:"actor_id"`
	EntityType string     `form:"entity_type"`
	EntityID   string     `form:"entity_id"`
	Action     string     `form:"action" validate:"omitempty,oneof=CREATE EDIT DELETE"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page       int        `form:"page"`
	PageSize   int        `form:"page_size"`
}
