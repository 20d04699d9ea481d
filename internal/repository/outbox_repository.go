package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

const eventColumns = `id, kind, score_id, enrollment_id, student_id, offering_id, category_id, category_name,
        subject_name, value, actor_id, origin, attempts, last_error, delivered_at, created_at`

// OutboxRepository reads and settles score events written by mutation transactions.
type OutboxRepository struct {
	runner *database.Runner
}

// NewOutboxRepository constructs the repository.
func NewOutboxRepository(runner *database.Runner) *OutboxRepository {
	return &OutboxRepository{runner: runner}
}

// Pending returns undelivered events below the attempt limit, oldest first.
func (r *OutboxRepository) Pending(ctx context.Context, limit, maxAttempts int) ([]models.ScoreEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM score_events
        WHERE delivered_at IS NULL AND attempts < $1
        ORDER BY created_at, id LIMIT $2`
	var events []models.ScoreEvent
	if err := r.runner.Select(ctx, "outbox.pending", &events, query, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	return events, nil
}

// Backlog counts undelivered events.
func (r *OutboxRepository) Backlog(ctx context.Context) (int, error) {
	var n int
	if err := r.runner.Get(ctx, "outbox.backlog", &n, `SELECT COUNT(*) FROM score_events WHERE delivered_at IS NULL`); err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return n, nil
}

// Deliver writes the notification and audit entry for an event and marks it delivered, all
// in one transaction. Redelivering the same event is a no-op for both logs.
func (r *OutboxRepository) Deliver(ctx context.Context, eventID string, notification *models.Notification, audit *models.AuditEntry) error {
	return r.runner.InTx(ctx, "outbox.deliver", func(ctx context.Context, tx *sqlx.Tx) error {
		if notification != nil {
			if err := insertNotificationTx(ctx, tx, notification); err != nil {
				return err
			}
		}
		if audit != nil {
			if err := insertAuditTx(ctx, tx, audit); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE score_events SET delivered_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`,
			eventID, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark event delivered: %w", err)
		}
		return nil
	})
}

// MarkFailed records a failed delivery attempt.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID, reason string) error {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	if _, err := r.runner.Exec(ctx, "outbox.mark_failed", `UPDATE score_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, eventID, reason); err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

func insertEventTx(ctx context.Context, tx sqlx.ExecerContext, event *models.ScoreEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO score_events (id, kind, score_id, enrollment_id, student_id, offering_id, category_id,
            category_name, subject_name, value, actor_id, origin, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := tx.ExecContext(ctx, query,
		event.ID, event.Kind, event.ScoreID, event.EnrollmentID, event.StudentID, event.OfferingID, event.CategoryID,
		event.CategoryName, event.SubjectName, event.Value, event.ActorID, event.Origin, event.CreatedAt); err != nil {
		return fmt.Errorf("insert score event: %w", err)
	}
	return nil
}
