package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

const notificationColumns = `id, recipient_id, kind, title, body, read, event_id, created_at`

// NotificationRepository stores per-user notifications.
type NotificationRepository struct {
	runner *database.Runner
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(runner *database.Runner) *NotificationRepository {
	return &NotificationRepository{runner: runner}
}

// Unread returns all unread notifications of a user, newest first.
func (r *NotificationRepository) Unread(ctx context.Context, userID string) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1 AND read = FALSE ORDER BY created_at DESC, id`
	var items []models.Notification
	if err := r.runner.Select(ctx, "notifications.unread", &items, query, userID); err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	return items, nil
}

// List returns a page of a user's notifications and the total count.
func (r *NotificationRepository) List(ctx context.Context, userID string, page models.PageRequest) ([]models.Notification, int, error) {
	page = page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		notificationColumns, page.PageSize, page.Offset())
	var items []models.Notification
	if err := r.runner.Select(ctx, "notifications.list", &items, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	var total int
	if err := r.runner.Get(ctx, "notifications.count", &total, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead flags one notification owned by userID. It returns sql.ErrNoRows when the
// notification does not exist or belongs to someone else.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	affected, err := r.runner.Exec(ctx, "notifications.mark_read", `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead flags every unread notification of a user and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	affected, err := r.runner.Exec(ctx, "notifications.mark_all_read", `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return affected, nil
}

// insertNotificationTx stores a notification unless one already exists for the same event.
func insertNotificationTx(ctx context.Context, tx sqlx.ExecerContext, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (` + notificationColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (event_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, n.ID, n.RecipientID, n.Kind, n.Title, n.Body, n.Read, n.EventID, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
