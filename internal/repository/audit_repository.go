package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

const auditColumns = `id, actor_id, action, entity_type, entity_id, description, origin, event_id, created_at`

// AuditRepository reads and appends audit entries. Rows are never updated or deleted.
type AuditRepository struct {
	runner *database.Runner
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(runner *database.Runner) *AuditRepository {
	return &AuditRepository{runner: runner}
}

// List returns entries matching the filter, newest first, with the total count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	var conditions []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM audit_entries%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		auditColumns, clause, page.PageSize, page.Offset())

	var entries []models.AuditEntry
	if err := r.runner.Select(ctx, "audit.list", &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	var total int
	if err := r.runner.Get(ctx, "audit.count", &total, "SELECT COUNT(*) FROM audit_entries"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	return entries, total, nil
}

// insertAuditTx appends an entry. An entry carrying an event id already recorded is skipped,
// which keeps outbox redelivery from duplicating the trail.
func insertAuditTx(ctx context.Context, tx sqlx.ExecerContext, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_entries (` + auditColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (event_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID,
		entry.Description, entry.Origin, entry.EventID, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
