package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
)

func TestAuditRepositoryListAppliesFilters(t *testing.T) {
	runner, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(runner)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{"id", "actor_id", "action", "entity_type", "entity_id", "description", "origin", "event_id", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries WHERE entity_type = $1 AND action = $2 AND created_at >= $3 ORDER BY created_at DESC, id LIMIT 20 OFFSET 0")).
		WithArgs(models.EntityScore, models.AuditActionDelete, from).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a-1", "t-1", "DELETE", "Score", "sc-1", "Lab grade removed", "203.0.113.7", "evt-3", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_entries WHERE entity_type = $1 AND action = $2 AND created_at >= $3")).
		WithArgs(models.EntityScore, models.AuditActionDelete, from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.List(context.Background(), models.AuditFilter{
		EntityType: models.EntityScore,
		Action:     models.AuditActionDelete,
		From:       &from,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "sc-1", entries[0].EntityID)
	require.NoError(t, mock.ExpectationsWereMet())
}
