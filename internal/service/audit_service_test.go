package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type mockAuditRepo struct {
	filter models.AuditFilter
}

func (m *mockAuditRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	m.filter = filter
	return []models.AuditEntry{{ID: "a1", Action: models.AuditActionCreate}}, 1, nil
}

func TestAuditServiceTrail(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, nil)

	entries, pagination, err := svc.Trail(context.Background(), models.AuditFilter{EntityType: models.EntityScore})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, models.DefaultPageSize, pagination.PageSize)
	assert.Equal(t, models.DefaultPageSize, repo.filter.PageSize)
}

func TestAuditServiceTrailValidation(t *testing.T) {
	svc := NewAuditService(&mockAuditRepo{}, nil)

	_, _, err := svc.Trail(context.Background(), models.AuditFilter{Action: "UPSERT"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, _, err = svc.Trail(context.Background(), models.AuditFilter{From: &from, To: &to})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "to", appErr.Field)
}
