package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type mockArchiveStore struct {
	items map[string]models.ArchivedEnrollment
}

func (m mockArchiveStore) ListByOffering(ctx context.Context, offeringID string, page models.PageRequest) ([]models.ArchivedEnrollment, int, error) {
	var out []models.ArchivedEnrollment
	for _, item := range m.items {
		if item.OfferingID == offeringID {
			out = append(out, item)
		}
	}
	return out, len(out), nil
}

func (m mockArchiveStore) FindByID(ctx context.Context, id string) (*models.ArchivedEnrollment, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func TestArchiveServiceGetDecodesSnapshot(t *testing.T) {
	svc := NewArchiveService(mockArchiveStore{items: map[string]models.ArchivedEnrollment{
		"arc-1": {ID: "arc-1", EnrollmentID: "enr-1", OfferingID: "phy",
			Snapshot: []byte(`{"enrollment":{"id":"enr-1","student_id":"stu-1","subject_name":"Physics"},"scores":[{"id":"s1","category_id":"exam","value":4.5}]}`)},
		"arc-2": {ID: "arc-2", OfferingID: "phy", Snapshot: []byte(`{not json`)},
	}}, nil)
	ctx := context.Background()

	detail, err := svc.Get(ctx, "arc-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", detail.Enrollment.StudentID)
	require.Len(t, detail.Scores, 1)
	assert.Equal(t, 4.5, detail.Scores[0].Value)

	_, err = svc.Get(ctx, "arc-2")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	_, err = svc.Get(ctx, "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	items, pagination, err := svc.List(ctx, "bio", models.PageRequest{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Equal(t, 0, pagination.TotalCount)
}
