package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type mockNotificationRepo struct {
	items []models.Notification
	page  models.PageRequest
}

func (m *mockNotificationRepo) Unread(ctx context.Context, userID string) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range m.items {
		if n.RecipientID == userID && !n.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) List(ctx context.Context, userID string, page models.PageRequest) ([]models.Notification, int, error) {
	m.page = page
	var out []models.Notification
	for _, n := range m.items {
		if n.RecipientID == userID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	for i, n := range m.items {
		if n.ID == id && n.RecipientID == userID {
			m.items[i].Read = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	var changed int64
	for i, n := range m.items {
		if n.RecipientID == userID && !n.Read {
			m.items[i].Read = true
			changed++
		}
	}
	return changed, nil
}

func TestNotificationServiceOwnership(t *testing.T) {
	repo := &mockNotificationRepo{items: []models.Notification{
		{ID: "n1", RecipientID: "stu-1"},
		{ID: "n2", RecipientID: "stu-1"},
		{ID: "n3", RecipientID: "stu-2"},
	}}
	svc := NewNotificationService(repo, zap.NewNop())
	ctx := context.Background()

	err := svc.MarkRead(ctx, "n3", "stu-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	require.NoError(t, svc.MarkRead(ctx, "n1", "stu-1"))
	unread, err := svc.Unread(ctx, "stu-1")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)

	n, err := svc.MarkAllRead(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = svc.Unread(ctx, "stu-1")
	require.NoError(t, err)
	assert.NotNil(t, unread)
	assert.Empty(t, unread)
}

func TestNotificationServiceListNormalisesPaging(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	items, pagination, err := svc.List(context.Background(), "stu-1", models.PageRequest{PageSize: 1000})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, models.MaxPageSize, repo.page.PageSize)
}
