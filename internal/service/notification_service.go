package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
)

type notificationRepository interface {
	Unread(ctx context.Context, userID string) ([]models.Notification, error)
	List(ctx context.Context, userID string, page models.PageRequest) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationService exposes a user's own notifications.
type NotificationService struct {
	repo   notificationRepository
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// Unread returns every unread notification of userID.
func (s *NotificationService) Unread(ctx context.Context, userID string) ([]models.Notification, error) {
	items, err := s.repo.Unread(ctx, userID)
	if err != nil {
		return nil, storageError(err, "failed to load notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// List returns a page of notifications with pagination metadata.
func (s *NotificationService) List(ctx context.Context, userID string, page models.PageRequest) ([]models.Notification, *models.Pagination, error) {
	page = page.Normalize()
	items, total, err := s.repo.List(ctx, userID, page)
	if err != nil {
		return nil, nil, storageError(err, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}

// MarkRead flags one of the user's notifications as read. Notifications of other users are
// reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return notFoundOr(err, "notification not found", "failed to update notification")
	}
	return nil
}

// MarkAllRead flags every unread notification of the user and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, storageError(err, "failed to update notifications")
	}
	s.logger.Debug("notifications marked read", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}
