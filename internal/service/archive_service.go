package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type archiveStore interface {
	ListByOffering(ctx context.Context, offeringID string, page models.PageRequest) ([]models.ArchivedEnrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.ArchivedEnrollment, error)
}

// ArchiveService reads snapshots of enrollments removed with their scores.
type ArchiveService struct {
	repo   archiveStore
	logger *zap.Logger
}

// NewArchiveService constructs the service.
func NewArchiveService(repo archiveStore, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{repo: repo, logger: logger}
}

// List returns a page of archive headers for an offering.
func (s *ArchiveService) List(ctx context.Context, offeringID string, page models.PageRequest) ([]models.ArchivedEnrollment, *models.Pagination, error) {
	page = page.Normalize()
	items, total, err := s.repo.ListByOffering(ctx, offeringID, page)
	if err != nil {
		return nil, nil, storageError(err, "failed to list archives")
	}
	if items == nil {
		items = []models.ArchivedEnrollment{}
	}
	return items, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}

// Get returns one archive with its decoded snapshot.
func (s *ArchiveService) Get(ctx context.Context, id string) (*models.ArchiveDetail, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "archive not found", "failed to load archive")
	}
	var snapshot models.EnrollmentSnapshot
	if err := json.Unmarshal(item.Snapshot, &snapshot); err != nil {
		s.logger.Error("corrupt archive snapshot", zap.String("archive_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "archive snapshot is unreadable")
	}
	if snapshot.Scores == nil {
		snapshot.Scores = []models.Score{}
	}
	return &models.ArchiveDetail{ArchivedEnrollment: *item, EnrollmentSnapshot: snapshot}, nil
}
