package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type auditRepository interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error)
}

// AuditService reads the append-only audit trail.
type AuditService struct {
	repo      auditRepository
	validator *validator.Validate
}

// NewAuditService constructs the service.
func NewAuditService(repo auditRepository, validate *validator.Validate) *AuditService {
	if validate == nil {
		validate = validator.New()
	}
	return &AuditService{repo: repo, validator: validate}
}

// Trail returns entries matching filter, newest first.
func (s *AuditService) Trail(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, nil, validationError(err, "invalid audit filter")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, nil, appErrors.WithField(appErrors.ErrValidation, "to",
			fmt.Sprintf("to %s is before from %s", filter.To.Format("2006-01-02T15:04:05Z07:00"), filter.From.Format("2006-01-02T15:04:05Z07:00")))
	}
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	filter.Page, filter.PageSize = page.Page, page.PageSize

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storageError(err, "failed to list audit entries")
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}
