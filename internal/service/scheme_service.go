package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/grading"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/repository"
	"github.com/noah-isme/academic-records-api/pkg/database"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

// MaxWeight is the largest weight scheme_entries.weight (NUMERIC(6,3)) can hold.
const MaxWeight = 999.999

type schemeRepository interface {
	FindOffering(ctx context.Context, id string) (*models.Offering, error)
	Scheme(ctx context.Context, offeringID string) (*models.EvaluationScheme, error)
	SetWeight(ctx context.Context, offeringID, categoryID string, weight float64, audit *models.AuditEntry) (*models.SchemeEntry, bool, error)
	RemoveWeight(ctx context.Context, offeringID, categoryID string, audit *models.AuditEntry) error
}

type categoryRepository interface {
	List(ctx context.Context) ([]models.EvaluationCategory, error)
	FindByID(ctx context.Context, id string) (*models.EvaluationCategory, error)
	Create(ctx context.Context, category *models.EvaluationCategory) error
	Rename(ctx context.Context, id, name string, description *string) error
}

type offeringInvalidator interface {
	InvalidateOffering(ctx context.Context, offeringID string)
}

// SchemeService manages the category catalog and per-offering weighting schemes.
type SchemeService struct {
	schemes    schemeRepository
	categories categoryRepository
	cache      offeringInvalidator
	policy     grading.Policy
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSchemeService constructs the service.
func NewSchemeService(schemes schemeRepository, categories categoryRepository, cache offeringInvalidator, policy grading.Policy, validate *validator.Validate, logger *zap.Logger) *SchemeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemeService{schemes: schemes, categories: categories, cache: cache, policy: policy, validator: validate, logger: logger}
}

// SetWeight assigns a percentage to a category within an offering, inserting or replacing the
// entry. The total is not required to reach 100; an incomplete scheme only keeps aggregates
// pending.
func (s *SchemeService) SetWeight(ctx context.Context, offeringID, categoryID string, percent float64, actor models.Actor) (*models.SchemeEntry, error) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) || percent < 0 {
		return nil, appErrors.WithField(appErrors.ErrInvalidWeight, "weight", fmt.Sprintf("weight %v must be a non-negative number", percent))
	}
	if percent > MaxWeight {
		return nil, appErrors.WithField(appErrors.ErrInvalidWeight, "weight", fmt.Sprintf("weight %v exceeds the maximum of %v", percent, MaxWeight))
	}
	offering, err := s.schemes.FindOffering(ctx, offeringID)
	if err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to load offering")
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return nil, notFoundOr(err, "category not found", "failed to load category")
	}

	audit := &models.AuditEntry{
		ActorID:     actor.UserID,
		EntityType:  models.EntityEvaluationScheme,
		Description: fmt.Sprintf("Weight of %s in %s set to %.2f%%", category.Name, offering.Code, percent),
		Origin:      actor.Origin,
	}
	entry, created, err := s.schemes.SetWeight(ctx, offeringID, categoryID, percent, audit)
	if err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to set weight")
	}
	entry.CategoryCode = category.Code
	entry.CategoryName = category.Name

	if s.cache != nil {
		s.cache.InvalidateOffering(ctx, offeringID)
	}
	s.logger.Info("scheme weight set",
		zap.String("offering_id", offeringID),
		zap.String("category_id", categoryID),
		zap.Float64("weight", percent),
		zap.Bool("created", created),
		zap.String("actor_id", actor.UserID),
	)
	return entry, nil
}

// RemoveWeight drops a category from an offering's scheme. It is refused while any enrollment
// of the offering holds a current score in that category.
func (s *SchemeService) RemoveWeight(ctx context.Context, offeringID, categoryID string, actor models.Actor) error {
	audit := &models.AuditEntry{
		ActorID:     actor.UserID,
		Action:      models.AuditActionDelete,
		EntityType:  models.EntityEvaluationScheme,
		Description: fmt.Sprintf("Category %s removed from offering %s", categoryID, offeringID),
		Origin:      actor.Origin,
	}
	err := s.schemes.RemoveWeight(ctx, offeringID, categoryID, audit)
	switch {
	case errors.Is(err, repository.ErrInUse):
		return appErrors.WithField(appErrors.ErrConflict, "category_id", "category still has recorded scores in this offering")
	case err != nil:
		return notFoundOr(err, "scheme entry not found", "failed to remove weight")
	}
	if s.cache != nil {
		s.cache.InvalidateOffering(ctx, offeringID)
	}
	s.logger.Info("scheme weight removed", zap.String("offering_id", offeringID), zap.String("category_id", categoryID), zap.String("actor_id", actor.UserID))
	return nil
}

// Scheme returns the versioned scheme value of an offering.
func (s *SchemeService) Scheme(ctx context.Context, offeringID string) (*models.EvaluationScheme, error) {
	scheme, err := s.schemes.Scheme(ctx, offeringID)
	if err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to load scheme")
	}
	if scheme.Entries == nil {
		scheme.Entries = []models.SchemeEntry{}
	}
	return scheme, nil
}

// WeightsFor returns category id to percentage for an offering.
func (s *SchemeService) WeightsFor(ctx context.Context, offeringID string) (map[string]float64, error) {
	scheme, err := s.Scheme(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	return scheme.Weights(), nil
}

// IsComplete reports whether the offering's weights sum to 100 within tolerance.
func (s *SchemeService) IsComplete(ctx context.Context, offeringID string) (bool, error) {
	scheme, err := s.Scheme(ctx, offeringID)
	if err != nil {
		return false, err
	}
	return scheme.IsComplete(s.policy.WeightEpsilon), nil
}

// View bundles the scheme with derived totals for the scheme endpoint.
func (s *SchemeService) View(ctx context.Context, offeringID string) (*models.SchemeView, error) {
	scheme, err := s.Scheme(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	return &models.SchemeView{
		OfferingID:  scheme.OfferingID,
		Version:     scheme.Version,
		Entries:     scheme.Entries,
		Weights:     scheme.Weights(),
		TotalWeight: grading.Round2(scheme.TotalWeight()),
		Complete:    scheme.IsComplete(s.policy.WeightEpsilon),
	}, nil
}

// ListCategories returns the catalog.
func (s *SchemeService) ListCategories(ctx context.Context) ([]models.EvaluationCategory, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, storageError(err, "failed to list categories")
	}
	return categories, nil
}

// CreateCategory adds a catalog entry. Codes are unique and stored upper-case.
func (s *SchemeService) CreateCategory(ctx context.Context, req models.CreateCategoryRequest) (*models.EvaluationCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid category payload")
	}
	category := &models.EvaluationCategory{
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	if err := s.categories.Create(ctx, category); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.WithField(appErrors.ErrConflict, "code", fmt.Sprintf("category code %s already exists", category.Code))
		}
		return nil, storageError(err, "failed to create category")
	}
	return category, nil
}

// RenameCategory changes the name of a category that no scheme references yet.
func (s *SchemeService) RenameCategory(ctx context.Context, id string, req models.RenameCategoryRequest) (*models.EvaluationCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid category payload")
	}
	err := s.categories.Rename(ctx, id, strings.TrimSpace(req.Name), req.Description)
	if errors.Is(err, repository.ErrInUse) {
		return nil, appErrors.Clone(appErrors.ErrCategoryInUse, "category is referenced by a scheme and can no longer be renamed")
	}
	if err != nil {
		return nil, notFoundOr(err, "category not found", "failed to rename category")
	}
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "category not found", "failed to load category")
	}
	return category, nil
}
