package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/repository"
	"github.com/noah-isme/academic-records-api/pkg/database"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type enrollmentRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string, cascade bool, actor models.Actor) (*models.ScoreEvent, error)
}

type offeringReader interface {
	FindOffering(ctx context.Context, id string) (*models.Offering, error)
}

// EnrollmentService registers students in offerings and removes them again.
type EnrollmentService struct {
	repo      enrollmentRepository
	offerings offeringReader
	cache     enrollmentInvalidator
	notifier  eventDeliverer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, offerings offeringReader, cache enrollmentInvalidator, notifier eventDeliverer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, offerings: offerings, cache: cache, notifier: notifier, metrics: metrics, validator: validate, logger: logger}
}

// Enroll registers a student in an offering. A student is enrolled in an offering at most once.
func (s *EnrollmentService) Enroll(ctx context.Context, req models.CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	if _, err := s.offerings.FindOffering(ctx, req.OfferingID); err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to load offering")
	}
	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		OfferingID: req.OfferingID,
		EnrolledAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.WithField(appErrors.ErrConflict, "student_id",
				fmt.Sprintf("student %s is already enrolled in offering %s", req.StudentID, req.OfferingID))
		}
		return nil, storageError(err, "failed to create enrollment")
	}
	s.logger.Info("student enrolled", zap.String("enrollment_id", enrollment.ID), zap.String("student_id", req.StudentID), zap.String("offering_id", req.OfferingID))
	return s.Get(ctx, enrollment.ID)
}

// Get returns enrollment details by id.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	return detail, nil
}

// ListByOffering returns the enrollments of an offering.
func (s *EnrollmentService) ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.offerings.FindOffering(ctx, offeringID); err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to load offering")
	}
	items, err := s.repo.ListByOffering(ctx, offeringID)
	if err != nil {
		return nil, storageError(err, "failed to list enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return items, nil
}

// Delete removes an enrollment. One that still holds scores is only removed with cascade,
// which archives the enrollment and its scores before deleting them.
func (s *EnrollmentService) Delete(ctx context.Context, id string, cascade bool, actor models.Actor) error {
	event, err := s.repo.Delete(ctx, id, cascade, actor)
	switch {
	case errors.Is(err, repository.ErrHasScores):
		return appErrors.Clone(appErrors.ErrConflict, "enrollment has recorded scores; pass cascade=true to archive and delete them")
	case err != nil:
		return notFoundOr(err, "enrollment not found", "failed to delete enrollment")
	}

	s.metrics.RecordScoreMutation(event.Kind)
	if s.cache != nil {
		s.cache.InvalidateEnrollment(ctx, event.OfferingID, event.EnrollmentID)
	}
	if s.notifier != nil {
		if err := s.notifier.Deliver(context.WithoutCancel(ctx), *event); err != nil {
			s.metrics.RecordNotifierFailure("inline")
			s.logger.Error("enrollment event delivery failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	s.logger.Info("enrollment deleted", zap.String("enrollment_id", id), zap.Bool("cascade", cascade), zap.String("actor_id", actor.UserID))
	return nil
}
