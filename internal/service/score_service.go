package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/grading"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/repository"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type scoreRepository interface {
	Record(ctx context.Context, w repository.ScoreWrite) (*repository.ScoreWriteResult, error)
	Remove(ctx context.Context, scoreID string, actor models.Actor) (*repository.ScoreWriteResult, error)
	Current(ctx context.Context, enrollmentID string) ([]models.Score, error)
	History(ctx context.Context, enrollmentID string) ([]models.ScoreRevision, error)
}

type enrollmentReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type schemeReader interface {
	Scheme(ctx context.Context, offeringID string) (*models.EvaluationScheme, error)
}

type enrollmentInvalidator interface {
	InvalidateEnrollment(ctx context.Context, offeringID, enrollmentID string)
}

type eventDeliverer interface {
	Deliver(ctx context.Context, event models.ScoreEvent) error
}

// ScoreService records and removes current scores. Every committed mutation is followed by
// an inline notifier delivery; the outbox relay covers deliveries that fail here.
type ScoreService struct {
	scores      scoreRepository
	enrollments enrollmentReader
	schemes     schemeReader
	cache       enrollmentInvalidator
	notifier    eventDeliverer
	metrics     *MetricsService
	policy      grading.Policy
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewScoreService constructs the service.
func NewScoreService(scores scoreRepository, enrollments enrollmentReader, schemes schemeReader, cache enrollmentInvalidator, notifier eventDeliverer, metrics *MetricsService, policy grading.Policy, validate *validator.Validate, logger *zap.Logger) *ScoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreService{
		scores:      scores,
		enrollments: enrollments,
		schemes:     schemes,
		cache:       cache,
		notifier:    notifier,
		metrics:     metrics,
		policy:      policy,
		validator:   validate,
		logger:      logger,
	}
}

// ValidateValue checks a value against the configured bound without writing anything.
func (s *ScoreService) ValidateValue(value float64) (*models.ScoreValidation, error) {
	result := &models.ScoreValidation{Value: value, Min: s.policy.MinScore, Max: s.policy.MaxScore}
	if err := s.checkRange(value); err != nil {
		return result, err
	}
	result.Value = grading.Round2(value)
	result.Valid = true
	return result, nil
}

func (s *ScoreService) checkRange(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || !s.policy.InRange(value) {
		return appErrors.WithField(appErrors.ErrOutOfRange, "value",
			fmt.Sprintf("value %v is outside [%.2f, %.2f]", value, s.policy.MinScore, s.policy.MaxScore))
	}
	return nil
}

// RecordScore creates or replaces the current score of (enrollment, category).
func (s *ScoreService) RecordScore(ctx context.Context, req models.RecordScoreRequest, actor models.Actor) (*models.RecordScoreResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid score payload")
	}
	if err := s.checkRange(*req.Value); err != nil {
		return nil, err
	}
	// scores.value is NUMERIC(4,2); round here so the response, the event and the row agree.
	value := grading.Round2(*req.Value)

	enrollment, err := s.enrollments.FindDetailByID(ctx, req.EnrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	scheme, err := s.schemes.Scheme(ctx, enrollment.OfferingID)
	if err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to load scheme")
	}
	if _, ok := scheme.Entry(req.CategoryID); !ok {
		return nil, unknownCategory(req.CategoryID, enrollment.OfferingCode)
	}

	result, err := s.scores.Record(ctx, repository.ScoreWrite{
		EnrollmentID: req.EnrollmentID,
		CategoryID:   req.CategoryID,
		Value:        value,
		Note:         req.Note,
		Actor:        actor,
	})
	switch {
	case errors.Is(err, repository.ErrNotInScheme):
		return nil, unknownCategory(req.CategoryID, enrollment.OfferingCode)
	case err != nil:
		return nil, notFoundOr(err, "enrollment not found", "failed to record score")
	}

	s.afterCommit(ctx, result.Event)
	s.logger.Info("score recorded",
		zap.String("score_id", result.Score.ID),
		zap.String("enrollment_id", req.EnrollmentID),
		zap.String("category_id", req.CategoryID),
		zap.Float64("value", value),
		zap.Bool("created", result.Created),
		zap.String("actor_id", actor.UserID),
	)
	score := result.Score
	return &models.RecordScoreResult{Score: &score, Created: result.Created}, nil
}

// RemoveScore deletes a current score. A missing score writes nothing and notifies nobody.
func (s *ScoreService) RemoveScore(ctx context.Context, scoreID string, actor models.Actor) error {
	result, err := s.scores.Remove(ctx, scoreID, actor)
	if err != nil {
		return notFoundOr(err, "score not found", "failed to remove score")
	}
	s.afterCommit(ctx, result.Event)
	s.logger.Info("score removed", zap.String("score_id", scoreID), zap.String("enrollment_id", result.Event.EnrollmentID), zap.String("actor_id", actor.UserID))
	return nil
}

// afterCommit runs the post-commit side effects. None of them can fail the mutation.
func (s *ScoreService) afterCommit(ctx context.Context, event models.ScoreEvent) {
	s.metrics.RecordScoreMutation(event.Kind)
	if s.cache != nil {
		s.cache.InvalidateEnrollment(ctx, event.OfferingID, event.EnrollmentID)
	}
	if s.notifier == nil {
		return
	}
	// The caller going away must not abort a delivery for an already committed write.
	if err := s.notifier.Deliver(context.WithoutCancel(ctx), event); err != nil {
		s.metrics.RecordNotifierFailure("inline")
		s.logger.Error("score event delivery failed",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Int("attempt", event.Attempts+1),
			zap.Error(err),
		)
	}
}

// CurrentScores returns a restartable sequence over the enrollment's current scores.
func (s *ScoreService) CurrentScores(ctx context.Context, enrollmentID string) (models.ScoreSeq, error) {
	if _, err := s.enrollments.FindDetailByID(ctx, enrollmentID); err != nil {
		return models.ScoreSeq{}, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	scores, err := s.scores.Current(ctx, enrollmentID)
	if err != nil {
		return models.ScoreSeq{}, storageError(err, "failed to load scores")
	}
	return models.NewScoreSeq(toCategoryScores(scores)), nil
}

// History lists every revision of an enrollment's scores, oldest first.
func (s *ScoreService) History(ctx context.Context, enrollmentID string) ([]models.ScoreRevision, error) {
	if _, err := s.enrollments.FindDetailByID(ctx, enrollmentID); err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	history, err := s.scores.History(ctx, enrollmentID)
	if err != nil {
		return nil, storageError(err, "failed to load score history")
	}
	if history == nil {
		history = []models.ScoreRevision{}
	}
	return history, nil
}

func unknownCategory(categoryID, offeringCode string) error {
	return appErrors.WithField(appErrors.ErrUnknownCategory, "category_id",
		fmt.Sprintf("category %s is not part of the %s scheme", categoryID, offeringCode))
}

func toCategoryScores(scores []models.Score) []models.CategoryScore {
	out := make([]models.CategoryScore, 0, len(scores))
	for _, sc := range scores {
		out = append(out, models.CategoryScore{CategoryID: sc.CategoryID, CategoryName: sc.CategoryName, Value: sc.Value})
	}
	return out
}
