package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type outboxStore interface {
	Deliver(ctx context.Context, eventID string, notification *models.Notification, audit *models.AuditEntry) error
	MarkFailed(ctx context.Context, eventID, reason string) error
}

// NotifierService turns a committed score event into one student notification and one audit
// entry. Storage dedupes on the event id, so delivering the same event twice is harmless.
type NotifierService struct {
	outbox  outboxStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotifierService constructs the notifier.
func NewNotifierService(outbox outboxStore, metrics *MetricsService, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifierService{outbox: outbox, metrics: metrics, logger: logger}
}

// Deliver writes the notification and audit entry for event and marks it delivered. On failure
// the attempt is recorded on the event so the relay can back off after repeated errors.
func (n *NotifierService) Deliver(ctx context.Context, event models.ScoreEvent) error {
	notification, audit, err := Compose(event)
	if err != nil {
		n.markFailed(ctx, event.ID, err)
		return err
	}
	if err := n.outbox.Deliver(ctx, event.ID, notification, audit); err != nil {
		n.markFailed(ctx, event.ID, err)
		return storageError(err, "failed to deliver score event")
	}
	n.metrics.RecordOutboxDelivered()
	n.logger.Debug("score event delivered", zap.String("event_id", event.ID), zap.String("kind", string(event.Kind)))
	return nil
}

func (n *NotifierService) markFailed(ctx context.Context, eventID string, cause error) {
	if err := n.outbox.MarkFailed(ctx, eventID, cause.Error()); err != nil {
		n.logger.Warn("failed to record delivery attempt", zap.String("event_id", eventID), zap.Error(err))
	}
}

// Compose builds the notification and audit entry that represent event.
func Compose(event models.ScoreEvent) (*models.Notification, *models.AuditEntry, error) {
	eventID := event.ID
	notification := &models.Notification{RecipientID: event.StudentID, EventID: &eventID}
	audit := &models.AuditEntry{
		ActorID:    event.ActorID,
		EntityType: models.EntityScore,
		Origin:     event.Origin,
		EventID:    &eventID,
	}
	if event.ScoreID != nil {
		audit.EntityID = *event.ScoreID
	}

	switch event.Kind {
	case models.EventScoreCreated:
		value, err := eventValue(event)
		if err != nil {
			return nil, nil, err
		}
		notification.Kind = models.NotificationNewGrade
		notification.Title = fmt.Sprintf("New grade in %s", event.SubjectName)
		notification.Body = fmt.Sprintf("Your %s grade was recorded: %.2f", event.CategoryName, value)
		audit.Action = models.AuditActionCreate
		audit.Description = fmt.Sprintf("Recorded %s score %.2f in %s", event.CategoryName, value, event.SubjectName)
	case models.EventScoreUpdated:
		value, err := eventValue(event)
		if err != nil {
			return nil, nil, err
		}
		notification.Kind = models.NotificationGradeModified
		notification.Title = fmt.Sprintf("Grade modified in %s", event.SubjectName)
		notification.Body = fmt.Sprintf("Your %s grade was changed: %.2f", event.CategoryName, value)
		audit.Action = models.AuditActionEdit
		audit.Description = fmt.Sprintf("Changed %s score to %.2f in %s", event.CategoryName, value, event.SubjectName)
	case models.EventScoreRemoved:
		notification.Kind = models.NotificationGradeRemoved
		notification.Title = fmt.Sprintf("Grade removed in %s", event.SubjectName)
		notification.Body = fmt.Sprintf("Your %s grade was removed", event.CategoryName)
		audit.Action = models.AuditActionDelete
		audit.Description = fmt.Sprintf("Removed %s score in %s", event.CategoryName, event.SubjectName)
	case models.EventEnrollmentRemoved:
		notification.Kind = models.NotificationEnrollmentRemoved
		notification.Title = fmt.Sprintf("Enrollment removed in %s", event.SubjectName)
		notification.Body = fmt.Sprintf("Your enrollment in %s was removed", event.SubjectName)
		audit.Action = models.AuditActionDelete
		audit.EntityType = models.EntityEnrollment
		audit.EntityID = event.EnrollmentID
		audit.Description = fmt.Sprintf("Removed enrollment of student %s from %s", event.StudentID, event.SubjectName)
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported event kind %q", event.Kind))
	}
	return notification, audit, nil
}

func eventValue(event models.ScoreEvent) (float64, error) {
	if event.Value == nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("event %s carries no value", event.ID))
	}
	return *event.Value, nil
}
