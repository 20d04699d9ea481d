package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.offering_id, e.enrolled_at, e.score_revision,
        o.code AS offering_code, o.subject_name, o.term_name, o.scheme_version
        FROM enrollments e
        JOIN offerings o ON o.id = e.offering_id`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	runner *database.Runner
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(runner *database.Runner) *EnrollmentRepository {
	return &EnrollmentRepository{runner: runner}
}

// FindDetailByID returns an enrollment with offering info, or sql.ErrNoRows.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var detail models.EnrollmentDetail
	if err := r.runner.Get(ctx, "enrollments.find", &detail, enrollmentDetailSelect+` WHERE e.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByOffering returns every enrollment of an offering ordered by enrollment time.
func (r *EnrollmentRepository) ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error) {
	var items []models.EnrollmentDetail
	if err := r.runner.Select(ctx, "enrollments.by_offering", &items, enrollmentDetailSelect+` WHERE e.offering_id = $1 ORDER BY e.enrolled_at, e.id`, offeringID); err != nil {
		return nil, fmt.Errorf("list offering enrollments: %w", err)
	}
	return items, nil
}

// ListByStudent returns every enrollment of a student.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	var items []models.EnrollmentDetail
	if err := r.runner.Select(ctx, "enrollments.by_student", &items, enrollmentDetailSelect+` WHERE e.student_id = $1 ORDER BY o.term_name, o.code`, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return items, nil
}

// ListAll returns every enrollment, used by institution-wide reports.
func (r *EnrollmentRepository) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	var items []models.EnrollmentDetail
	if err := r.runner.Select(ctx, "enrollments.all", &items, enrollmentDetailSelect+` ORDER BY o.code, e.enrolled_at, e.id`); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return items, nil
}

// Create persists a new enrollment. Duplicates surface as a unique violation.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, offering_id, enrolled_at, score_revision) VALUES ($1, $2, $3, $4, 0)`
	if _, err := r.runner.Exec(ctx, "enrollments.create", query, enrollment.ID, enrollment.StudentID, enrollment.OfferingID, enrollment.EnrolledAt); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment. When it still holds scores and cascade is false, ErrHasScores
// is returned and nothing changes. With cascade the enrollment and its scores are first
// archived as a JSON snapshot and then deleted, in the same transaction that appends the
// ENROLLMENT_REMOVED event.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string, cascade bool, actor models.Actor) (*models.ScoreEvent, error) {
	var event models.ScoreEvent
	err := r.runner.InTx(ctx, "enrollments.delete", func(ctx context.Context, tx *sqlx.Tx) error {
		var detail models.EnrollmentDetail
		if err := tx.GetContext(ctx, &detail, enrollmentDetailSelect+` WHERE e.id = $1 FOR UPDATE OF e`, id); err != nil {
			return err
		}

		var scores []models.Score
		if err := tx.SelectContext(ctx, &scores, `SELECT id, enrollment_id, category_id, value, note, recorded_by, created_at, updated_at
            FROM scores WHERE enrollment_id = $1 ORDER BY category_id FOR UPDATE`, id); err != nil {
			return fmt.Errorf("lock enrollment scores: %w", err)
		}
		if len(scores) > 0 && !cascade {
			return ErrHasScores
		}

		if len(scores) > 0 {
			if err := archiveTx(ctx, tx, detail, scores, actor); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE enrollment_id = $1`, id); err != nil {
				return fmt.Errorf("delete enrollment scores: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}

		event = newEvent(models.EventEnrollmentRemoved, &enrollmentStamp{
			EnrollmentID: detail.ID,
			StudentID:    detail.StudentID,
			OfferingID:   detail.OfferingID,
			SubjectName:  detail.SubjectName,
		}, actor)
		return insertEventTx(ctx, tx, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func archiveTx(ctx context.Context, tx *sqlx.Tx, detail models.EnrollmentDetail, scores []models.Score, actor models.Actor) error {
	snapshot, err := json.Marshal(models.EnrollmentSnapshot{Enrollment: detail, Scores: scores})
	if err != nil {
		return fmt.Errorf("marshal enrollment snapshot: %w", err)
	}
	const query = `INSERT INTO enrollment_archives (id, enrollment_id, student_id, offering_id, snapshot, archived_by, archived_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, query,
		uuid.NewString(), detail.ID, detail.StudentID, detail.OfferingID, snapshot, actor.UserID, time.Now().UTC()); err != nil {
		return fmt.Errorf("archive enrollment: %w", err)
	}
	return nil
}
