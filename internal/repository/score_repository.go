package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

// ScoreWrite carries a validated score mutation into storage.
type ScoreWrite struct {
	EnrollmentID string
	CategoryID   string
	Value        float64
	Note         *string
	Actor        models.Actor
}

// ScoreWriteResult reports the committed state of a mutation and the event it produced.
type ScoreWriteResult struct {
	Score   models.Score
	Created bool
	Event   models.ScoreEvent
}

// ScoreRepository stores current scores and their append-only history.
type ScoreRepository struct {
	runner *database.Runner
}

// NewScoreRepository constructs the repository.
func NewScoreRepository(runner *database.Runner) *ScoreRepository {
	return &ScoreRepository{runner: runner}
}

type enrollmentStamp struct {
	EnrollmentID string `db:"id"`
	Revision     int64  `db:"score_revision"`
	StudentID    string `db:"student_id"`
	OfferingID   string `db:"offering_id"`
	SubjectName  string `db:"subject_name"`
}

// bumpRevisionTx increments the enrollment's score revision, locking the row for the rest of
// the transaction. Score writers for one enrollment therefore serialise on it.
func bumpRevisionTx(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*enrollmentStamp, error) {
	const query = `UPDATE enrollments e SET score_revision = e.score_revision + 1
        FROM offerings o
        WHERE e.id = $1 AND o.id = e.offering_id
        RETURNING e.id, e.score_revision, e.student_id, e.offering_id, o.subject_name`
	var stamp enrollmentStamp
	if err := tx.GetContext(ctx, &stamp, query, enrollmentID); err != nil {
		return nil, err
	}
	return &stamp, nil
}

// Record updates the current score for (enrollment, category) or inserts one, appends a
// history row and an outbox event. A missing enrollment returns sql.ErrNoRows and a category
// outside the offering scheme returns ErrNotInScheme.
func (r *ScoreRepository) Record(ctx context.Context, w ScoreWrite) (*ScoreWriteResult, error) {
	var result ScoreWriteResult
	err := r.runner.InTx(ctx, "scores.record", func(ctx context.Context, tx *sqlx.Tx) error {
		result = ScoreWriteResult{}
		stamp, err := bumpRevisionTx(ctx, tx, w.EnrollmentID)
		if err != nil {
			return err
		}
		// The shared lock keeps RemoveWeight from dropping the category until this commits.
		var categoryName string
		err = tx.GetContext(ctx, &categoryName, `SELECT c.name FROM scheme_entries se
            JOIN evaluation_categories c ON c.id = se.category_id
            WHERE se.offering_id = $1 AND se.category_id = $2 FOR SHARE OF se`, stamp.OfferingID, w.CategoryID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotInScheme
		}
		if err != nil {
			return fmt.Errorf("lock scheme entry: %w", err)
		}

		now := time.Now().UTC()
		var current models.Score
		err = tx.GetContext(ctx, &current, `SELECT id, enrollment_id, category_id, value, note, recorded_by, created_at, updated_at
            FROM scores WHERE enrollment_id = $1 AND category_id = $2 FOR UPDATE`, w.EnrollmentID, w.CategoryID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			current = models.Score{
				ID:           uuid.NewString(),
				EnrollmentID: w.EnrollmentID,
				CategoryID:   w.CategoryID,
				Value:        w.Value,
				Note:         w.Note,
				RecordedBy:   w.Actor.UserID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO scores (id, enrollment_id, category_id, value, note, recorded_by, created_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				current.ID, current.EnrollmentID, current.CategoryID, current.Value, current.Note, current.RecordedBy, current.CreatedAt, current.UpdatedAt); err != nil {
				return fmt.Errorf("insert score: %w", err)
			}
			result.Created = true
		case err != nil:
			return fmt.Errorf("lock score: %w", err)
		default:
			current.Value, current.Note, current.RecordedBy, current.UpdatedAt = w.Value, w.Note, w.Actor.UserID, now
			if _, err := tx.ExecContext(ctx, `UPDATE scores SET value = $2, note = $3, recorded_by = $4, updated_at = $5 WHERE id = $1`,
				current.ID, current.Value, current.Note, current.RecordedBy, current.UpdatedAt); err != nil {
				return fmt.Errorf("update score: %w", err)
			}
		}
		current.CategoryName = categoryName

		action, kind := models.RevisionUpdate, models.EventScoreUpdated
		if result.Created {
			action, kind = models.RevisionCreate, models.EventScoreCreated
		}
		if err := insertRevisionTx(ctx, tx, &current, action, stamp.Revision); err != nil {
			return err
		}

		value := current.Value
		result.Score = current
		result.Event = newEvent(kind, stamp, w.Actor)
		result.Event.ScoreID = &current.ID
		result.Event.CategoryID = &current.CategoryID
		result.Event.CategoryName = categoryName
		result.Event.Value = &value
		return insertEventTx(ctx, tx, &result.Event)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Remove deletes the current score, appending a DELETE history row that keeps the last value
// and an outbox event. A missing score returns sql.ErrNoRows and writes nothing.
func (r *ScoreRepository) Remove(ctx context.Context, scoreID string, actor models.Actor) (*ScoreWriteResult, error) {
	var result ScoreWriteResult
	err := r.runner.InTx(ctx, "scores.remove", func(ctx context.Context, tx *sqlx.Tx) error {
		result = ScoreWriteResult{}
		var enrollmentID string
		if err := tx.GetContext(ctx, &enrollmentID, `SELECT enrollment_id FROM scores WHERE id = $1`, scoreID); err != nil {
			return err
		}
		stamp, err := bumpRevisionTx(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}

		var removed models.Score
		if err := tx.GetContext(ctx, &removed, `DELETE FROM scores s USING evaluation_categories c
            WHERE s.id = $1 AND c.id = s.category_id
            RETURNING s.id, s.enrollment_id, s.category_id, c.name AS category_name, s.value, s.note, s.recorded_by, s.created_at, s.updated_at`,
			scoreID); err != nil {
			return err
		}
		removed.RecordedBy = actor.UserID
		if err := insertRevisionTx(ctx, tx, &removed, models.RevisionDelete, stamp.Revision); err != nil {
			return err
		}

		value := removed.Value
		result.Score = removed
		result.Event = newEvent(models.EventScoreRemoved, stamp, actor)
		result.Event.ScoreID = &removed.ID
		result.Event.CategoryID = &removed.CategoryID
		result.Event.CategoryName = removed.CategoryName
		result.Event.Value = &value
		return insertEventTx(ctx, tx, &result.Event)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Current returns the current scores of an enrollment ordered by category code.
func (r *ScoreRepository) Current(ctx context.Context, enrollmentID string) ([]models.Score, error) {
	const query = `SELECT s.id, s.enrollment_id, s.category_id, c.name AS category_name, s.value, s.note, s.recorded_by, s.created_at, s.updated_at
        FROM scores s
        JOIN evaluation_categories c ON c.id = s.category_id
        WHERE s.enrollment_id = $1 ORDER BY c.code`
	var scores []models.Score
	if err := r.runner.Select(ctx, "scores.current", &scores, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list current scores: %w", err)
	}
	return scores, nil
}

// History returns every revision of an enrollment's scores in commit order.
func (r *ScoreRepository) History(ctx context.Context, enrollmentID string) ([]models.ScoreRevision, error) {
	const query = `SELECT h.id, h.score_id, h.enrollment_id, h.category_id, COALESCE(c.name, '') AS category_name, h.value, h.note,
            h.recorded_by, h.action, h.revision, h.recorded_at
        FROM score_history h
        LEFT JOIN evaluation_categories c ON c.id = h.category_id
        WHERE h.enrollment_id = $1 ORDER BY h.revision, h.recorded_at, h.id`
	var revisions []models.ScoreRevision
	if err := r.runner.Select(ctx, "scores.history", &revisions, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list score history: %w", err)
	}
	return revisions, nil
}

// FindByID returns a current score or sql.ErrNoRows.
func (r *ScoreRepository) FindByID(ctx context.Context, id string) (*models.Score, error) {
	const query = `SELECT s.id, s.enrollment_id, s.category_id, c.name AS category_name, s.value, s.note, s.recorded_by, s.created_at, s.updated_at
        FROM scores s
        JOIN evaluation_categories c ON c.id = s.category_id
        WHERE s.id = $1`
	var score models.Score
	if err := r.runner.Get(ctx, "scores.find", &score, query, id); err != nil {
		return nil, err
	}
	return &score, nil
}

func insertRevisionTx(ctx context.Context, tx sqlx.ExecerContext, s *models.Score, action models.RevisionAction, revision int64) error {
	const query = `INSERT INTO score_history (id, score_id, enrollment_id, category_id, value, note, recorded_by, action, revision, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, query,
		uuid.NewString(), s.ID, s.EnrollmentID, s.CategoryID, s.Value, s.Note, s.RecordedBy, action, revision, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert score revision: %w", err)
	}
	return nil
}

func newEvent(kind models.ScoreEventKind, stamp *enrollmentStamp, actor models.Actor) models.ScoreEvent {
	return models.ScoreEvent{
		ID:           uuid.NewString(),
		Kind:         kind,
		EnrollmentID: stamp.EnrollmentID,
		StudentID:    stamp.StudentID,
		OfferingID:   stamp.OfferingID,
		SubjectName:  stamp.SubjectName,
		ActorID:      actor.UserID,
		Origin:       actor.Origin,
		CreatedAt:    time.Now().UTC(),
	}
}
