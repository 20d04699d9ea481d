package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

// SchemeRepository manages offerings and their weighting schemes. Every mutation bumps
// offerings.scheme_version in the same transaction.
type SchemeRepository struct {
	runner *database.Runner
}

// NewSchemeRepository creates a new repository instance.
func NewSchemeRepository(runner *database.Runner) *SchemeRepository {
	return &SchemeRepository{runner: runner}
}

// FindOffering returns an offering or sql.ErrNoRows.
func (r *SchemeRepository) FindOffering(ctx context.Context, id string) (*models.Offering, error) {
	const query = `SELECT id, code, subject_name, term_name, instructor_id, scheme_version, created_at FROM offerings WHERE id = $1`
	var offering models.Offering
	if err := r.runner.Get(ctx, "offerings.find", &offering, query, id); err != nil {
		return nil, err
	}
	return &offering, nil
}

// Scheme loads the versioned scheme of an offering. Version and entries are read in one
// transaction so they always agree.
func (r *SchemeRepository) Scheme(ctx context.Context, offeringID string) (*models.EvaluationScheme, error) {
	scheme := &models.EvaluationScheme{OfferingID: offeringID}
	err := r.runner.Do(ctx, "scheme.load", func(ctx context.Context) error {
		tx, err := r.runner.DB().BeginTxx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck
		if err := tx.GetContext(ctx, &scheme.Version, `SELECT scheme_version FROM offerings WHERE id = $1`, offeringID); err != nil {
			return err
		}
		entries, err := loadEntries(ctx, tx, offeringID)
		if err != nil {
			return err
		}
		scheme.Entries = entries
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return scheme, nil
}

// SetWeight upserts the weight of a category and records an audit entry. It reports whether
// the entry was newly created.
func (r *SchemeRepository) SetWeight(ctx context.Context, offeringID, categoryID string, weight float64, audit *models.AuditEntry) (*models.SchemeEntry, bool, error) {
	var (
		entry   models.SchemeEntry
		created bool
	)
	err := r.runner.InTx(ctx, "scheme.set_weight", func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := bumpSchemeVersionTx(ctx, tx, offeringID); err != nil {
			return err
		}
		now := time.Now().UTC()
		const upsert = `INSERT INTO scheme_entries (id, offering_id, category_id, weight, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $5)
            ON CONFLICT (offering_id, category_id) DO UPDATE SET weight = EXCLUDED.weight, updated_at = EXCLUDED.updated_at
            RETURNING id, created_at, (xmax = 0) AS inserted`
		var row struct {
			ID        string    `db:"id"`
			CreatedAt time.Time `db:"created_at"`
			Inserted  bool      `db:"inserted"`
		}
		if err := tx.GetContext(ctx, &row, upsert, uuid.NewString(), offeringID, categoryID, weight, now); err != nil {
			return fmt.Errorf("upsert scheme entry: %w", err)
		}
		entry = models.SchemeEntry{
			ID:         row.ID,
			OfferingID: offeringID,
			CategoryID: categoryID,
			Weight:     weight,
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  now,
		}
		created = row.Inserted
		if audit != nil {
			audit.EntityID = entry.ID
			if audit.Action == "" {
				audit.Action = models.AuditActionEdit
				if created {
					audit.Action = models.AuditActionCreate
				}
			}
			return insertAuditTx(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &entry, created, nil
}

// RemoveWeight deletes a scheme entry. It returns ErrInUse when any enrollment of the
// offering holds a current score in that category and sql.ErrNoRows when absent. The entry is
// locked before the usage check so a concurrent Record either commits first and is seen, or
// waits and then finds the category gone.
func (r *SchemeRepository) RemoveWeight(ctx context.Context, offeringID, categoryID string, audit *models.AuditEntry) error {
	return r.runner.InTx(ctx, "scheme.remove_weight", func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := bumpSchemeVersionTx(ctx, tx, offeringID); err != nil {
			return err
		}
		var entryID string
		if err := tx.GetContext(ctx, &entryID, `SELECT id FROM scheme_entries WHERE offering_id = $1 AND category_id = $2 FOR UPDATE`, offeringID, categoryID); err != nil {
			return err
		}
		var inUse int
		err := tx.GetContext(ctx, &inUse, `SELECT 1 FROM scores s JOIN enrollments e ON e.id = s.enrollment_id
            WHERE e.offering_id = $1 AND s.category_id = $2 LIMIT 1`, offeringID, categoryID)
		switch {
		case err == nil:
			return ErrInUse
		case err != sql.ErrNoRows:
			return fmt.Errorf("check scheme entry usage: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scheme_entries WHERE id = $1`, entryID); err != nil {
			return fmt.Errorf("delete scheme entry: %w", err)
		}
		if audit != nil {
			audit.EntityID = entryID
			return insertAuditTx(ctx, tx, audit)
		}
		return nil
	})
}

func bumpSchemeVersionTx(ctx context.Context, tx *sqlx.Tx, offeringID string) (int64, error) {
	var version int64
	if err := tx.GetContext(ctx, &version, `UPDATE offerings SET scheme_version = scheme_version + 1 WHERE id = $1 RETURNING scheme_version`, offeringID); err != nil {
		return 0, err
	}
	return version, nil
}

func loadEntries(ctx context.Context, q sqlx.QueryerContext, offeringID string) ([]models.SchemeEntry, error) {
	const query = `SELECT se.id, se.offering_id, se.category_id, c.code AS category_code, c.name AS category_name, se.weight, se.created_at, se.updated_at
        FROM scheme_entries se
        JOIN evaluation_categories c ON c.id = se.category_id
        WHERE se.offering_id = $1 ORDER BY c.code`
	var entries []models.SchemeEntry
	if err := sqlx.SelectContext(ctx, q, &entries, query, offeringID); err != nil {
		return nil, fmt.Errorf("load scheme entries: %w", err)
	}
	return entries, nil
}
