package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

const categoryColumns = `id, code, name, description, created_at, updated_at`

// CategoryRepository persists the evaluation category catalog.
type CategoryRepository struct {
	runner *database.Runner
}

// NewCategoryRepository creates a new repository instance.
func NewCategoryRepository(runner *database.Runner) *CategoryRepository {
	return &CategoryRepository{runner: runner}
}

// List returns the whole catalog ordered by code.
func (r *CategoryRepository) List(ctx context.Context) ([]models.EvaluationCategory, error) {
	query := `SELECT ` + categoryColumns + ` FROM evaluation_categories ORDER BY code`
	var categories []models.EvaluationCategory
	if err := r.runner.Select(ctx, "categories.list", &categories, query); err != nil {
		return nil, err
	}
	return categories, nil
}

// FindByID returns a category or sql.ErrNoRows.
func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*models.EvaluationCategory, error) {
	query := `SELECT ` + categoryColumns + ` FROM evaluation_categories WHERE id = $1`
	var category models.EvaluationCategory
	if err := r.runner.Get(ctx, "categories.find", &category, query, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// Create inserts a catalog entry. Duplicate codes surface as a unique violation.
func (r *CategoryRepository) Create(ctx context.Context, category *models.EvaluationCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	category.CreatedAt, category.UpdatedAt = now, now
	const query = `INSERT INTO evaluation_categories (id, code, name, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.runner.Exec(ctx, "categories.create", query,
		category.ID, category.Code, category.Name, category.Description, category.CreatedAt, category.UpdatedAt)
	return err
}

// Rename updates name and description unless a scheme references the category. The check
// and the update share one statement so a concurrent SetWeight cannot slip between them.
func (r *CategoryRepository) Rename(ctx context.Context, id, name string, description *string) error {
	const query = `UPDATE evaluation_categories SET name = $2, description = $3, updated_at = $4
        WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM scheme_entries WHERE category_id = $1)`
	affected, err := r.runner.Exec(ctx, "categories.rename", query, id, name, description, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	referenced, err := r.IsReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return ErrInUse
	}
	return sql.ErrNoRows
}

// IsReferenced reports whether any scheme entry uses the category.
func (r *CategoryRepository) IsReferenced(ctx context.Context, id string) (bool, error) {
	var exists int
	err := r.runner.Get(ctx, "categories.referenced", &exists, `SELECT 1 FROM scheme_entries WHERE category_id = $1 LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
