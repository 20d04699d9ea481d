package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/database"
)

const archiveColumns = `id, enrollment_id, student_id, offering_id, snapshot, archived_by, archived_at`

// ArchiveRepository reads enrollment archives written by cascade deletes. Rows are never
// updated or deleted.
type ArchiveRepository struct {
	runner *database.Runner
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(runner *database.Runner) *ArchiveRepository {
	return &ArchiveRepository{runner: runner}
}

// ListByOffering returns a page of archives of one offering, newest first.
func (r *ArchiveRepository) ListByOffering(ctx context.Context, offeringID string, page models.PageRequest) ([]models.ArchivedEnrollment, int, error) {
	page = page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM enrollment_archives WHERE offering_id = $1 ORDER BY archived_at DESC, id LIMIT %d OFFSET %d`,
		archiveColumns, page.PageSize, page.Offset())
	var items []models.ArchivedEnrollment
	if err := r.runner.Select(ctx, "archives.by_offering", &items, query, offeringID); err != nil {
		return nil, 0, fmt.Errorf("list enrollment archives: %w", err)
	}
	var total int
	if err := r.runner.Get(ctx, "archives.count", &total, `SELECT COUNT(*) FROM enrollment_archives WHERE offering_id = $1`, offeringID); err != nil {
		return nil, 0, fmt.Errorf("count enrollment archives: %w", err)
	}
	return items, total, nil
}

// FindByID returns one archive including its raw snapshot.
func (r *ArchiveRepository) FindByID(ctx context.Context, id string) (*models.ArchivedEnrollment, error) {
	var item models.ArchivedEnrollment
	if err := r.runner.Get(ctx, "archives.find", &item, `SELECT `+archiveColumns+` FROM enrollment_archives WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &item, nil
}
