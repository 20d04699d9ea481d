package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryRepositoryRenameRefusedWhenReferenced(t *testing.T) {
	runner, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCategoryRepository(runner)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluation_categories SET name = $2")).
		WithArgs("exam", "Final exam", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM scheme_entries WHERE category_id = $1")).
		WithArgs("exam").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := repo.Rename(context.Background(), "exam", "Final exam", nil)
	assert.ErrorIs(t, err, ErrInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepositoryRenameMissing(t *testing.T) {
	runner, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCategoryRepository(runner)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluation_categories")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM scheme_entries")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	err := repo.Rename(context.Background(), "ghost", "x", nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
