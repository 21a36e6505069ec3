package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestStudentRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	// Create path: no id exclusion.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE student_code = $1 LIMIT 1")).
		WithArgs("S-100").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	taken, err := repo.ExistsByCode(context.Background(), "S-100", "")
	require.NoError(t, err)
	require.True(t, taken)

	// Update path skips the record being changed.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE student_code = $1 AND id <> $2 LIMIT 1")).
		WithArgs("S-100", "s-1").
		WillReturnError(sql.ErrNoRows)
	taken, err = repo.ExistsByCode(context.Background(), "S-100", "s-1")
	require.NoError(t, err)
	require.False(t, taken)

	require.NoError(t, mock.ExpectationsWereMet())
}
