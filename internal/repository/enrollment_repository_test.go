package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/course-hub-api/internal/models"
)

func TestEnrollmentRepositoryCreateEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2")).
		WithArgs("c-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "s-1", CourseID: "c-1", Semester: "2026-fall"}
	require.NoError(t, repo.CreateEnrolled(context.Background(), enrollment))
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.Nil(t, enrollment.Grade)
	require.NotEmpty(t, enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateEnrolledCourseFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2")).
		WithArgs("c-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	err := repo.CreateEnrolled(context.Background(), &models.Enrollment{StudentID: "s-1", CourseID: "c-1", Semester: "2026-fall"})
	require.True(t, errors.Is(err, ErrCourseFull))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateEnrolledDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2")).
		WithArgs("c-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.CreateEnrolled(context.Background(), &models.Enrollment{StudentID: "s-1", CourseID: "c-1", Semester: "2026-fall"})
	require.True(t, errors.Is(err, ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND semester = $3 LIMIT 1")).
		WithArgs("s-1", "c-1", "2026-fall").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "s-1", "c-1", "2026-fall")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "grade", "semester", "enrolled_at", "status", "student_name", "student_code", "course_title", "course_code"}).
		AddRow("e-1", "s-1", "c-1", nil, "2026-fall", time.Now(), models.EnrollmentStatusEnrolled, "Ada Lovelace", "S-100", "Databases", "CS301")
	mock.ExpectQuery("SELECT (.+) FROM enrollments e").
		WithArgs("s-1").
		WillReturnRows(rows)

	enrollments, err := repo.ListByStudent(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "CS301", enrollments[0].CourseCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	grade := "A"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, grade = $3 WHERE id = $1")).
		WithArgs("e-1", models.EnrollmentStatusCompleted, &grade).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "e-1", models.EnrollmentStatusCompleted, &grade))
	require.NoError(t, mock.ExpectationsWereMet())
}
