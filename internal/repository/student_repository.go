package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coursehub/course-hub-api/internal/models"
)

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `s.id, s.full_name, s.age, s.student_code, s.enrollment_year, s.user_id, u.username, u.email`

// List returns student profiles with account info.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s JOIN users u ON u.id = s.user_id`
	var conditions []string
	var args []interface{}

	if filter.EnrollmentYear != nil {
		conditions = append(conditions, fmt.Sprintf("s.enrollment_year = $%d", len(args)+1))
		args = append(args, *filter.EnrollmentYear)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.student_code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY s.full_name ASC LIMIT %d OFFSET %d", studentColumns, base+clause, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student profile with account info.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM students s JOIN users u ON u.id = s.user_id WHERE s.id = $1", studentColumns)
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &student, nil
}

// FindByUserID returns the profile owned by the given account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	const query = `SELECT id, full_name, age, student_code, enrollment_year, user_id FROM students WHERE user_id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by user id: %w", err)
	}
	return &student, nil
}

// ExistsByCode checks whether the external student code is taken.
func (r *StudentRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := `SELECT 1 FROM students WHERE student_code = $1`
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student code: %w", err)
	}
	return true, nil
}

// CreateWithUser inserts the account and its profile atomically.
func (r *StudentRepository) CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.UserID = user.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const userQuery = `INSERT INTO users (id, username, email, password_hash, role, created_at) VALUES (:id, :username, :email, :password_hash, :role, :created_at)`
	if _, err := tx.NamedExecContext(ctx, userQuery, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create student account: %w", ErrDuplicate)
		}
		return fmt.Errorf("create student account: %w", err)
	}

	const studentQuery = `INSERT INTO students (id, full_name, age, student_code, enrollment_year, user_id) VALUES (:id, :full_name, :age, :student_code, :enrollment_year, :user_id)`
	if _, err := tx.NamedExecContext(ctx, studentQuery, student); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create student profile: %w", ErrDuplicate)
		}
		return fmt.Errorf("create student profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// Update changes the patchable profile fields. The student code is part of
// the student's external identity and never changes here.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET full_name = :full_name, age = :age, enrollment_year = :enrollment_year WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes the profile and its enrollments in one transaction. The
// owning account survives; deleting accounts is the user repository's job.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete student: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete student enrollments: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete student: %w", err)
	}
	return nil
}
