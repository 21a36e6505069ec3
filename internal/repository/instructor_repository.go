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

// InstructorRepository handles persistence of instructor profiles.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository constructs the repository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

const instructorColumns = `i.id, i.full_name, i.specialty, i.user_id, u.username, u.email`

// List returns instructor profiles with account info.
func (r *InstructorRepository) List(ctx context.Context, filter models.InstructorFilter) ([]models.InstructorDetail, int, error) {
	base := `FROM instructors i JOIN users u ON u.id = i.user_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(i.full_name) LIKE $%d OR LOWER(i.specialty) LIKE $%d)", len(args)+1, len(args)+1))
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY i.full_name ASC LIMIT %d OFFSET %d", instructorColumns, base+clause, size, offset)

	var instructors []models.InstructorDetail
	if err := r.db.SelectContext(ctx, &instructors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list instructors: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count instructors: %w", err)
	}
	return instructors, total, nil
}

// FindByID returns an instructor profile with account info.
func (r *InstructorRepository) FindByID(ctx context.Context, id string) (*models.InstructorDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM instructors i JOIN users u ON u.id = i.user_id WHERE i.id = $1", instructorColumns)
	var instructor models.InstructorDetail
	if err := r.db.GetContext(ctx, &instructor, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find instructor by id: %w", err)
	}
	return &instructor, nil
}

// FindByUserID returns the profile owned by the given account.
func (r *InstructorRepository) FindByUserID(ctx context.Context, userID string) (*models.Instructor, error) {
	const query = `SELECT id, full_name, specialty, user_id FROM instructors WHERE user_id = $1 LIMIT 1`
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find instructor by user id: %w", err)
	}
	return &instructor, nil
}

// CreateWithUser inserts the account and its profile atomically.
func (r *InstructorRepository) CreateWithUser(ctx context.Context, user *models.User, instructor *models.Instructor) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if instructor.ID == "" {
		instructor.ID = uuid.NewString()
	}
	instructor.UserID = user.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create instructor: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const userQuery = `INSERT INTO users (id, username, email, password_hash, role, created_at) VALUES (:id, :username, :email, :password_hash, :role, :created_at)`
	if _, err := tx.NamedExecContext(ctx, userQuery, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create instructor account: %w", ErrDuplicate)
		}
		return fmt.Errorf("create instructor account: %w", err)
	}

	const instructorQuery = `INSERT INTO instructors (id, full_name, specialty, user_id) VALUES (:id, :full_name, :specialty, :user_id)`
	if _, err := tx.NamedExecContext(ctx, instructorQuery, instructor); err != nil {
		return fmt.Errorf("create instructor profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create instructor: %w", err)
	}
	return nil
}

// Update changes the patchable profile fields.
func (r *InstructorRepository) Update(ctx context.Context, instructor *models.Instructor) error {
	const query = `UPDATE instructors SET full_name = :full_name, specialty = :specialty WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, instructor); err != nil {
		return fmt.Errorf("update instructor: %w", err)
	}
	return nil
}

// Delete removes the profile, its courses and those courses' enrollments in
// one transaction.
func (r *InstructorRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete instructor: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE course_id IN (SELECT id FROM courses WHERE instructor_id = $1)`, id); err != nil {
		return fmt.Errorf("delete instructor course enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE instructor_id = $1`, id); err != nil {
		return fmt.Errorf("delete instructor courses: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM instructors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instructor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete instructor rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete instructor: %w", err)
	}
	return nil
}
