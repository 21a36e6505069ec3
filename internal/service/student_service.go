package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/coursehub/course-hub-api/internal/models"
	"github.com/coursehub/course-hub-api/internal/repository"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type accountChecker interface {
	ConflictingField(ctx context.Context, username, email, excludeID string) (string, error)
}

type studentEnrollmentLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// CreateStudentRequest creates a linked account and profile in one step.
type CreateStudentRequest struct {
	Username       string `json:"username" validate:"required,min=3,max=50"`
	Email          string `json:"email" validate:"required,email"`
	FullName       string `json:"full_name" validate:"required,max=50"`
	Age            int    `json:"age" validate:"required,gt=0"`
	StudentCode    string `json:"student_code" validate:"required,max=20"`
	EnrollmentYear int    `json:"enrollment_year" validate:"required,gte=1900"`
}

// CreateStudentResponse returns the profile plus the generated one-time
// password for the new account.
type CreateStudentResponse struct {
	Student         models.StudentDetail `json:"student"`
	InitialPassword string               `json:"initial_password"`
}

// UpdateStudentRequest lists the patchable profile fields. The student code
// identifies the student externally and is not patchable.
type UpdateStudentRequest struct {
	FullName       *string `json:"full_name" validate:"omitempty,max=50"`
	Age            *int    `json:"age" validate:"omitempty,gt=0"`
	EnrollmentYear *int    `json:"enrollment_year" validate:"omitempty,gte=1900"`
}

// StudentService orchestrates student profile management.
type StudentService struct {
	repo        studentRepository
	accounts    accountChecker
	enrollments studentEnrollmentLister
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, accounts accountChecker, enrollments studentEnrollmentLister, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, accounts: accounts, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns student profiles with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Create registers a student account and profile atomically. Admin only.
// The generated password is returned once and never stored in plaintext.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest, claims *models.JWTClaims) (*CreateStudentResponse, error) {
	if !IsAdmin(claims) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	field, err := s.accounts.ConflictingField(ctx, req.Username, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check account uniqueness")
	}
	if field != "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, field+" already exists")
	}

	taken, err := s.repo.ExistsByCode(ctx, req.StudentCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student_code already exists")
	}

	password, err := generatePassword()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
	}
	student := &models.Student{
		FullName:       req.FullName,
		Age:            req.Age,
		StudentCode:    req.StudentCode,
		EnrollmentYear: req.EnrollmentYear,
	}
	if err := s.repo.CreateWithUser(ctx, user, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "account or student code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	detail := models.StudentDetail{Student: *student, Username: user.Username, Email: user.Email}
	return &CreateStudentResponse{Student: detail, InitialPassword: password}, nil
}

// Get returns a profile visible to admins and the owning account.
func (s *StudentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !CanAccessAccount(claims, student.UserID) {
		return nil, appErrors.ErrForbidden
	}
	return student, nil
}

// Update patches the whitelisted profile fields for admins and the owner.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest, claims *models.JWTClaims) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !CanAccessAccount(claims, detail.UserID) {
		return nil, appErrors.ErrForbidden
	}

	student := detail.Student
	if req.FullName != nil {
		student.FullName = *req.FullName
	}
	if req.Age != nil {
		student.Age = *req.Age
	}
	if req.EnrollmentYear != nil {
		student.EnrollmentYear = *req.EnrollmentYear
	}

	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	detail.Student = student
	return detail, nil
}

// Delete removes the profile and its enrollments. Admin only.
func (s *StudentService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if !IsAdmin(claims) {
		return appErrors.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// ListEnrollments returns a student's enrollments for admins and the owner.
// The student's courses are always a projection of this set.
func (s *StudentService) ListEnrollments(ctx context.Context, id string, claims *models.JWTClaims) ([]models.EnrollmentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !CanAccessAccount(claims, student.UserID) {
		return nil, appErrors.ErrForbidden
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

func generatePassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
