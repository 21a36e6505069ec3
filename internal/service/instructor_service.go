package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/coursehub/course-hub-api/internal/models"
	"github.com/coursehub/course-hub-api/internal/repository"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type instructorRepository interface {
	List(ctx context.Context, filter models.InstructorFilter) ([]models.InstructorDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.InstructorDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.Instructor, error)
	CreateWithUser(ctx context.Context, user *models.User, instructor *models.Instructor) error
	Update(ctx context.Context, instructor *models.Instructor) error
	Delete(ctx context.Context, id string) error
}

type instructorCourseLister interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
}

// CreateInstructorRequest creates a linked account and profile in one step.
type CreateInstructorRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email"`
	FullName  string `json:"full_name" validate:"required,max=50"`
	Specialty string `json:"specialty" validate:"required,max=100"`
}

// CreateInstructorResponse returns the profile plus the generated one-time
// password for the new account.
type CreateInstructorResponse struct {
	Instructor      models.InstructorDetail `json:"instructor"`
	InitialPassword string                  `json:"initial_password"`
}

// UpdateInstructorRequest lists the patchable profile fields.
type UpdateInstructorRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=50"`
	Specialty *string `json:"specialty" validate:"omitempty,max=100"`
}

// InstructorService orchestrates instructor profile management.
type InstructorService struct {
	repo      instructorRepository
	accounts  accountChecker
	courses   instructorCourseLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInstructorService constructs InstructorService.
func NewInstructorService(repo instructorRepository, accounts accountChecker, courses instructorCourseLister, validate *validator.Validate, logger *zap.Logger) *InstructorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructorService{repo: repo, accounts: accounts, courses: courses, validator: validate, logger: logger}
}

// List returns instructor profiles with pagination metadata.
func (s *InstructorService) List(ctx context.Context, filter models.InstructorFilter) ([]models.InstructorDetail, *models.Pagination, error) {
	instructors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructors")
	}
	return instructors, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Create registers an instructor account and profile atomically. Admin only.
func (s *InstructorService) Create(ctx context.Context, req CreateInstructorRequest, claims *models.JWTClaims) (*CreateInstructorResponse, error) {
	if !IsAdmin(claims) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}

	field, err := s.accounts.ConflictingField(ctx, req.Username, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check account uniqueness")
	}
	if field != "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, field+" already exists")
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
		Role:         models.RoleInstructor,
	}
	instructor := &models.Instructor{
		FullName:  req.FullName,
		Specialty: req.Specialty,
	}
	if err := s.repo.CreateWithUser(ctx, user, instructor); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username or email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instructor")
	}

	detail := models.InstructorDetail{Instructor: *instructor, Username: user.Username, Email: user.Email}
	return &CreateInstructorResponse{Instructor: detail, InitialPassword: password}, nil
}

// Get returns a profile visible to admins and the owning account.
func (s *InstructorService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.InstructorDetail, error) {
	instructor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if !CanAccessAccount(claims, instructor.UserID) {
		return nil, appErrors.ErrForbidden
	}
	return instructor, nil
}

// Update patches the whitelisted profile fields for admins and the owner.
func (s *InstructorService) Update(ctx context.Context, id string, req UpdateInstructorRequest, claims *models.JWTClaims) (*models.InstructorDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if !CanAccessAccount(claims, detail.UserID) {
		return nil, appErrors.ErrForbidden
	}

	instructor := detail.Instructor
	if req.FullName != nil {
		instructor.FullName = *req.FullName
	}
	if req.Specialty != nil {
		instructor.Specialty = *req.Specialty
	}

	if err := s.repo.Update(ctx, &instructor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instructor")
	}
	detail.Instructor = instructor
	return detail, nil
}

// Delete removes the profile, its courses and their enrollments. Admin only.
func (s *InstructorService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if !IsAdmin(claims) {
		return appErrors.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete instructor")
	}
	return nil
}

// ListCourses returns the courses taught by the instructor. The catalog is
// readable by any authenticated caller, so this is too.
func (s *InstructorService) ListCourses(ctx context.Context, id string) ([]models.CourseDetail, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}

	courses, _, err := s.courses.List(ctx, models.CourseFilter{InstructorID: id, Page: 1, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}
