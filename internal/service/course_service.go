package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coursehub/course-hub-api/internal/models"
	"github.com/coursehub/course-hub-api/internal/repository"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
	"github.com/coursehub/course-hub-api/pkg/export"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseInstructorResolver interface {
	FindByID(ctx context.Context, id string) (*models.InstructorDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.Instructor, error)
}

type courseEnrollmentLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

// CatalogCache is the cache surface the catalog needs. Exported so the
// wiring in main can pass a nil interface when caching is disabled.
type CatalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const catalogCachePattern = "catalog:courses:*"

type cachedCatalogPage struct {
	Courses []models.CourseDetail `json:"courses"`
	Total   int                   `json:"total"`
}

// CreateCourseRequest describes the course creation payload. InstructorID is
// honored for admins only; instructors always create under their own profile.
type CreateCourseRequest struct {
	Title        string `json:"title" validate:"required,max=100"`
	CourseCode   string `json:"course_code" validate:"required,max=20"`
	Description  string `json:"description" validate:"max=500"`
	CreditHours  int    `json:"credit_hours" validate:"required,gt=0"`
	MaxCapacity  int    `json:"max_capacity" validate:"required,gt=0"`
	InstructorID string `json:"instructor_id" validate:"omitempty,uuid"`
}

// UpdateCourseRequest lists the patchable course fields. Course code and the
// owning instructor are fixed after creation.
type UpdateCourseRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	CreditHours *int    `json:"credit_hours" validate:"omitempty,gt=0"`
	MaxCapacity *int    `json:"max_capacity" validate:"omitempty,gt=0"`
}

// RosterExport carries rendered roster bytes plus the metadata the transport
// layer needs to serve them as a download.
type RosterExport struct {
	Content     []byte
	ContentType string
	Filename    string
}

// CourseService orchestrates the course catalog.
type CourseService struct {
	repo        courseRepository
	instructors courseInstructorResolver
	enrollments courseEnrollmentLister
	cache       CatalogCache
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cacheTTL    time.Duration
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService. A nil cache disables catalog
// caching entirely.
func NewCourseService(repo courseRepository, instructors courseInstructorResolver, enrollments courseEnrollmentLister, cache CatalogCache, cacheTTL time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{
		repo:        repo,
		instructors: instructors,
		enrollments: enrollments,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// List returns the course catalog, served from cache when possible.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	key := catalogCacheKey(filter)
	if s.cache != nil {
		var page cachedCatalogPage
		if err := s.cache.Get(ctx, key, &page); err == nil {
			s.metrics.RecordCacheLookup(true)
			return page.Courses, paginationFor(filter.Page, filter.PageSize, page.Total), nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedCatalogPage{Courses: courses, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return courses, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a course with instructor and enrollment info.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course to the catalog. Instructors always own what they
// create; admins may create on behalf of any instructor.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest, claims *models.JWTClaims) (*models.CourseDetail, error) {
	if claims == nil || (claims.Role != models.RoleAdmin && claims.Role != models.RoleInstructor) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	instructorID := req.InstructorID
	if claims.Role == models.RoleInstructor {
		profile, err := s.instructors.FindByUserID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "no instructor profile linked to this account")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor profile")
		}
		instructorID = profile.ID
	} else {
		if instructorID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "instructor_id is required")
		}
		if _, err := s.instructors.FindByID(ctx, instructorID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
		}
	}

	taken, err := s.repo.ExistsByCode(ctx, req.CourseCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course_code already exists")
	}

	course := &models.Course{
		Title:        req.Title,
		CourseCode:   req.CourseCode,
		Description:  req.Description,
		CreditHours:  req.CreditHours,
		MaxCapacity:  req.MaxCapacity,
		InstructorID: instructorID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course_code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	return s.Get(ctx, course.ID)
}

// Update patches the whitelisted course fields for admins and the owning
// instructor. Shrinking capacity below the current enrolled count is allowed;
// it only blocks further enrollments.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest, claims *models.JWTClaims) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	ownerUserID, err := s.courseOwnerUserID(ctx, course.InstructorID)
	if err != nil {
		return nil, err
	}
	if !CanManageCourse(claims, ownerUserID) {
		return nil, appErrors.ErrForbidden
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.CreditHours != nil {
		course.CreditHours = *req.CreditHours
	}
	if req.MaxCapacity != nil {
		course.MaxCapacity = *req.MaxCapacity
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	return s.Get(ctx, course.ID)
}

// Delete removes a course and its enrollments for admins and the owning
// instructor.
func (s *CourseService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	ownerUserID, err := s.courseOwnerUserID(ctx, course.InstructorID)
	if err != nil {
		return err
	}
	if !CanManageCourse(claims, ownerUserID) {
		return appErrors.ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateCatalog(ctx)
	return nil
}

// ListEnrollments returns the roster for admins and the owning instructor.
func (s *CourseService) ListEnrollments(ctx context.Context, id string, claims *models.JWTClaims) ([]models.EnrollmentDetail, error) {
	if _, err := s.authorizeRosterAccess(ctx, id, claims); err != nil {
		return nil, err
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ExportRoster renders the course roster as CSV or PDF for admins and the
// owning instructor.
func (s *CourseService) ExportRoster(ctx context.Context, id, format string, claims *models.JWTClaims) (*RosterExport, error) {
	course, err := s.authorizeRosterAccess(ctx, id, claims)
	if err != nil {
		return nil, err
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	table := export.Table{
		Headers: []string{"Student Code", "Student Name", "Semester", "Status", "Grade", "Enrolled At"},
	}
	for _, e := range enrollments {
		grade := ""
		if e.Grade != nil {
			grade = *e.Grade
		}
		table.Rows = append(table.Rows, []string{
			e.StudentCode,
			e.StudentName,
			e.Semester,
			string(e.Status),
			grade,
			e.EnrolledAt.Format("2006-01-02"),
		})
	}

	switch format {
	case "", "csv":
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return &RosterExport{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("roster-%s.csv", course.CourseCode),
		}, nil
	case "pdf":
		content, err := s.pdf.Render(table, fmt.Sprintf("%s roster", course.CourseCode))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return &RosterExport{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("roster-%s.pdf", course.CourseCode),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *CourseService) authorizeRosterAccess(ctx context.Context, id string, claims *models.JWTClaims) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	ownerUserID, err := s.courseOwnerUserID(ctx, course.InstructorID)
	if err != nil {
		return nil, err
	}
	if !CanManageCourse(claims, ownerUserID) {
		return nil, appErrors.ErrForbidden
	}
	return course, nil
}

func (s *CourseService) courseOwnerUserID(ctx context.Context, instructorID string) (string, error) {
	instructor, err := s.instructors.FindByID(ctx, instructorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	return instructor.UserID, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, catalogCachePattern); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func catalogCacheKey(filter models.CourseFilter) string {
	return fmt.Sprintf("catalog:courses:%s:%s:%d:%d", filter.InstructorID, filter.Search, filter.Page, filter.PageSize)
}
