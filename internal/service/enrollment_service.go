package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coursehub/course-hub-api/internal/models"
	"github.com/coursehub/course-hub-api/internal/repository"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Exists(ctx context.Context, studentID, courseID, semester string) (bool, error)
	CreateEnrolled(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, grade *string) error
	Delete(ctx context.Context, id string) error
}

type enrollmentStudentResolver interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type enrollmentInstructorResolver interface {
	FindByID(ctx context.Context, id string) (*models.InstructorDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.Instructor, error)
}

type enrollmentCourseResolver interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateEnrollmentRequest describes the enrollment payload. StudentID is
// honored for admins only; students always enroll themselves.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"omitempty,uuid"`
	CourseID  string `json:"course_id" validate:"required,uuid"`
	Semester  string `json:"semester" validate:"required,max=20"`
}

// UpdateEnrollmentStatusRequest moves an enrollment out of the enrolled
// state. Completing requires a grade; dropping forbids one.
type UpdateEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=completed dropped"`
	Grade  *string                 `json:"grade" validate:"omitempty,max=5"`
}

// EnrollmentService enforces the enrollment lifecycle rules.
type EnrollmentService struct {
	repo        enrollmentRepository
	students    enrollmentStudentResolver
	instructors enrollmentInstructorResolver
	courses     enrollmentCourseResolver
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentResolver, instructors enrollmentInstructorResolver, courses enrollmentCourseResolver, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, instructors: instructors, courses: courses, metrics: metrics, validator: validate, logger: logger}
}

// List returns enrollments scoped to what the caller may see. Students see
// their own enrollments, instructors those of their courses, admins all.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, claims *models.JWTClaims) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if filter.Status != "" && !models.ValidEnrollmentStatus(filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}

	switch claims.Role {
	case models.RoleAdmin:
	case models.RoleStudent:
		student, err := s.students.FindByUserID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []models.EnrollmentDetail{}, paginationFor(filter.Page, filter.PageSize, 0), nil
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		filter.StudentID = student.ID
	case models.RoleInstructor:
		instructor, err := s.instructors.FindByUserID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []models.EnrollmentDetail{}, paginationFor(filter.Page, filter.PageSize, 0), nil
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor profile")
		}
		filter.InstructorID = instructor.ID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Create enrolls a student into a course for a semester. Students enroll
// themselves; admins enroll any student. The capacity check and insert are
// one atomic step in the repository, so two racing requests cannot both take
// the last seat.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	studentID := req.StudentID
	switch claims.Role {
	case models.RoleStudent:
		student, err := s.students.FindByUserID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile linked to this account")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		if studentID != "" && studentID != student.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves")
		}
		studentID = student.ID
	case models.RoleAdmin:
		if studentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
		}
		if _, err := s.students.FindByID(ctx, studentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
	default:
		return nil, appErrors.ErrForbidden
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	exists, err := s.repo.Exists(ctx, studentID, req.CourseID, req.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course for the semester")
	}

	enrollment := &models.Enrollment{
		StudentID: studentID,
		CourseID:  req.CourseID,
		Semester:  req.Semester,
	}
	if err := s.repo.CreateEnrolled(ctx, enrollment); err != nil {
		switch {
		case errors.Is(err, repository.ErrCourseFull):
			s.metrics.RecordEnrollmentOutcome("capacity_rejected")
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "course has reached maximum capacity")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course for the semester")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.metrics.RecordEnrollmentOutcome("created")

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Get returns an enrollment visible to admins, the enrolled student and the
// course's instructor.
func (s *EnrollmentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	studentOwner, courseOwner, err := s.ownership(ctx, detail.StudentID, detail.CourseID)
	if err != nil {
		return nil, err
	}
	if !CanViewEnrollment(claims, studentOwner, courseOwner) {
		return nil, appErrors.ErrForbidden
	}
	return detail, nil
}

// UpdateStatus moves an enrollment out of the enrolled state. Completed and
// dropped are terminal, so only a currently enrolled record may transition.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	studentOwner, courseOwner, err := s.ownership(ctx, enrollment.StudentID, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionEnrollment(claims, req.Status, studentOwner, courseOwner) {
		return nil, appErrors.ErrForbidden
	}

	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is already "+string(enrollment.Status))
	}

	grade := req.Grade
	switch req.Status {
	case models.EnrollmentStatusCompleted:
		if grade == nil || *grade == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grade is required to complete an enrollment")
		}
	case models.EnrollmentStatusDropped:
		grade = nil
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	s.metrics.RecordEnrollmentOutcome(string(req.Status))

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Delete removes an enrollment record. Admin only; students leave a course by
// dropping, which keeps the history.
func (s *EnrollmentService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if !IsAdmin(claims) {
		return appErrors.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

// ownership resolves the account IDs that own the enrollment's student
// profile and its course, for the policy checks.
func (s *EnrollmentService) ownership(ctx context.Context, studentID, courseID string) (string, string, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	instructor, err := s.instructors.FindByID(ctx, course.InstructorID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}

	return student.UserID, instructor.UserID, nil
}
