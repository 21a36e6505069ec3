package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coursehub/course-hub-api/internal/models"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type mockCourseRepo struct {
	courses    map[string]*models.Course
	codeTaken  bool
	listCalls  int
	deleted    []string
	lastUpdate *models.Course
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	m.listCalls++
	var details []models.CourseDetail
	for _, c := range m.courses {
		details = append(details, models.CourseDetail{Course: *c})
	}
	return details, len(details), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	if c, ok := m.courses[id]; ok {
		return &models.CourseDetail{Course: *c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	return m.codeTaken, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "new-course"
	}
	if m.courses == nil {
		m.courses = make(map[string]*models.Course)
	}
	m.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	m.lastUpdate = course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockRosterLister struct {
	enrollments []models.EnrollmentDetail
}

func (m *mockRosterLister) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return m.enrollments, nil
}

type mockCatalogCache struct {
	store       map[string][]byte
	invalidated int
}

func (m *mockCatalogCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCatalogCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	m.store[key] = raw
	return nil
}

func (m *mockCatalogCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated++
	m.store = nil
	return nil
}

func newCourseFixture(cache CatalogCache) (*mockCourseRepo, *mockInstructorResolver, *CourseService) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		testCourseID: {ID: testCourseID, Title: "Databases", CourseCode: "CS301", CreditHours: 3, MaxCapacity: 30, InstructorID: testInstructorID},
	}}
	instructors := &mockInstructorResolver{instructors: map[string]*models.InstructorDetail{
		testInstructorID: {Instructor: models.Instructor{ID: testInstructorID, UserID: "u-ins"}},
	}}
	roster := &mockRosterLister{}
	svc := NewCourseService(repo, instructors, roster, cache, time.Minute, nil, validator.New(), zap.NewNop())
	return repo, instructors, svc
}

func TestCourseServiceCreateInstructorOwnsCourse(t *testing.T) {
	repo, _, svc := newCourseFixture(nil)

	// An instructor's instructor_id hint is ignored; they create under their
	// own profile.
	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Title:        "Algorithms",
		CourseCode:   "CS401",
		CreditHours:  3,
		MaxCapacity:  25,
		InstructorID: "44444444-4444-4444-4444-444444444444",
	}, claimsFor(models.RoleInstructor, "u-ins"))
	require.NoError(t, err)
	assert.Equal(t, testInstructorID, course.InstructorID)
	assert.Len(t, repo.courses, 2)
}

func TestCourseServiceCreateAdminRequiresInstructor(t *testing.T) {
	_, _, svc := newCourseFixture(nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Title:       "Algorithms",
		CourseCode:  "CS401",
		CreditHours: 3,
		MaxCapacity: 25,
	}, claimsFor(models.RoleAdmin, "u-admin"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	repo, _, svc := newCourseFixture(nil)
	repo.codeTaken = true

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Title:       "Algorithms",
		CourseCode:  "CS301",
		CreditHours: 3,
		MaxCapacity: 25,
	}, claimsFor(models.RoleInstructor, "u-ins"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateOwnershipEnforced(t *testing.T) {
	repo, instructors, svc := newCourseFixture(nil)
	instructors.instructors["other"] = &models.InstructorDetail{Instructor: models.Instructor{ID: "other", UserID: "u-other"}}

	title := "Advanced Databases"
	_, err := svc.Update(context.Background(), testCourseID, UpdateCourseRequest{Title: &title}, claimsFor(models.RoleInstructor, "u-other"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	course, err := svc.Update(context.Background(), testCourseID, UpdateCourseRequest{Title: &title}, claimsFor(models.RoleInstructor, "u-ins"))
	require.NoError(t, err)
	assert.Equal(t, "Advanced Databases", course.Title)
	// Course code stays fixed through updates.
	assert.Equal(t, "CS301", repo.lastUpdate.CourseCode)
}

func TestCourseServiceListUsesCache(t *testing.T) {
	cache := &mockCatalogCache{}
	repo, _, svc := newCourseFixture(cache)

	_, _, err := svc.List(context.Background(), models.CourseFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	// Second identical read is served from cache.
	_, _, err = svc.List(context.Background(), models.CourseFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCourseServiceMutationsInvalidateCache(t *testing.T) {
	cache := &mockCatalogCache{}
	_, _, svc := newCourseFixture(cache)

	title := "Renamed"
	_, err := svc.Update(context.Background(), testCourseID, UpdateCourseRequest{Title: &title}, claimsFor(models.RoleAdmin, "u-admin"))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	require.NoError(t, svc.Delete(context.Background(), testCourseID, claimsFor(models.RoleAdmin, "u-admin")))
	assert.Equal(t, 2, cache.invalidated)
}

func TestCourseServiceExportRosterCSV(t *testing.T) {
	repo, instructors, _ := newCourseFixture(nil)
	grade := "A"
	roster := &mockRosterLister{enrollments: []models.EnrollmentDetail{
		{
			Enrollment:  models.Enrollment{Status: models.EnrollmentStatusCompleted, Grade: &grade, Semester: "2026-fall", EnrolledAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
			StudentName: "Ada Lovelace",
			StudentCode: "S-100",
		},
	}}
	svc := NewCourseService(repo, instructors, roster, nil, time.Minute, nil, validator.New(), zap.NewNop())

	export, err := svc.ExportRoster(context.Background(), testCourseID, "csv", claimsFor(models.RoleInstructor, "u-ins"))
	require.NoError(t, err)
	assert.Equal(t, "text/csv", export.ContentType)
	assert.Equal(t, "roster-CS301.csv", export.Filename)
	content := string(export.Content)
	assert.True(t, strings.HasPrefix(content, "Student Code,Student Name,Semester,Status,Grade,Enrolled At"))
	assert.Contains(t, content, "S-100,Ada Lovelace,2026-fall,completed,A,2026-08-20")
}

func TestCourseServiceExportRosterForbidden(t *testing.T) {
	_, instructors, svc := newCourseFixture(nil)
	instructors.instructors["other"] = &models.InstructorDetail{Instructor: models.Instructor{ID: "other", UserID: "u-other"}}

	_, err := svc.ExportRoster(context.Background(), testCourseID, "csv", claimsFor(models.RoleInstructor, "u-other"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.ExportRoster(context.Background(), testCourseID, "docx", claimsFor(models.RoleAdmin, "u-admin"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
