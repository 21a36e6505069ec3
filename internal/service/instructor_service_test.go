package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coursehub/course-hub-api/internal/models"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type mockInstructorRepo struct {
	instructors map[string]*models.InstructorDetail
	lastUpdate  *models.Instructor
	deleted     []string
}

func (m *mockInstructorRepo) List(ctx context.Context, filter models.InstructorFilter) ([]models.InstructorDetail, int, error) {
	var list []models.InstructorDetail
	for _, i := range m.instructors {
		list = append(list, *i)
	}
	return list, len(list), nil
}

func (m *mockInstructorRepo) FindByID(ctx context.Context, id string) (*models.InstructorDetail, error) {
	if i, ok := m.instructors[id]; ok {
		copied := *i
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockInstructorRepo) FindByUserID(ctx context.Context, userID string) (*models.Instructor, error) {
	for _, i := range m.instructors {
		if i.UserID == userID {
			instructor := i.Instructor
			return &instructor, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockInstructorRepo) CreateWithUser(ctx context.Context, user *models.User, instructor *models.Instructor) error {
	if user.ID == "" {
		user.ID = "new-user"
	}
	if instructor.ID == "" {
		instructor.ID = "new-instructor"
	}
	instructor.UserID = user.ID
	if m.instructors == nil {
		m.instructors = make(map[string]*models.InstructorDetail)
	}
	m.instructors[instructor.ID] = &models.InstructorDetail{Instructor: *instructor, Username: user.Username, Email: user.Email}
	return nil
}

func (m *mockInstructorRepo) Update(ctx context.Context, instructor *models.Instructor) error {
	m.lastUpdate = instructor
	if i, ok := m.instructors[instructor.ID]; ok {
		i.Instructor = *instructor
	}
	return nil
}

func (m *mockInstructorRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.instructors[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.instructors, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockInstructorCourses struct {
	courses    []models.CourseDetail
	lastFilter models.CourseFilter
}

func (m *mockInstructorCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	m.lastFilter = filter
	return m.courses, len(m.courses), nil
}

func newInstructorFixture() (*mockInstructorRepo, *mockInstructorCourses, *InstructorService) {
	repo := &mockInstructorRepo{instructors: map[string]*models.InstructorDetail{
		testInstructorID: {Instructor: models.Instructor{ID: testInstructorID, FullName: "Edsger Dijkstra", Specialty: "Algorithms", UserID: "u-ins"}},
	}}
	courses := &mockInstructorCourses{}
	svc := NewInstructorService(repo, &mockAccountChecker{}, courses, validator.New(), zap.NewNop())
	return repo, courses, svc
}

func TestInstructorServiceCreateAdminOnly(t *testing.T) {
	_, _, svc := newInstructorFixture()

	req := CreateInstructorRequest{Username: "newins", Email: "ins@example.com", FullName: "Barbara Liskov", Specialty: "Type Theory"}

	_, err := svc.Create(context.Background(), req, claimsFor(models.RoleInstructor, "u-ins"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	created, err := svc.Create(context.Background(), req, claimsFor(models.RoleAdmin, "u-admin"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.InitialPassword)
	assert.Equal(t, "Barbara Liskov", created.Instructor.FullName)
}

func TestInstructorServiceUpdateWhitelist(t *testing.T) {
	repo, _, svc := newInstructorFixture()

	specialty := "Distributed Systems"
	instructor, err := svc.Update(context.Background(), testInstructorID, UpdateInstructorRequest{Specialty: &specialty}, claimsFor(models.RoleInstructor, "u-ins"))
	require.NoError(t, err)
	assert.Equal(t, "Distributed Systems", instructor.Specialty)
	assert.Equal(t, "Edsger Dijkstra", repo.lastUpdate.FullName)
	assert.Equal(t, "u-ins", repo.lastUpdate.UserID)

	_, err = svc.Update(context.Background(), testInstructorID, UpdateInstructorRequest{Specialty: &specialty}, claimsFor(models.RoleInstructor, "u-other"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestInstructorServiceListCourses(t *testing.T) {
	_, courses, svc := newInstructorFixture()
	courses.courses = []models.CourseDetail{{Course: models.Course{ID: testCourseID, InstructorID: testInstructorID}}}

	listed, err := svc.ListCourses(context.Background(), testInstructorID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, testInstructorID, courses.lastFilter.InstructorID)

	_, err = svc.ListCourses(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestInstructorServiceDeleteAdminOnly(t *testing.T) {
	repo, _, svc := newInstructorFixture()

	err := svc.Delete(context.Background(), testInstructorID, claimsFor(models.RoleInstructor, "u-ins"))
	require.Error(t, err)

	require.NoError(t, svc.Delete(context.Background(), testInstructorID, claimsFor(models.RoleAdmin, "u-admin")))
	assert.Contains(t, repo.deleted, testInstructorID)
}
