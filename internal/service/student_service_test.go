package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/coursehub/course-hub-api/internal/models"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type mockStudentRepo struct {
	students    map[string]*models.StudentDetail
	codeTaken   bool
	createdUser *models.User
	deleted     []string
	lastUpdate  *models.Student
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var list []models.StudentDetail
	for _, s := range m.students {
		list = append(list, *s)
	}
	return list, len(list), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	for _, s := range m.students {
		if s.UserID == userID {
			student := s.Student
			return &student, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	return m.codeTaken, nil
}

func (m *mockStudentRepo) CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error {
	if user.ID == "" {
		user.ID = "new-user"
	}
	if student.ID == "" {
		student.ID = "new-student"
	}
	student.UserID = user.ID
	m.createdUser = user
	if m.students == nil {
		m.students = make(map[string]*models.StudentDetail)
	}
	m.students[student.ID] = &models.StudentDetail{Student: *student, Username: user.Username, Email: user.Email}
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.lastUpdate = student
	if s, ok := m.students[student.ID]; ok {
		s.Student = *student
	}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockAccountChecker struct {
	conflict string
}

func (m *mockAccountChecker) ConflictingField(ctx context.Context, username, email, excludeID string) (string, error) {
	return m.conflict, nil
}

type mockStudentEnrollments struct {
	enrollments []models.EnrollmentDetail
}

func (m *mockStudentEnrollments) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.enrollments, nil
}

func newStudentFixture() (*mockStudentRepo, *StudentService) {
	repo := &mockStudentRepo{students: map[string]*models.StudentDetail{
		testStudentID: {Student: models.Student{ID: testStudentID, FullName: "Ada Lovelace", Age: 20, StudentCode: "S-100", EnrollmentYear: 2025, UserID: "u-stu"}},
	}}
	svc := NewStudentService(repo, &mockAccountChecker{}, &mockStudentEnrollments{}, validator.New(), zap.NewNop())
	return repo, svc
}

func TestStudentServiceCreateGeneratesPassword(t *testing.T) {
	repo, svc := newStudentFixture()

	created, err := svc.Create(context.Background(), CreateStudentRequest{
		Username:       "newstudent",
		Email:          "new@example.com",
		FullName:       "Grace Hopper",
		Age:            21,
		StudentCode:    "S-101",
		EnrollmentYear: 2026,
	}, claimsFor(models.RoleAdmin, "u-admin"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.InitialPassword)
	assert.Equal(t, models.RoleStudent, repo.createdUser.Role)
	// The stored hash verifies against the returned one-time password.
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.createdUser.PasswordHash), []byte(created.InitialPassword)))
}

func TestStudentServiceCreateAdminOnly(t *testing.T) {
	_, svc := newStudentFixture()

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		Username:       "newstudent",
		Email:          "new@example.com",
		FullName:       "Grace Hopper",
		Age:            21,
		StudentCode:    "S-101",
		EnrollmentYear: 2026,
	}, claimsFor(models.RoleInstructor, "u-ins"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateDuplicateCode(t *testing.T) {
	repo, svc := newStudentFixture()
	repo.codeTaken = true

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		Username:       "newstudent",
		Email:          "new@example.com",
		FullName:       "Grace Hopper",
		Age:            21,
		StudentCode:    "S-100",
		EnrollmentYear: 2026,
	}, claimsFor(models.RoleAdmin, "u-admin"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "student_code")
}

func TestStudentServiceGetOwnerOnly(t *testing.T) {
	_, svc := newStudentFixture()

	student, err := svc.Get(context.Background(), testStudentID, claimsFor(models.RoleStudent, "u-stu"))
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", student.FullName)

	_, err = svc.Get(context.Background(), testStudentID, claimsFor(models.RoleStudent, "u-other"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceUpdateWhitelist(t *testing.T) {
	repo, svc := newStudentFixture()

	age := 21
	student, err := svc.Update(context.Background(), testStudentID, UpdateStudentRequest{Age: &age}, claimsFor(models.RoleStudent, "u-stu"))
	require.NoError(t, err)
	assert.Equal(t, 21, student.Age)
	// Identity fields survive patches untouched.
	assert.Equal(t, "S-100", repo.lastUpdate.StudentCode)
	assert.Equal(t, "u-stu", repo.lastUpdate.UserID)
	assert.Equal(t, "Ada Lovelace", repo.lastUpdate.FullName)
}

func TestStudentServiceDeleteAdminOnly(t *testing.T) {
	repo, svc := newStudentFixture()

	err := svc.Delete(context.Background(), testStudentID, claimsFor(models.RoleStudent, "u-stu"))
	require.Error(t, err)

	require.NoError(t, svc.Delete(context.Background(), testStudentID, claimsFor(models.RoleAdmin, "u-admin")))
	assert.Contains(t, repo.deleted, testStudentID)
}
