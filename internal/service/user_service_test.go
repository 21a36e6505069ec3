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

type mockUserRepo struct {
	users    map[string]*models.User
	conflict string
	roles    map[string]models.UserRole
	deleted  []string
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ConflictingField(ctx context.Context, username, email, excludeID string) (string, error) {
	return m.conflict, nil
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "new-user"
	}
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	if m.roles == nil {
		m.roles = make(map[string]models.UserRole)
	}
	m.roles[id] = role
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newUserFixture() (*mockUserRepo, *UserService) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Username: "student", Email: "student@example.com", Role: models.RoleStudent},
	}}
	return repo, NewUserService(repo, validator.New(), zap.NewNop())
}

func TestUserServiceGetOwnerAndAdmin(t *testing.T) {
	_, svc := newUserFixture()

	user, err := svc.Get(context.Background(), "u-1", claimsFor(models.RoleStudent, "u-1"))
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	_, err = svc.Get(context.Background(), "u-1", claimsFor(models.RoleStudent, "u-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), "u-1", claimsFor(models.RoleAdmin, "u-admin"))
	require.NoError(t, err)
}

func TestUserServiceCreateAdminOnly(t *testing.T) {
	_, svc := newUserFixture()

	req := CreateUserRequest{Username: "newuser", Email: "new@example.com", Password: "secret123", Role: models.RoleInstructor}

	_, err := svc.Create(context.Background(), req, claimsFor(models.RoleInstructor, "u-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	user, err := svc.Create(context.Background(), req, claimsFor(models.RoleAdmin, "u-admin"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, user.Role)
}

func TestUserServiceUpdateNeverTouchesRole(t *testing.T) {
	repo, svc := newUserFixture()

	username := "renamed"
	user, err := svc.Update(context.Background(), "u-1", UpdateUserRequest{Username: &username}, claimsFor(models.RoleStudent, "u-1"))
	require.NoError(t, err)
	assert.Equal(t, "renamed", user.Username)
	// The patch surface has no role field and the role column is untouched.
	assert.Equal(t, models.RoleStudent, repo.users["u-1"].Role)
	assert.Empty(t, repo.roles)
}

func TestUserServiceUpdateConflict(t *testing.T) {
	repo, svc := newUserFixture()
	repo.conflict = "username"

	username := "taken"
	_, err := svc.Update(context.Background(), "u-1", UpdateUserRequest{Username: &username}, claimsFor(models.RoleAdmin, "u-admin"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "username")
}

func TestUserServiceUpdateRole(t *testing.T) {
	repo, svc := newUserFixture()

	_, err := svc.UpdateRole(context.Background(), "u-1", UpdateUserRoleRequest{Role: models.RoleInstructor}, claimsFor(models.RoleStudent, "u-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	user, err := svc.UpdateRole(context.Background(), "u-1", UpdateUserRoleRequest{Role: models.RoleInstructor}, claimsFor(models.RoleAdmin, "u-admin"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, user.Role)
	assert.Equal(t, models.RoleInstructor, repo.roles["u-1"])
}

func TestUserServiceDelete(t *testing.T) {
	repo, svc := newUserFixture()

	err := svc.Delete(context.Background(), "u-1", claimsFor(models.RoleStudent, "u-1"))
	require.Error(t, err)

	require.NoError(t, svc.Delete(context.Background(), "u-1", claimsFor(models.RoleAdmin, "u-admin")))
	assert.Contains(t, repo.deleted, "u-1")

	err = svc.Delete(context.Background(), "u-1", claimsFor(models.RoleAdmin, "u-admin"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
