package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/coursehub/course-hub-api/internal/models"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type mockAuthUserRepo struct {
	users     map[string]*models.User
	conflict  string
	created   *models.User
	createErr error
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) ConflictingField(ctx context.Context, username, email, excludeID string) (string, error) {
	return m.conflict, nil
}

func (m *mockAuthUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if user.ID == "" {
		user.ID = "new-user"
	}
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	m.users[user.ID] = user
	m.created = user
	return nil
}

func newTestAuthService(repo *mockAuthUserRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "test",
	})
}

func TestAuthServiceSignup(t *testing.T) {
	repo := &mockAuthUserRepo{}
	svc := newTestAuthService(repo)

	resp, err := svc.Signup(context.Background(), models.SignupRequest{
		Username: "newstudent",
		Email:    "new@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	require.NotNil(t, repo.created)
	assert.NotEqual(t, "secret123", repo.created.PasswordHash)
}

func TestAuthServiceSignupConflict(t *testing.T) {
	repo := &mockAuthUserRepo{conflict: "email"}
	svc := newTestAuthService(repo)

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Username: "newstudent",
		Email:    "taken@example.com",
		Password: "secret123",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAuthServiceLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &mockAuthUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Username: "student", Email: "student@example.com", PasswordHash: string(hash), Role: models.RoleStudent},
	}}
	svc := newTestAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", resp.User.ID)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "student@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	// Unknown email reports the same error as a bad password.
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateToken(t *testing.T) {
	repo := &mockAuthUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Username: "student", Email: "student@example.com", Role: models.RoleStudent},
	}}
	svc := newTestAuthService(repo)

	token, err := svc.generateToken(repo.users["u-1"])
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceValidateTokenDeletedAccount(t *testing.T) {
	repo := &mockAuthUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Username: "student", Role: models.RoleStudent},
	}}
	svc := newTestAuthService(repo)

	token, err := svc.generateToken(repo.users["u-1"])
	require.NoError(t, err)

	// A well-signed token stops working the moment its account is gone.
	delete(repo.users, "u-1")
	_, err = svc.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenBadSignature(t *testing.T) {
	repo := &mockAuthUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Username: "student", Role: models.RoleStudent},
	}}
	svc := newTestAuthService(repo)

	other := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{Secret: "other-secret", Expiration: time.Hour})
	token, err := other.generateToken(repo.users["u-1"])
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
