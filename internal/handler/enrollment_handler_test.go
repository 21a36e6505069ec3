package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/course-hub-api/internal/middleware"
	"github.com/coursehub/course-hub-api/internal/models"
	"github.com/coursehub/course-hub-api/internal/service"
	appErrors "github.com/coursehub/course-hub-api/pkg/errors"
)

type enrollmentServiceMock struct {
	listResp   []models.EnrollmentDetail
	listErr    error
	createResp *models.EnrollmentDetail
	createErr  error
	updateResp *models.EnrollmentDetail
	updateErr  error
	lastFilter models.EnrollmentFilter
	lastCreate service.CreateEnrollmentRequest
	lastUpdate service.UpdateEnrollmentStatusRequest
	deleted    []string
}

func (m *enrollmentServiceMock) List(ctx context.Context, filter models.EnrollmentFilter, claims *models.JWTClaims) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(m.listResp)}, m.listErr
}

func (m *enrollmentServiceMock) Create(ctx context.Context, req service.CreateEnrollmentRequest, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *enrollmentServiceMock) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	return m.createResp, m.createErr
}

func (m *enrollmentServiceMock) UpdateStatus(ctx context.Context, id string, req service.UpdateEnrollmentStatusRequest, claims *models.JWTClaims) (*models.EnrollmentDetail, error) {
	m.lastUpdate = req
	return m.updateResp, m.updateErr
}

func (m *enrollmentServiceMock) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func testContext(t *testing.T, method, target string, body []byte, role models.UserRole) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: role})
	return c, w
}

func TestEnrollmentHandlerList(t *testing.T) {
	mockSvc := &enrollmentServiceMock{
		listResp: []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "e-1"}}},
	}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/enrollments?semester=2026-fall&status=enrolled&page=2", nil, models.RoleAdmin)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-fall", mockSvc.lastFilter.Semester)
	assert.Equal(t, models.EnrollmentStatusEnrolled, mockSvc.lastFilter.Status)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
}

func TestEnrollmentHandlerCreateInvalidBody(t *testing.T) {
	handler := NewEnrollmentHandler(&enrollmentServiceMock{})

	c, w := testContext(t, http.MethodPost, "/enrollments", []byte(`{"course_id":`), models.RoleStudent)
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	mockSvc := &enrollmentServiceMock{
		createResp: &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "e-1"}},
	}
	handler := NewEnrollmentHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateEnrollmentRequest{CourseID: "11111111-1111-1111-1111-111111111111", Semester: "2026-fall"})
	c, w := testContext(t, http.MethodPost, "/enrollments", payload, models.RoleStudent)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "2026-fall", mockSvc.lastCreate.Semester)
}

func TestEnrollmentHandlerCreateCapacityError(t *testing.T) {
	mockSvc := &enrollmentServiceMock{createErr: appErrors.ErrCapacityExceeded}
	handler := NewEnrollmentHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateEnrollmentRequest{CourseID: "11111111-1111-1111-1111-111111111111", Semester: "2026-fall"})
	c, w := testContext(t, http.MethodPost, "/enrollments", payload, models.RoleStudent)
	handler.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, envelope.Error.Code)
}

func TestEnrollmentHandlerUpdateStatus(t *testing.T) {
	mockSvc := &enrollmentServiceMock{
		updateResp: &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "e-1", Status: models.EnrollmentStatusCompleted}},
	}
	handler := NewEnrollmentHandler(mockSvc)

	grade := "A"
	payload, _ := json.Marshal(service.UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusCompleted, Grade: &grade})
	c, w := testContext(t, http.MethodPatch, "/enrollments/e-1", payload, models.RoleInstructor)
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	handler.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastUpdate.Grade)
	assert.Equal(t, "A", *mockSvc.lastUpdate.Grade)
}

func TestEnrollmentHandlerDelete(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := testContext(t, http.MethodDelete, "/enrollments/e-1", nil, models.RoleAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	handler.Delete(c)
	// A bodyless 204 is not flushed by the test context on its own.
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"e-1"}, mockSvc.deleted)
}
