package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ppl-internship-api/internal/middleware"
	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/repository"
	"github.com/noah-isme/ppl-internship-api/internal/service"
)

type completionRepoMock struct {
	requests   []models.CompletionRequestDetail
	lastFilter models.CompletionFilter
	listCalled bool
}

func (m *completionRepoMock) List(ctx context.Context, filter models.CompletionFilter) ([]models.CompletionRequestDetail, int, error) {
	m.listCalled = true
	m.lastFilter = filter
	return m.requests, len(m.requests), nil
}

func (m *completionRepoMock) FindByID(ctx context.Context, id string) (*models.CompletionRequest, error) {
	return nil, sql.ErrNoRows
}

func (m *completionRepoMock) CreateIfNoneOpen(ctx context.Context, request *models.CompletionRequest) error {
	return nil
}

func (m *completionRepoMock) SetTeacherReview(ctx context.Context, id string, params repository.TeacherReviewParams) error {
	return nil
}

func (m *completionRepoMock) SetSupervisorReview(ctx context.Context, id string, params repository.SupervisorReviewParams) error {
	return nil
}

func (m *completionRepoMock) Resubmit(ctx context.Context, id string, stats models.ActivityStats, selfEvaluation string) error {
	return nil
}

func (m *completionRepoMock) Delete(ctx context.Context, id string) error { return nil }

type assignmentReaderStub struct{}

func (assignmentReaderStub) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	return nil, sql.ErrNoRows
}

func (assignmentReaderStub) FindActiveByStudent(ctx context.Context, studentID string) (*models.Assignment, error) {
	return nil, sql.ErrNoRows
}

type statsAggregatorStub struct{}

func (statsAggregatorStub) AggregateStats(ctx context.Context, studentID string, countDrafts bool) (*models.ActivityStats, error) {
	return &models.ActivityStats{}, nil
}

func newCompletionHandler(repo *completionRepoMock) *CompletionHandler {
	svc := service.NewCompletionService(repo, assignmentReaderStub{}, statsAggregatorStub{}, true, nil, nil, nil, nil)
	return NewCompletionHandler(svc)
}

func TestCompletionHandlerListScopesStudentToSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &completionRepoMock{}
	handler := newCompletionHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/completion-requests?studentId=stu-other&status=PENDING", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, repo.listCalled)
	assert.Equal(t, "stu-1", repo.lastFilter.StudentID)
	assert.Equal(t, models.CompletionStatusPending, repo.lastFilter.Status)
}

func TestCompletionHandlerListScopesTeacher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &completionRepoMock{}
	handler := newCompletionHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/completion-requests", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teach-1", Role: models.RoleTeacher})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teach-1", repo.lastFilter.TeacherID)
	assert.Empty(t, repo.lastFilter.StudentID)
}

func TestCompletionHandlerListAdminUnscoped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &completionRepoMock{}
	handler := newCompletionHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/completion-requests?studentId=stu-7", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-7", repo.lastFilter.StudentID)
	assert.Empty(t, repo.lastFilter.TeacherID)
}

func TestCompletionHandlerSubmitInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newCompletionHandler(&completionRepoMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/completion-requests", bytes.NewBufferString(`{"self_evaluation":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompletionHandlerSubmitRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newCompletionHandler(&completionRepoMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/completion-requests", bytes.NewBufferString(`{"self_evaluation":"done"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
