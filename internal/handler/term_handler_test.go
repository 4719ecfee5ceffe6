package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ppl-internship-api/internal/middleware"
	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/service"
)

type termRepoMock struct {
	terms      []models.Term
	active     *models.Term
	lastFilter models.TermFilter
	listCalled bool
	activated  string
}

func (m *termRepoMock) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	m.listCalled = true
	m.lastFilter = filter
	return m.terms, len(m.terms), nil
}

func (m *termRepoMock) FindByID(ctx context.Context, id string) (*models.Term, error) {
	for i := range m.terms {
		if m.terms[i].ID == id {
			return &m.terms[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *termRepoMock) FindActive(ctx context.Context) (*models.Term, error) {
	if m.active == nil {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

func (m *termRepoMock) ExistsByYearAndSemester(ctx context.Context, academicYear string, semester models.Semester, excludeID string) (bool, error) {
	return false, nil
}

func (m *termRepoMock) Create(ctx context.Context, term *models.Term) error { return nil }
func (m *termRepoMock) Update(ctx context.Context, term *models.Term) error { return nil }

func (m *termRepoMock) SetActive(ctx context.Context, id string) error {
	m.activated = id
	return nil
}

func (m *termRepoMock) CountAssignments(ctx context.Context, id string) (int, error) { return 0, nil }
func (m *termRepoMock) Delete(ctx context.Context, id string) error                  { return nil }

func newTermHandler(repo *termRepoMock) *TermHandler {
	return NewTermHandler(service.NewTermService(repo, nil, nil, time.Minute, nil, nil))
}

func TestTermHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &termRepoMock{terms: []models.Term{{ID: "term-1", AcademicYear: "2026/2027"}}}
	handler := newTermHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/terms?academicYear=2026/2027&semester=ODD&isActive=true&page=2&limit=5", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, repo.listCalled)
	assert.Equal(t, "2026/2027", repo.lastFilter.AcademicYear)
	assert.Equal(t, models.SemesterOdd, repo.lastFilter.Semester)
	require.NotNil(t, repo.lastFilter.IsActive)
	assert.True(t, *repo.lastFilter.IsActive)
	assert.Equal(t, 2, repo.lastFilter.Page)
	assert.Equal(t, 5, repo.lastFilter.PageSize)
}

func TestTermHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTermHandler(&termRepoMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/terms/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTermHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTermHandler(&termRepoMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/terms", bytes.NewBufferString(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTermHandlerActivateRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTermHandler(&termRepoMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/terms/term-1/activate", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "term-1"}}

	handler.Activate(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTermHandlerActivate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &termRepoMock{terms: []models.Term{{ID: "term-1"}}}
	handler := newTermHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/terms/term-1/activate", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "term-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Activate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "term-1", repo.activated)
}
