package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

type mockTermRepo struct {
	terms       map[string]models.Term
	activeID    string
	exists      bool
	created     *models.Term
	activated   []string
	deleted     []string
	assignCount int
	findActive  int
}

func (m *mockTermRepo) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	return nil, 0, nil
}

func (m *mockTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) FindActive(ctx context.Context) (*models.Term, error) {
	m.findActive++
	if t, ok := m.terms[m.activeID]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) ExistsByYearAndSemester(ctx context.Context, academicYear string, semester models.Semester, excludeID string) (bool, error) {
	return m.exists, nil
}

func (m *mockTermRepo) Create(ctx context.Context, term *models.Term) error {
	term.ID = "term-new"
	m.created = term
	return nil
}

func (m *mockTermRepo) Update(ctx context.Context, term *models.Term) error {
	m.terms[term.ID] = *term
	return nil
}

func (m *mockTermRepo) SetActive(ctx context.Context, id string) error {
	m.activated = append(m.activated, id)
	return nil
}

func (m *mockTermRepo) CountAssignments(ctx context.Context, id string) (int, error) {
	return m.assignCount, nil
}

func (m *mockTermRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockTermCache struct {
	store       map[string][]byte
	invalidated []string
}

func (m *mockTermCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockTermCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	return nil
}

func (m *mockTermCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	delete(m.store, pattern)
	return nil
}

func termWindow() (time.Time, time.Time, time.Time, time.Time) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	regStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	regEnd := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	return start, end, regStart, regEnd
}

func newTermService(repo *mockTermRepo, cache *mockTermCache) *TermService {
	return NewTermService(repo, cache, &mockAuditSink{}, time.Minute, validator.New(), zap.NewNop())
}

func TestTermCreate(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{}}
	svc := newTermService(repo, &mockTermCache{})
	start, end, regStart, regEnd := termWindow()

	term, err := svc.Create(context.Background(), CreateTermRequest{
		Name:              "Odd 2026/2027",
		AcademicYear:      "2026/2027",
		Semester:          "ODD",
		StartDate:         start,
		EndDate:           end,
		RegistrationStart: regStart,
		RegistrationEnd:   regEnd,
	})
	require.NoError(t, err)
	assert.False(t, term.IsActive)
	require.NotNil(t, repo.created)
}

func TestTermCreateDuplicateYearSemester(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{}, exists: true}
	svc := newTermService(repo, &mockTermCache{})
	start, end, regStart, regEnd := termWindow()

	_, err := svc.Create(context.Background(), CreateTermRequest{
		Name:              "Odd 2026/2027",
		AcademicYear:      "2026/2027",
		Semester:          "ODD",
		StartDate:         start,
		EndDate:           end,
		RegistrationStart: regStart,
		RegistrationEnd:   regEnd,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTermCreateInvertedWindow(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{}}
	svc := newTermService(repo, &mockTermCache{})
	start, end, regStart, regEnd := termWindow()

	_, err := svc.Create(context.Background(), CreateTermRequest{
		Name:              "Odd 2026/2027",
		AcademicYear:      "2026/2027",
		Semester:          "ODD",
		StartDate:         end,
		EndDate:           start,
		RegistrationStart: regStart,
		RegistrationEnd:   regEnd,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTermGetActiveUsesCache(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{"term-1": {ID: "term-1", Name: "Odd", IsActive: true}}, activeID: "term-1"}
	cache := &mockTermCache{}
	svc := newTermService(repo, cache)

	first, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "term-1", first.ID)

	second, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "term-1", second.ID)
	assert.Equal(t, 1, repo.findActive)
}

func TestTermGetActiveNone(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{}}
	svc := newTermService(repo, &mockTermCache{})

	_, err := svc.GetActive(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTermActivateInvalidatesCache(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{"term-2": {ID: "term-2", Name: "Even"}}}
	cache := &mockTermCache{store: map[string][]byte{activeTermCacheKey: []byte(`{"id":"term-1"}`)}}
	svc := newTermService(repo, cache)

	term, err := svc.Activate(context.Background(), "term-2", "admin-1")
	require.NoError(t, err)
	assert.True(t, term.IsActive)
	assert.Contains(t, repo.activated, "term-2")
	assert.Contains(t, cache.invalidated, activeTermCacheKey)
}

func TestTermDeleteActiveBlocked(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{"term-1": {ID: "term-1", IsActive: true}}}
	svc := newTermService(repo, &mockTermCache{})

	err := svc.Delete(context.Background(), "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestTermDeleteWithAssignmentsBlocked(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{"term-1": {ID: "term-1"}}, assignCount: 3}
	svc := newTermService(repo, &mockTermCache{})

	err := svc.Delete(context.Background(), "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTermDelete(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{"term-1": {ID: "term-1"}}}
	svc := newTermService(repo, &mockTermCache{})

	err := svc.Delete(context.Background(), "term-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "term-1")
}
