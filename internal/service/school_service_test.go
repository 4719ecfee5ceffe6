package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

type mockSchoolRepo struct {
	schools  map[string]*models.School
	quotas   map[string]*models.SchoolTermQuota
	upserted *models.SchoolTermQuota
	created  *models.School
}

func (m *mockSchoolRepo) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error) {
	return nil, 0, nil
}

func (m *mockSchoolRepo) FindByID(ctx context.Context, id string) (*models.School, error) {
	if s, ok := m.schools[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSchoolRepo) Create(ctx context.Context, school *models.School) error {
	school.ID = "school-new"
	m.created = school
	return nil
}

func (m *mockSchoolRepo) Update(ctx context.Context, school *models.School) error {
	m.schools[school.ID] = school
	return nil
}

func (m *mockSchoolRepo) FindQuota(ctx context.Context, schoolID, termID string) (*models.SchoolTermQuota, error) {
	if q, ok := m.quotas[schoolID+termID]; ok {
		return q, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSchoolRepo) UpsertQuota(ctx context.Context, quota *models.SchoolTermQuota) error {
	m.upserted = quota
	return nil
}

func (m *mockSchoolRepo) HasQuota(ctx context.Context, schoolID, termID string) (bool, error) {
	_, ok := m.quotas[schoolID+termID]
	return ok, nil
}

type mockTermCatalog struct {
	terms map[string]*models.Term
}

func (m *mockTermCatalog) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

type mockAssignmentCounter struct {
	count int
}

func (m *mockAssignmentCounter) CountActiveForSchoolTerm(ctx context.Context, schoolID, termID string) (int, error) {
	return m.count, nil
}

func newSchoolService(repo *mockSchoolRepo, terms *mockTermCatalog, counter *mockAssignmentCounter) *SchoolService {
	return NewSchoolService(repo, terms, counter, &mockAuditSink{}, validator.New(), zap.NewNop())
}

func TestSchoolCreate(t *testing.T) {
	repo := &mockSchoolRepo{schools: map[string]*models.School{}}
	svc := newSchoolService(repo, &mockTermCatalog{}, &mockAssignmentCounter{})

	school, err := svc.Create(context.Background(), CreateSchoolRequest{Name: "SMA Negeri 1", Address: "Jl. Merdeka 1"})
	require.NoError(t, err)
	assert.True(t, school.Active)
	require.NotNil(t, repo.created)
}

func TestSchoolConfigureQuota(t *testing.T) {
	repo := &mockSchoolRepo{schools: map[string]*models.School{"school-1": {ID: "school-1", Active: true}}}
	terms := &mockTermCatalog{terms: map[string]*models.Term{"term-1": {ID: "term-1"}}}
	svc := newSchoolService(repo, terms, &mockAssignmentCounter{})

	quota, err := svc.ConfigureQuota(context.Background(), "school-1", ConfigureQuotaRequest{TermID: "term-1", Quota: 8}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 8, quota.Quota)
	require.NotNil(t, repo.upserted)
	assert.Equal(t, "term-1", repo.upserted.TermID)
}

func TestSchoolConfigureQuotaUnknownTerm(t *testing.T) {
	repo := &mockSchoolRepo{schools: map[string]*models.School{"school-1": {ID: "school-1"}}}
	svc := newSchoolService(repo, &mockTermCatalog{}, &mockAssignmentCounter{})

	_, err := svc.ConfigureQuota(context.Background(), "school-1", ConfigureQuotaRequest{TermID: "missing", Quota: 8}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSchoolConfigureQuotaRejectsZero(t *testing.T) {
	repo := &mockSchoolRepo{schools: map[string]*models.School{"school-1": {ID: "school-1"}}}
	svc := newSchoolService(repo, &mockTermCatalog{}, &mockAssignmentCounter{})

	_, err := svc.ConfigureQuota(context.Background(), "school-1", ConfigureQuotaRequest{TermID: "term-1", Quota: 0}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSchoolCapacity(t *testing.T) {
	repo := &mockSchoolRepo{
		schools: map[string]*models.School{"school-1": {ID: "school-1"}},
		quotas:  map[string]*models.SchoolTermQuota{"school-1term-1": {SchoolID: "school-1", TermID: "term-1", Quota: 5}},
	}
	svc := newSchoolService(repo, &mockTermCatalog{}, &mockAssignmentCounter{count: 3})

	capacity, err := svc.Capacity(context.Background(), "school-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 5, capacity.Quota)
	assert.Equal(t, 3, capacity.ActiveCount)
	assert.Equal(t, 2, capacity.Remaining)
}

func TestSchoolCapacityFloorsAtZero(t *testing.T) {
	repo := &mockSchoolRepo{
		quotas: map[string]*models.SchoolTermQuota{"school-1term-1": {Quota: 2}},
	}
	svc := newSchoolService(repo, &mockTermCatalog{}, &mockAssignmentCounter{count: 4})

	capacity, err := svc.Capacity(context.Background(), "school-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 0, capacity.Remaining)
}

func TestSchoolCapacityNoQuota(t *testing.T) {
	svc := newSchoolService(&mockSchoolRepo{}, &mockTermCatalog{}, &mockAssignmentCounter{})

	_, err := svc.Capacity(context.Background(), "school-1", "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
