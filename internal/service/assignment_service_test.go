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

	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/repository"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

type mockAssignmentRepo struct {
	assignments map[string]models.Assignment
	createErr   error
	created     *models.Assignment
	teacherSet  map[string]string
	statusSet   map[string]models.AssignmentStatus
	hasRecords  bool
	hasRequests bool
}

func (m *mockAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) FindActiveByStudent(ctx context.Context, studentID string) (*models.Assignment, error) {
	for _, a := range m.assignments {
		if a.StudentID == studentID && a.Status == models.AssignmentStatusActive {
			found := a
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) CountActiveForSchoolTerm(ctx context.Context, schoolID, termID string) (int, error) {
	count := 0
	for _, a := range m.assignments {
		if a.SchoolID == schoolID && a.TermID == termID && a.Status == models.AssignmentStatusActive {
			count++
		}
	}
	return count, nil
}

func (m *mockAssignmentRepo) CreateWithinQuota(ctx context.Context, assignment *models.Assignment) error {
	if m.createErr != nil {
		return m.createErr
	}
	assignment.ID = "assign-new"
	assignment.Status = models.AssignmentStatusActive
	m.created = assignment
	return nil
}

func (m *mockAssignmentRepo) SetTeacher(ctx context.Context, id, teacherID string) error {
	if m.teacherSet == nil {
		m.teacherSet = make(map[string]string)
	}
	m.teacherSet[id] = teacherID
	return nil
}

func (m *mockAssignmentRepo) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, notes string) error {
	if m.statusSet == nil {
		m.statusSet = make(map[string]models.AssignmentStatus)
	}
	m.statusSet[id] = status
	return nil
}

func (m *mockAssignmentRepo) HasTeachingRecords(ctx context.Context, id string) (bool, error) {
	return m.hasRecords, nil
}

func (m *mockAssignmentRepo) HasCompletionRequests(ctx context.Context, id string) (bool, error) {
	return m.hasRequests, nil
}

type mockActiveTerm struct {
	term *models.Term
}

func (m *mockActiveTerm) GetActive(ctx context.Context) (*models.Term, error) {
	if m.term == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active term")
	}
	return m.term, nil
}

type mockQuotaReader struct {
	schools map[string]*models.School
	quotas  map[string]*models.SchoolTermQuota
}

func (m *mockQuotaReader) FindByID(ctx context.Context, id string) (*models.School, error) {
	if s, ok := m.schools[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockQuotaReader) FindQuota(ctx context.Context, schoolID, termID string) (*models.SchoolTermQuota, error) {
	if q, ok := m.quotas[schoolID+termID]; ok {
		return q, nil
	}
	return nil, sql.ErrNoRows
}

type mockRosterChecker struct {
	rostered bool
}

func (m *mockRosterChecker) ExistsAtSchool(ctx context.Context, teacherID, schoolID, termID string) (bool, error) {
	return m.rostered, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func openTerm() *models.Term {
	now := time.Now().UTC()
	return &models.Term{
		ID:                "term-1",
		IsActive:          true,
		RegistrationStart: now.Add(-24 * time.Hour),
		RegistrationEnd:   now.Add(24 * time.Hour),
	}
}

func newAssignmentService(repo *mockAssignmentRepo, terms *mockActiveTerm, schools *mockQuotaReader, roster *mockRosterChecker, users *mockUserReader, events *mockEventSink) *AssignmentService {
	return NewAssignmentService(repo, terms, schools, roster, users, &mockAuditSink{}, events, validator.New(), zap.NewNop())
}

func TestAssignmentApply(t *testing.T) {
	repo := &mockAssignmentRepo{}
	schools := &mockQuotaReader{
		schools: map[string]*models.School{"school-1": {ID: "school-1", Active: true}},
		quotas:  map[string]*models.SchoolTermQuota{"school-1term-1": {SchoolID: "school-1", TermID: "term-1", Quota: 5}},
	}
	svc := newAssignmentService(repo, &mockActiveTerm{term: openTerm()}, schools, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	assignment, err := svc.Apply(context.Background(), "stu-1", ApplyRequest{SchoolID: "school-1"})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusActive, assignment.Status)
	assert.Equal(t, "term-1", assignment.TermID)
	require.NotNil(t, repo.created)
}

func TestAssignmentApplyNoActiveTerm(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Apply(context.Background(), "stu-1", ApplyRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignmentApplyWindowClosed(t *testing.T) {
	term := openTerm()
	term.RegistrationEnd = time.Now().UTC().Add(-time.Hour)
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockActiveTerm{term: term}, &mockQuotaReader{}, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Apply(context.Background(), "stu-1", ApplyRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignmentApplyInactiveSchool(t *testing.T) {
	schools := &mockQuotaReader{schools: map[string]*models.School{"school-1": {ID: "school-1", Active: false}}}
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockActiveTerm{term: openTerm()}, schools, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Apply(context.Background(), "stu-1", ApplyRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignmentApplyNoQuotaConfigured(t *testing.T) {
	schools := &mockQuotaReader{schools: map[string]*models.School{"school-1": {ID: "school-1", Active: true}}}
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockActiveTerm{term: openTerm()}, schools, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Apply(context.Background(), "stu-1", ApplyRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignmentApplyQuotaSaturated(t *testing.T) {
	repo := &mockAssignmentRepo{createErr: repository.ErrQuotaSaturated}
	schools := &mockQuotaReader{
		schools: map[string]*models.School{"school-1": {ID: "school-1", Active: true}},
		quotas:  map[string]*models.SchoolTermQuota{"school-1term-1": {Quota: 1}},
	}
	svc := newAssignmentService(repo, &mockActiveTerm{term: openTerm()}, schools, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Apply(context.Background(), "stu-1", ApplyRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignmentApplyDuplicateActive(t *testing.T) {
	repo := &mockAssignmentRepo{createErr: repository.ErrDuplicateActive}
	schools := &mockQuotaReader{
		schools: map[string]*models.School{"school-1": {ID: "school-1", Active: true}},
		quotas:  map[string]*models.SchoolTermQuota{"school-1term-1": {Quota: 5}},
	}
	svc := newAssignmentService(repo, &mockActiveTerm{term: openTerm()}, schools, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Apply(context.Background(), "stu-1", ApplyRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignTeacher(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"assign-1": {ID: "assign-1", StudentID: "stu-1", SchoolID: "school-1", TermID: "term-1", Status: models.AssignmentStatusActive},
	}}
	users := &mockUserReader{users: map[string]*models.User{
		"teach-1": {ID: "teach-1", Role: models.RoleTeacher, Active: true, FullName: "Mentor One"},
	}}
	events := &mockEventSink{}
	svc := newAssignmentService(repo, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{rostered: true}, users, events)

	assignment, err := svc.AssignTeacher(context.Background(), "assign-1", AssignTeacherRequest{TeacherID: "teach-1"}, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, assignment.TeacherID)
	assert.Equal(t, "teach-1", *assignment.TeacherID)
	assert.Equal(t, "teach-1", repo.teacherSet["assign-1"])

	require.Len(t, events.events, 1)
	assert.Equal(t, models.NotificationTeacherAssigned, events.events[0].Type)
	assert.Equal(t, "stu-1", events.events[0].RecipientID)
}

func TestAssignTeacherNotRostered(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"assign-1": {ID: "assign-1", SchoolID: "school-1", TermID: "term-1", Status: models.AssignmentStatusActive},
	}}
	users := &mockUserReader{users: map[string]*models.User{
		"teach-1": {ID: "teach-1", Role: models.RoleTeacher, Active: true},
	}}
	svc := newAssignmentService(repo, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{rostered: false}, users, &mockEventSink{})

	_, err := svc.AssignTeacher(context.Background(), "assign-1", AssignTeacherRequest{TeacherID: "teach-1"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignTeacherNonTeacherRole(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"assign-1": {ID: "assign-1", Status: models.AssignmentStatusActive},
	}}
	users := &mockUserReader{users: map[string]*models.User{
		"stu-9": {ID: "stu-9", Role: models.RoleStudent, Active: true},
	}}
	svc := newAssignmentService(repo, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{rostered: true}, users, &mockEventSink{})

	_, err := svc.AssignTeacher(context.Background(), "assign-1", AssignTeacherRequest{TeacherID: "stu-9"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignTeacherCancelledAssignment(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"assign-1": {ID: "assign-1", Status: models.AssignmentStatusCancelled},
	}}
	svc := newAssignmentService(repo, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.AssignTeacher(context.Background(), "assign-1", AssignTeacherRequest{TeacherID: "teach-1"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCancelAssignment(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"assign-1": {ID: "assign-1", StudentID: "stu-1", Status: models.AssignmentStatusActive},
	}}
	events := &mockEventSink{}
	svc := newAssignmentService(repo, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{}, &mockUserReader{}, events)

	assignment, err := svc.Cancel(context.Background(), "assign-1", CancelAssignmentRequest{Reason: "student withdrew"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusCancelled, assignment.Status)
	assert.Equal(t, models.AssignmentStatusCancelled, repo.statusSet["assign-1"])
	require.Len(t, events.events, 1)
	assert.Equal(t, models.NotificationAssignmentCancelled, events.events[0].Type)
}

func TestCancelAssignmentWithTeachingRecords(t *testing.T) {
	repo := &mockAssignmentRepo{
		assignments: map[string]models.Assignment{"assign-1": {ID: "assign-1", Status: models.AssignmentStatusActive}},
		hasRecords:  true,
	}
	svc := newAssignmentService(repo, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Cancel(context.Background(), "assign-1", CancelAssignmentRequest{Reason: "cleanup"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, string(models.AssignmentStatusActive))
}

func TestCancelAssignmentWithCompletionRequests(t *testing.T) {
	repo := &mockAssignmentRepo{
		assignments: map[string]models.Assignment{"assign-1": {ID: "assign-1", Status: models.AssignmentStatusActive}},
		hasRequests: true,
	}
	svc := newAssignmentService(repo, &mockActiveTerm{}, &mockQuotaReader{}, &mockRosterChecker{}, &mockUserReader{}, &mockEventSink{})

	_, err := svc.Cancel(context.Background(), "assign-1", CancelAssignmentRequest{Reason: "cleanup"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, string(models.AssignmentStatusActive))
}
