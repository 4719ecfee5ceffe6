package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/storage"
)

type mockActivityRepo struct {
	plans       map[string]models.LessonPlan
	sessions    map[string]models.TeachingSession
	attachments map[string]models.Attachment
	stats       models.ActivityStats

	createdPlan    *models.LessonPlan
	createdSession *models.TeachingSession
	createdAtt     *models.Attachment
	attCreateErr   error
	deletedPlans   []string
	deletedAtt     []string
}

func (m *mockActivityRepo) ListLessonPlans(ctx context.Context, filter models.ActivityFilter) ([]models.LessonPlan, int, error) {
	return nil, 0, nil
}

func (m *mockActivityRepo) FindLessonPlanByID(ctx context.Context, id string) (*models.LessonPlan, error) {
	if p, ok := m.plans[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockActivityRepo) CreateLessonPlan(ctx context.Context, plan *models.LessonPlan) error {
	plan.ID = "plan-new"
	m.createdPlan = plan
	return nil
}

func (m *mockActivityRepo) UpdateLessonPlan(ctx context.Context, plan *models.LessonPlan) error {
	m.plans[plan.ID] = *plan
	return nil
}

func (m *mockActivityRepo) DeleteLessonPlan(ctx context.Context, id string) error {
	m.deletedPlans = append(m.deletedPlans, id)
	return nil
}

func (m *mockActivityRepo) ListSessions(ctx context.Context, filter models.ActivityFilter) ([]models.TeachingSession, int, error) {
	return nil, 0, nil
}

func (m *mockActivityRepo) FindSessionByID(ctx context.Context, id string) (*models.TeachingSession, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockActivityRepo) CreateSession(ctx context.Context, session *models.TeachingSession) error {
	session.ID = "session-new"
	m.createdSession = session
	return nil
}

func (m *mockActivityRepo) UpdateSession(ctx context.Context, session *models.TeachingSession) error {
	m.sessions[session.ID] = *session
	return nil
}

func (m *mockActivityRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func (m *mockActivityRepo) AggregateStats(ctx context.Context, studentID string, countDrafts bool) (*models.ActivityStats, error) {
	s := m.stats
	return &s, nil
}

func (m *mockActivityRepo) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	if m.attCreateErr != nil {
		return m.attCreateErr
	}
	if m.attachments == nil {
		m.attachments = make(map[string]models.Attachment)
	}
	m.attachments[att.ID] = *att
	m.createdAtt = att
	return nil
}

func (m *mockActivityRepo) FindAttachmentByID(ctx context.Context, id string) (*models.Attachment, error) {
	if a, ok := m.attachments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockActivityRepo) DeleteAttachment(ctx context.Context, id string) error {
	m.deletedAtt = append(m.deletedAtt, id)
	return nil
}

func activeAssignments() *mockAssignmentReader {
	return &mockAssignmentReader{activeFor: map[string]*models.Assignment{
		"stu-1": {ID: "assign-1", StudentID: "stu-1", Status: models.AssignmentStatusActive},
	}}
}

func newActivityService(t *testing.T, repo *mockActivityRepo, assignments *mockAssignmentReader, cfg ActivityConfig) *ActivityService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", 15*time.Minute)
	return NewActivityService(repo, assignments, store, signer, cfg, validator.New(), zap.NewNop())
}

func TestCreateLessonPlanDefaultsToDraft(t *testing.T) {
	repo := &mockActivityRepo{}
	svc := newActivityService(t, repo, activeAssignments(), ActivityConfig{})

	plan, err := svc.CreateLessonPlan(context.Background(), "stu-1", LessonPlanRequest{Title: "Fractions", Subject: "Math"})
	require.NoError(t, err)
	assert.Equal(t, models.ActivityStatusDraft, plan.Status)
	assert.Equal(t, "assign-1", plan.AssignmentID)
}

func TestCreateLessonPlanWithoutAssignment(t *testing.T) {
	svc := newActivityService(t, &mockActivityRepo{}, &mockAssignmentReader{}, ActivityConfig{})

	_, err := svc.CreateLessonPlan(context.Background(), "stu-1", LessonPlanRequest{Title: "Fractions", Subject: "Math"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateLessonPlanOwnership(t *testing.T) {
	repo := &mockActivityRepo{plans: map[string]models.LessonPlan{
		"plan-1": {ID: "plan-1", StudentID: "stu-1", Status: models.ActivityStatusDraft},
	}}
	svc := newActivityService(t, repo, activeAssignments(), ActivityConfig{})

	_, err := svc.UpdateLessonPlan(context.Background(), "stu-2", "plan-1", LessonPlanRequest{Title: "New", Subject: "Math"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateReviewedLessonPlanBlocked(t *testing.T) {
	repo := &mockActivityRepo{plans: map[string]models.LessonPlan{
		"plan-1": {ID: "plan-1", StudentID: "stu-1", Status: models.ActivityStatusReviewed},
	}}
	svc := newActivityService(t, repo, activeAssignments(), ActivityConfig{})

	_, err := svc.UpdateLessonPlan(context.Background(), "stu-1", "plan-1", LessonPlanRequest{Title: "New", Subject: "Math"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCreateSessionRejectsInvertedTimes(t *testing.T) {
	svc := newActivityService(t, &mockActivityRepo{}, activeAssignments(), ActivityConfig{})
	now := time.Now().UTC()

	_, err := svc.CreateSession(context.Background(), "stu-1", TeachingSessionRequest{
		Topic:     "Algebra",
		ClassName: "X-1",
		StartTime: now,
		EndTime:   now.Add(-time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateSessionLinksOwnLessonPlanOnly(t *testing.T) {
	repo := &mockActivityRepo{plans: map[string]models.LessonPlan{
		"plan-1": {ID: "plan-1", StudentID: "stu-2"},
	}}
	svc := newActivityService(t, repo, activeAssignments(), ActivityConfig{})
	now := time.Now().UTC()
	planID := "plan-1"

	_, err := svc.CreateSession(context.Background(), "stu-1", TeachingSessionRequest{
		LessonPlanID: &planID,
		Topic:        "Algebra",
		ClassName:    "X-1",
		StartTime:    now,
		EndTime:      now.Add(2 * time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateSession(t *testing.T) {
	repo := &mockActivityRepo{}
	svc := newActivityService(t, repo, activeAssignments(), ActivityConfig{})
	now := time.Now().UTC()

	session, err := svc.CreateSession(context.Background(), "stu-1", TeachingSessionRequest{
		Topic:     "Algebra",
		ClassName: "X-1",
		StartTime: now,
		EndTime:   now.Add(90 * time.Minute),
		Status:    "SUBMITTED",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActivityStatusSubmitted, session.Status)
	assert.Equal(t, "assign-1", session.AssignmentID)
}

func TestUploadAttachmentTooLarge(t *testing.T) {
	svc := newActivityService(t, &mockActivityRepo{}, activeAssignments(), ActivityConfig{MaxFileSizeBytes: 16})

	_, err := svc.UploadAttachment(context.Background(), "stu-1", UploadAttachmentInput{
		FileName:  "big.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 64,
		Reader:    strings.NewReader("0123456789abcdef0123456789abcdef"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUploadAttachmentDisallowedMIME(t *testing.T) {
	svc := newActivityService(t, &mockActivityRepo{}, activeAssignments(), ActivityConfig{
		AllowedMIMEs: []string{"application/pdf"},
	})

	_, err := svc.UploadAttachment(context.Background(), "stu-1", UploadAttachmentInput{
		FileName:  "notes.exe",
		MIMEType:  "application/octet-stream",
		SizeBytes: 8,
		Reader:    strings.NewReader("content"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUploadAttachmentAndDownloadRoundTrip(t *testing.T) {
	repo := &mockActivityRepo{}
	svc := newActivityService(t, repo, activeAssignments(), ActivityConfig{
		AllowedMIMEs: []string{"application/pdf"},
	})

	att, err := svc.UploadAttachment(context.Background(), "stu-1", UploadAttachmentInput{
		FileName:  "lesson.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 11,
		Reader:    strings.NewReader("pdf content"),
	})
	require.NoError(t, err)
	assert.Equal(t, "stu-1", att.StudentID)

	grant, err := svc.AttachmentURL(context.Background(), &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}, att.ID)
	require.NoError(t, err)
	assert.Contains(t, grant.URL, "token=")

	token := strings.TrimPrefix(grant.URL, "/api/v1/attachments/download?token=")
	resolved, file, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	assert.Equal(t, att.ID, resolved.ID)
}

func TestAttachmentURLForeignStudentForbidden(t *testing.T) {
	repo := &mockActivityRepo{attachments: map[string]models.Attachment{
		"att-1": {ID: "att-1", StudentID: "stu-1", FilePath: "stu-1/att-1_file.pdf"},
	}}
	svc := newActivityService(t, repo, activeAssignments(), ActivityConfig{})

	_, err := svc.AttachmentURL(context.Background(), &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}, "att-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
