package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/storage"
)

type activityRepository interface {
	ListLessonPlans(ctx context.Context, filter models.ActivityFilter) ([]models.LessonPlan, int, error)
	FindLessonPlanByID(ctx context.Context, id string) (*models.LessonPlan, error)
	CreateLessonPlan(ctx context.Context, plan *models.LessonPlan) error
	UpdateLessonPlan(ctx context.Context, plan *models.LessonPlan) error
	DeleteLessonPlan(ctx context.Context, id string) error
	ListSessions(ctx context.Context, filter models.ActivityFilter) ([]models.TeachingSession, int, error)
	FindSessionByID(ctx context.Context, id string) (*models.TeachingSession, error)
	CreateSession(ctx context.Context, session *models.TeachingSession) error
	UpdateSession(ctx context.Context, session *models.TeachingSession) error
	DeleteSession(ctx context.Context, id string) error
	AggregateStats(ctx context.Context, studentID string, countDrafts bool) (*models.ActivityStats, error)
	CreateAttachment(ctx context.Context, att *models.Attachment) error
	FindAttachmentByID(ctx context.Context, id string) (*models.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.Assignment, error)
}

// LessonPlanRequest describes lesson plan create/update payload.
type LessonPlanRequest struct {
	Title        string  `json:"title" validate:"required"`
	Subject      string  `json:"subject" validate:"required"`
	Description  string  `json:"description"`
	AttachmentID *string `json:"attachment_id"`
	Status       string  `json:"status" validate:"omitempty,oneof=DRAFT SUBMITTED"`
}

// TeachingSessionRequest describes session create/update payload.
type TeachingSessionRequest struct {
	LessonPlanID *string   `json:"lesson_plan_id"`
	Topic        string    `json:"topic" validate:"required"`
	ClassName    string    `json:"class_name" validate:"required"`
	StartTime    time.Time `json:"start_time" validate:"required"`
	EndTime      time.Time `json:"end_time" validate:"required"`
	Notes        string    `json:"notes"`
	Status       string    `json:"status" validate:"omitempty,oneof=DRAFT SUBMITTED"`
}

// UploadAttachmentInput carries an incoming attachment stream and metadata.
type UploadAttachmentInput struct {
	FileName  string
	MIMEType  string
	SizeBytes int64
	Reader    io.Reader
}

// AttachmentDownload is a signed, time-limited download grant.
type AttachmentDownload struct {
	AttachmentID string    `json:"attachment_id"`
	FileName     string    `json:"file_name"`
	URL          string    `json:"url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ActivityConfig bounds attachment uploads.
type ActivityConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	CountDrafts      bool
}

// ActivityService manages the teaching activity ledger: lesson plans,
// teaching sessions and attachments. All writes require an ACTIVE assignment
// owned by the acting student.
type ActivityService struct {
	repo        activityRepository
	assignments assignmentReader
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	config      ActivityConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(repo activityRepository, assignments assignmentReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, config ActivityConfig, validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxFileSizeBytes <= 0 {
		config.MaxFileSizeBytes = 10 << 20
	}
	return &ActivityService{repo: repo, assignments: assignments, store: store, signer: signer, config: config, validator: validate, logger: logger}
}

// ListLessonPlans returns lesson plans with pagination metadata.
func (s *ActivityService) ListLessonPlans(ctx context.Context, filter models.ActivityFilter) ([]models.LessonPlan, *models.Pagination, error) {
	plans, total, err := s.repo.ListLessonPlans(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lesson plans")
	}
	return plans, paginationFor(filter.Page, filter.PageSize, total), nil
}

// CreateLessonPlan records a lesson plan on the student's active assignment.
func (s *ActivityService) CreateLessonPlan(ctx context.Context, studentID string, req LessonPlanRequest) (*models.LessonPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson plan payload")
	}

	assignment, err := s.requireActiveAssignment(ctx, studentID)
	if err != nil {
		return nil, err
	}

	status := models.ActivityStatus(req.Status)
	if status == "" {
		status = models.ActivityStatusDraft
	}

	plan := &models.LessonPlan{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
		Title:        req.Title,
		Subject:      req.Subject,
		Description:  req.Description,
		AttachmentID: req.AttachmentID,
		Status:       status,
	}
	if err := s.repo.CreateLessonPlan(ctx, plan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson plan")
	}
	return plan, nil
}

// UpdateLessonPlan modifies a lesson plan owned by the student.
func (s *ActivityService) UpdateLessonPlan(ctx context.Context, studentID, id string, req LessonPlanRequest) (*models.LessonPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson plan payload")
	}

	plan, err := s.repo.FindLessonPlanByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson plan")
	}
	if plan.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lesson plan belongs to another student")
	}
	if plan.Status == models.ActivityStatusReviewed {
		return nil, appErrors.InvalidState(string(plan.Status))
	}
	if _, err := s.requireActiveAssignment(ctx, studentID); err != nil {
		return nil, err
	}

	plan.Title = req.Title
	plan.Subject = req.Subject
	plan.Description = req.Description
	plan.AttachmentID = req.AttachmentID
	if req.Status != "" {
		plan.Status = models.ActivityStatus(req.Status)
	}

	if err := s.repo.UpdateLessonPlan(ctx, plan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson plan")
	}
	return plan, nil
}

// DeleteLessonPlan removes a lesson plan owned by the student.
func (s *ActivityService) DeleteLessonPlan(ctx context.Context, studentID, id string) error {
	plan, err := s.repo.FindLessonPlanByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson plan not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson plan")
	}
	if plan.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "lesson plan belongs to another student")
	}
	if plan.Status == models.ActivityStatusReviewed {
		return appErrors.InvalidState(string(plan.Status))
	}
	if _, err := s.requireActiveAssignment(ctx, studentID); err != nil {
		return err
	}

	if err := s.repo.DeleteLessonPlan(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson plan")
	}
	return nil
}

// ListSessions returns teaching sessions with pagination metadata.
func (s *ActivityService) ListSessions(ctx context.Context, filter models.ActivityFilter) ([]models.TeachingSession, *models.Pagination, error) {
	sessions, total, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching sessions")
	}
	return sessions, paginationFor(filter.Page, filter.PageSize, total), nil
}

// CreateSession records a delivered lesson on the student's active assignment.
func (s *ActivityService) CreateSession(ctx context.Context, studentID string, req TeachingSessionRequest) (*models.TeachingSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teaching session payload")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	assignment, err := s.requireActiveAssignment(ctx, studentID)
	if err != nil {
		return nil, err
	}

	if req.LessonPlanID != nil {
		plan, err := s.repo.FindLessonPlanByID(ctx, *req.LessonPlanID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson plan not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson plan")
		}
		if plan.StudentID != studentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "lesson plan belongs to another student")
		}
	}

	status := models.ActivityStatus(req.Status)
	if status == "" {
		status = models.ActivityStatusDraft
	}

	session := &models.TeachingSession{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
		LessonPlanID: req.LessonPlanID,
		Topic:        req.Topic,
		ClassName:    req.ClassName,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Notes:        req.Notes,
		Status:       status,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teaching session")
	}
	return session, nil
}

// UpdateSession modifies a teaching session owned by the student.
func (s *ActivityService) UpdateSession(ctx context.Context, studentID, id string, req TeachingSessionRequest) (*models.TeachingSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teaching session payload")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	session, err := s.repo.FindSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching session")
	}
	if session.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teaching session belongs to another student")
	}
	if session.Status == models.ActivityStatusReviewed {
		return nil, appErrors.InvalidState(string(session.Status))
	}
	if _, err := s.requireActiveAssignment(ctx, studentID); err != nil {
		return nil, err
	}

	session.LessonPlanID = req.LessonPlanID
	session.Topic = req.Topic
	session.ClassName = req.ClassName
	session.StartTime = req.StartTime
	session.EndTime = req.EndTime
	session.Notes = req.Notes
	if req.Status != "" {
		session.Status = models.ActivityStatus(req.Status)
	}

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teaching session")
	}
	return session, nil
}

// DeleteSession removes a teaching session owned by the student.
func (s *ActivityService) DeleteSession(ctx context.Context, studentID, id string) error {
	session, err := s.repo.FindSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teaching session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching session")
	}
	if session.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "teaching session belongs to another student")
	}
	if session.Status == models.ActivityStatusReviewed {
		return appErrors.InvalidState(string(session.Status))
	}
	if _, err := s.requireActiveAssignment(ctx, studentID); err != nil {
		return err
	}

	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teaching session")
	}
	return nil
}

// Stats aggregates the student's ledger totals.
func (s *ActivityService) Stats(ctx context.Context, studentID string) (*models.ActivityStats, error) {
	stats, err := s.repo.AggregateStats(ctx, studentID, s.config.CountDrafts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate activity stats")
	}
	return stats, nil
}

// UploadAttachment stores a file and records its metadata.
func (s *ActivityService) UploadAttachment(ctx context.Context, studentID string, input UploadAttachmentInput) (*models.Attachment, error) {
	if input.FileName == "" || input.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if input.SizeBytes > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds maximum size of %d bytes", s.config.MaxFileSizeBytes))
	}
	if len(s.config.AllowedMIMEs) > 0 && !mimeAllowed(input.MIMEType, s.config.AllowedMIMEs) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file type is not allowed")
	}
	if _, err := s.requireActiveAssignment(ctx, studentID); err != nil {
		return nil, err
	}

	attachmentID := uuid.NewString()
	storedName := fmt.Sprintf("%s/%s_%s", studentID, attachmentID, input.FileName)
	relPath, err := s.store.SaveStream(storedName, io.LimitReader(input.Reader, s.config.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}

	att := &models.Attachment{
		ID:        attachmentID,
		StudentID: studentID,
		FileName:  input.FileName,
		FilePath:  relPath,
		MIMEType:  input.MIMEType,
		SizeBytes: input.SizeBytes,
	}
	if err := s.repo.CreateAttachment(ctx, att); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to clean up orphaned attachment file", zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attachment")
	}
	return att, nil
}

// AttachmentURL issues a signed, time-limited download link. Students may
// only link their own files; teachers and staff may link any.
func (s *ActivityService) AttachmentURL(ctx context.Context, actor *models.JWTClaims, attachmentID string) (*AttachmentDownload, error) {
	att, err := s.repo.FindAttachmentByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	if actor.Role == models.RoleStudent && att.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attachment belongs to another student")
	}

	token, expiresAt, err := s.signer.Generate(att.ID, att.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &AttachmentDownload{
		AttachmentID: att.ID,
		FileName:     att.FileName,
		URL:          fmt.Sprintf("/api/v1/attachments/download?token=%s", token),
		ExpiresAt:    expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the underlying file.
func (s *ActivityService) ResolveDownload(ctx context.Context, token string) (*models.Attachment, io.ReadCloser, error) {
	attachmentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}

	att, err := s.repo.FindAttachmentByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	if att.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match attachment")
	}

	file, err := s.store.Open(att.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment")
	}
	return att, file, nil
}

func (s *ActivityService) requireActiveAssignment(ctx context.Context, studentID string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindActiveByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student has no active assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func mimeAllowed(mime string, allowed []string) bool {
	for _, m := range allowed {
		if m == mime {
			return true
		}
	}
	return false
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
