package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/repository"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.Assignment, error)
	CountActiveForSchoolTerm(ctx context.Context, schoolID, termID string) (int, error)
	CreateWithinQuota(ctx context.Context, assignment *models.Assignment) error
	SetTeacher(ctx context.Context, id, teacherID string) error
	UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, notes string) error
	HasTeachingRecords(ctx context.Context, id string) (bool, error)
	HasCompletionRequests(ctx context.Context, id string) (bool, error)
}

type activeTermProvider interface {
	GetActive(ctx context.Context) (*models.Term, error)
}

type quotaReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	FindQuota(ctx context.Context, schoolID, termID string) (*models.SchoolTermQuota, error)
}

type rosterChecker interface {
	ExistsAtSchool(ctx context.Context, teacherID, schoolID, termID string) (bool, error)
}

type eventPublisher interface {
	Publish(event models.NotificationEvent)
}

// ApplyRequest is a student's application to a school for the active term.
type ApplyRequest struct {
	SchoolID string `json:"school_id" validate:"required"`
	Notes    string `json:"notes"`
}

// AssignTeacherRequest binds a mentor teacher to an assignment.
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
}

// CancelAssignmentRequest carries the cancellation reason.
type CancelAssignmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// AssignmentService orchestrates internship placement workflows.
type AssignmentService struct {
	repo      assignmentRepository
	terms     activeTermProvider
	schools   quotaReader
	roster    rosterChecker
	users     userReader
	audit     auditWriter
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, terms activeTermProvider, schools quotaReader, roster rosterChecker, users userReader, audit auditWriter, events eventPublisher, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, terms: terms, schools: schools, roster: roster, users: users, audit: audit, events: events, validator: validate, logger: logger}
}

// List returns assignments with pagination metadata.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return assignments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a single assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// GetMine returns the student's current active assignment.
func (s *AssignmentService) GetMine(ctx context.Context, studentID string) (*models.Assignment, error) {
	assignment, err := s.repo.FindActiveByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Apply places a student at a school for the active term. The quota and the
// one-active-placement rule are rechecked under row locks at insert time.
func (s *AssignmentService) Apply(ctx context.Context, studentID string, req ApplyRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	term, err := s.terms.GetActive(ctx)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code {
			return nil, appErrors.Clone(appErrors.ErrConflict, "no active term accepting applications")
		}
		return nil, err
	}

	now := time.Now().UTC()
	if now.Before(term.RegistrationStart) || now.After(term.RegistrationEnd) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration window is closed")
	}

	school, err := s.schools.FindByID(ctx, req.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	if !school.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school is not accepting placements")
	}

	// Early existence check only; the authoritative quota value is re-read
	// under a row lock inside the insert transaction.
	if _, err := s.schools.FindQuota(ctx, req.SchoolID, term.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "school has no quota configured for this term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quota")
	}

	assignment := &models.Assignment{
		StudentID:      studentID,
		SchoolID:       req.SchoolID,
		TermID:         term.ID,
		EnrollmentDate: now,
		Notes:          req.Notes,
	}
	if err := s.repo.CreateWithinQuota(ctx, assignment); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateActive):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an active assignment")
		case errors.Is(err, repository.ErrQuotaSaturated):
			return nil, appErrors.Clone(appErrors.ErrConflict, "school quota is full for this term")
		case errors.Is(err, repository.ErrNoQuota):
			return nil, appErrors.Clone(appErrors.ErrConflict, "school has no quota configured for this term")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
		}
	}
	return assignment, nil
}

// AssignTeacher binds a rostered mentor teacher to an active assignment.
func (s *AssignmentService) AssignTeacher(ctx context.Context, id string, req AssignTeacherRequest, actorID string) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.Status != models.AssignmentStatusActive {
		return nil, appErrors.InvalidState(string(assignment.Status))
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
	}

	rostered, err := s.roster.ExistsAtSchool(ctx, req.TeacherID, assignment.SchoolID, assignment.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roster")
	}
	if !rostered {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher is not rostered at the assignment school for this term")
	}

	if err := s.repo.SetTeacher(ctx, id, req.TeacherID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign teacher")
	}
	assignment.TeacherID = &req.TeacherID

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionTeacherAssign,
			Resource:   "assignments",
			ResourceID: &id,
			NewValues:  []byte(fmt.Sprintf(`{"teacher_id":%q}`, req.TeacherID)),
		}); err != nil {
			s.logger.Warn("failed to record teacher assignment audit log", zap.Error(err))
		}
	}
	if s.events != nil {
		s.events.Publish(models.NotificationEvent{
			Type:        models.NotificationTeacherAssigned,
			RecipientID: assignment.StudentID,
			ResourceID:  id,
			Data:        map[string]string{"teacher_name": teacher.FullName},
			OccurredAt:  time.Now().UTC(),
		})
	}
	return assignment, nil
}

// Cancel withdraws an active assignment that has no teaching records and no
// completion requests.
func (s *AssignmentService) Cancel(ctx context.Context, id string, req CancelAssignmentRequest, actorID string) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}

	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.Status != models.AssignmentStatusActive {
		return nil, appErrors.InvalidState(string(assignment.Status))
	}

	hasRecords, err := s.repo.HasTeachingRecords(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teaching records")
	}
	if hasRecords {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("assignment in state %s has teaching records and cannot be cancelled", assignment.Status))
	}

	hasRequests, err := s.repo.HasCompletionRequests(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check completion requests")
	}
	if hasRequests {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("assignment in state %s has completion requests and cannot be cancelled", assignment.Status))
	}

	if err := s.repo.UpdateStatus(ctx, id, models.AssignmentStatusCancelled, req.Reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel assignment")
	}
	assignment.Status = models.AssignmentStatusCancelled
	assignment.Notes = req.Reason

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionAssignmentCancel,
			Resource:   "assignments",
			ResourceID: &id,
			NewValues:  []byte(fmt.Sprintf(`{"reason":%q}`, req.Reason)),
		}); err != nil {
			s.logger.Warn("failed to record cancellation audit log", zap.Error(err))
		}
	}
	if s.events != nil {
		s.events.Publish(models.NotificationEvent{
			Type:        models.NotificationAssignmentCancelled,
			RecipientID: assignment.StudentID,
			ResourceID:  id,
			Data:        map[string]string{"reason": req.Reason},
			OccurredAt:  time.Now().UTC(),
		})
	}
	return assignment, nil
}
