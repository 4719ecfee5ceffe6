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

type completionRepository interface {
	List(ctx context.Context, filter models.CompletionFilter) ([]models.CompletionRequestDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CompletionRequest, error)
	CreateIfNoneOpen(ctx context.Context, request *models.CompletionRequest) error
	SetTeacherReview(ctx context.Context, id string, params repository.TeacherReviewParams) error
	SetSupervisorReview(ctx context.Context, id string, params repository.SupervisorReviewParams) error
	Resubmit(ctx context.Context, id string, stats models.ActivityStats, selfEvaluation string) error
	Delete(ctx context.Context, id string) error
}

type statsAggregator interface {
	AggregateStats(ctx context.Context, studentID string, countDrafts bool) (*models.ActivityStats, error)
}

// SubmitCompletionRequest is a student's end-of-term submission payload.
type SubmitCompletionRequest struct {
	SelfEvaluation string `json:"self_evaluation" validate:"required"`
}

// TeacherReviewRequest is the mentor's first-stage review payload.
type TeacherReviewRequest struct {
	Score    int    `json:"score" validate:"required,min=1,max=5"`
	Comments string `json:"comments" validate:"required"`
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT REVISE"`
}

// SupervisorReviewRequest is the supervisor's second-stage review payload.
// Either the flat ten-criterion scores or the detailed rubric must be
// provided on approval.
type SupervisorReviewRequest struct {
	Scores   []int                    `json:"scores"`
	Rubric   []DetailedRubricCategory `json:"rubric"`
	Comments string                   `json:"comments" validate:"required"`
	Decision string                   `json:"decision" validate:"required,oneof=APPROVE REJECT"`
}

// CompletionService drives the two-stage completion review workflow.
type CompletionService struct {
	repo        completionRepository
	assignments assignmentReader
	activity    statsAggregator
	countDrafts bool
	audit       auditWriter
	events      eventPublisher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCompletionService constructs CompletionService.
func NewCompletionService(repo completionRepository, assignments assignmentReader, activity statsAggregator, countDrafts bool, audit auditWriter, events eventPublisher, validate *validator.Validate, logger *zap.Logger) *CompletionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionService{repo: repo, assignments: assignments, activity: activity, countDrafts: countDrafts, audit: audit, events: events, validator: validate, logger: logger}
}

// List returns completion requests with pagination metadata. Role scoping is
// applied by the handler via the filter.
func (s *CompletionService) List(ctx context.Context, filter models.CompletionFilter) ([]models.CompletionRequestDetail, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list completion requests")
	}
	return requests, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get loads a completion request, enforcing role-based visibility. Students
// see only their own requests; mentors only those of their mentees.
// Authorization failures are Forbidden, never NotFound.
func (s *CompletionService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CompletionRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "completion request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completion request")
	}
	if err := s.authorizeView(ctx, actor, request); err != nil {
		return nil, err
	}
	return request, nil
}

// Submit creates a pending completion request with a frozen snapshot of the
// student's activity stats. At most one non-terminal request may exist per
// assignment; the check runs inside the insert transaction.
func (s *CompletionService) Submit(ctx context.Context, studentID string, req SubmitCompletionRequest) (*models.CompletionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.assignments.FindActiveByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student has no active assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.TeacherID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "no mentor teacher assigned yet")
	}

	stats, err := s.activity.AggregateStats(ctx, studentID, s.countDrafts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot activity stats")
	}

	request := &models.CompletionRequest{
		AssignmentID:     assignment.ID,
		StudentID:        studentID,
		SelfEvaluation:   req.SelfEvaluation,
		TotalHours:       stats.TotalHours,
		TotalLessonPlans: stats.TotalLessonPlans,
		TotalSessions:    stats.TotalSessions,
	}
	if err := s.repo.CreateIfNoneOpen(ctx, request); err != nil {
		if errors.Is(err, repository.ErrOpenRequestExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an open completion request already exists for this assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create completion request")
	}

	if s.events != nil {
		s.events.Publish(models.NotificationEvent{
			Type:        models.NotificationRequestSubmitted,
			RecipientID: *assignment.TeacherID,
			ResourceID:  request.ID,
			OccurredAt:  time.Now().UTC(),
		})
	}
	return request, nil
}

// TeacherReview records the mentor's first-stage decision. Only the mentor
// assigned to the request's assignment may review it.
func (s *CompletionService) TeacherReview(ctx context.Context, actor *models.JWTClaims, id string, req TeacherReviewRequest) (*models.CompletionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "completion request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completion request")
	}

	assignment, err := s.assignments.FindByID(ctx, request.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.TeacherID == nil || *assignment.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned mentor may review this request")
	}
	if request.Status != models.CompletionStatusPending {
		return nil, appErrors.InvalidState(string(request.Status))
	}

	decision := models.ReviewDecision(req.Decision)
	var newStatus models.CompletionStatus
	switch decision {
	case models.ReviewDecisionApprove:
		newStatus = models.CompletionStatusUnderReview
	case models.ReviewDecisionReject:
		newStatus = models.CompletionStatusRejected
	case models.ReviewDecisionRevise:
		newStatus = models.CompletionStatusRevisionRequired
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown review decision")
	}

	if err := s.repo.SetTeacherReview(ctx, id, repository.TeacherReviewParams{
		Score:      req.Score,
		Comments:   req.Comments,
		Decision:   decision,
		ReviewerID: actor.UserID,
		NewStatus:  newStatus,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record teacher review")
	}

	request.Status = newStatus
	request.TeacherScore = &req.Score
	request.TeacherComments = &req.Comments
	request.TeacherDecision = &decision
	request.TeacherReviewerID = &actor.UserID

	s.recordReviewAudit(ctx, actor.UserID, id, string(decision), "teacher")
	if s.events != nil {
		s.events.Publish(models.NotificationEvent{
			Type:        models.NotificationTeacherReviewed,
			RecipientID: request.StudentID,
			ResourceID:  id,
			Data:        map[string]string{"decision": string(decision)},
			OccurredAt:  time.Now().UTC(),
		})
	}
	return request, nil
}

// SupervisorReview records the supervisor's terminal decision. Approval
// requires the full rubric and atomically completes the assignment.
func (s *CompletionService) SupervisorReview(ctx context.Context, actor *models.JWTClaims, id string, req SupervisorReviewRequest) (*models.CompletionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "completion request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completion request")
	}
	if request.Status != models.CompletionStatusUnderReview {
		return nil, appErrors.InvalidState(string(request.Status))
	}

	decision := models.ReviewDecision(req.Decision)

	var rubric *RubricResult
	if decision == models.ReviewDecisionApprove {
		switch {
		case len(req.Rubric) > 0:
			average, err := ScoreDetailedRubric(req.Rubric)
			if err != nil {
				return nil, err
			}
			rubric = flattenDetailedRubric(req.Rubric, average)
		default:
			rubric, err = ScoreSupervisorRubric(req.Scores)
			if err != nil {
				return nil, err
			}
		}
	}

	newStatus := models.CompletionStatusSupervisorRejected
	if decision == models.ReviewDecisionApprove {
		newStatus = models.CompletionStatusSupervisorApproved
	}

	params := repository.SupervisorReviewParams{
		Comments:           req.Comments,
		Decision:           decision,
		ReviewerID:         actor.UserID,
		NewStatus:          newStatus,
		CompleteAssignment: newStatus == models.CompletionStatusSupervisorApproved,
		AssignmentID:       request.AssignmentID,
	}
	if rubric != nil {
		params.Scores = rubric.Scores
		params.Total = rubric.Total
		params.Average = rubric.Average
	}

	if err := s.repo.SetSupervisorReview(ctx, id, params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record supervisor review")
	}

	request.Status = newStatus
	request.SupervisorComments = &req.Comments
	request.SupervisorDecision = &decision
	request.SupervisorReviewerID = &actor.UserID
	if rubric != nil {
		request.SupervisorScores = rubric.Scores
		request.SupervisorTotal = &rubric.Total
		request.SupervisorAverage = &rubric.Average
	}

	s.recordReviewAudit(ctx, actor.UserID, id, string(decision), "supervisor")
	if s.events != nil {
		s.events.Publish(models.NotificationEvent{
			Type:        models.NotificationSupervisorReviewed,
			RecipientID: request.StudentID,
			ResourceID:  id,
			Data:        map[string]string{"decision": string(decision)},
			OccurredAt:  time.Now().UTC(),
		})
	}
	return request, nil
}

// Resubmit returns a revision-required request to PENDING with a freshly
// snapshotted ledger. Requests in terminal states are immutable; the student
// submits a new request instead.
func (s *CompletionService) Resubmit(ctx context.Context, studentID, id string, req SubmitCompletionRequest) (*models.CompletionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "completion request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completion request")
	}
	if request.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "completion request belongs to another student")
	}
	if request.Status != models.CompletionStatusRevisionRequired {
		return nil, appErrors.InvalidState(string(request.Status))
	}

	stats, err := s.activity.AggregateStats(ctx, studentID, s.countDrafts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot activity stats")
	}

	if err := s.repo.Resubmit(ctx, id, *stats, req.SelfEvaluation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit completion request")
	}

	request.Status = models.CompletionStatusPending
	request.SelfEvaluation = req.SelfEvaluation
	request.TotalHours = stats.TotalHours
	request.TotalLessonPlans = stats.TotalLessonPlans
	request.TotalSessions = stats.TotalSessions
	request.TeacherScore = nil
	request.TeacherComments = nil
	request.TeacherDecision = nil
	request.TeacherReviewedAt = nil
	request.TeacherReviewerID = nil
	return request, nil
}

// Delete removes a request owned by the student while still editable.
func (s *CompletionService) Delete(ctx context.Context, studentID, id string) error {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "completion request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completion request")
	}
	if request.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "completion request belongs to another student")
	}
	if request.Status != models.CompletionStatusPending && request.Status != models.CompletionStatusRevisionRequired {
		return appErrors.InvalidState(string(request.Status))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete completion request")
	}
	return nil
}

func (s *CompletionService) authorizeView(ctx context.Context, actor *models.JWTClaims, request *models.CompletionRequest) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSupervisor:
		return nil
	case models.RoleStudent:
		if request.StudentID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "completion request belongs to another student")
		}
		return nil
	case models.RoleTeacher:
		assignment, err := s.assignments.FindByID(ctx, request.AssignmentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
		}
		if assignment.TeacherID == nil || *assignment.TeacherID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "request is not assigned to this mentor")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
}

func (s *CompletionService) recordReviewAudit(ctx context.Context, actorID, requestID, decision, stage string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionReviewSubmit,
		Resource:   "completion_requests",
		ResourceID: &requestID,
		NewValues:  []byte(fmt.Sprintf(`{"stage":%q,"decision":%q}`, stage, decision)),
	}); err != nil {
		s.logger.Warn("failed to record review audit log", zap.Error(err))
	}
}

func flattenDetailedRubric(categories []DetailedRubricCategory, average float64) *RubricResult {
	var scores []int64
	total := 0
	for _, category := range categories {
		for _, score := range category.Scores {
			scores = append(scores, int64(score))
			total += score
		}
	}
	return &RubricResult{Scores: scores, Total: total, Average: average}
}
