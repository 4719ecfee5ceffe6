package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ppl-internship-api/internal/models"
)

const completionColumns = `id, assignment_id, student_id, self_evaluation, total_hours, total_lesson_plans, total_sessions, status, submitted_at,
teacher_score, teacher_comments, teacher_decision, teacher_reviewed_at, teacher_reviewer_id,
supervisor_scores, supervisor_total, supervisor_average, supervisor_comments, supervisor_decision, supervisor_reviewed_at, supervisor_reviewer_id,
created_at, updated_at`

// CompletionRepository handles persistence for completion requests.
type CompletionRepository struct {
	db *sqlx.DB
}

// NewCompletionRepository instantiates a completion repository.
func NewCompletionRepository(db *sqlx.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// List returns completion requests with assignment context.
func (r *CompletionRepository) List(ctx context.Context, filter models.CompletionFilter) ([]models.CompletionRequestDetail, int, error) {
	base := `FROM completion_requests cr
JOIN assignments a ON a.id = cr.assignment_id
JOIN users stu ON stu.id = cr.student_id
JOIN schools s ON s.id = a.school_id
JOIN terms t ON t.id = a.term_id
LEFT JOIN users mt ON mt.id = a.teacher_id
WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("cr.assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("cr.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("a.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("cr.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	cols := prefixColumns("cr", completionColumns)
	query := fmt.Sprintf(`SELECT %s, stu.full_name AS student_name, s.name AS school_name, mt.full_name AS teacher_name, t.name AS term_name
%s ORDER BY cr.submitted_at %s LIMIT %d OFFSET %d`, cols, base, order, size, offset)

	var requests []models.CompletionRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list completion requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count completion requests: %w", err)
	}

	return requests, total, nil
}

// FindByID loads a completion request by identifier.
func (r *CompletionRepository) FindByID(ctx context.Context, id string) (*models.CompletionRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM completion_requests WHERE id = $1", completionColumns)
	var request models.CompletionRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID loads a completion request together with assignment context.
func (r *CompletionRepository) FindDetailByID(ctx context.Context, id string) (*models.CompletionRequestDetail, error) {
	cols := prefixColumns("cr", completionColumns)
	query := fmt.Sprintf(`SELECT %s, stu.full_name AS student_name, s.name AS school_name, mt.full_name AS teacher_name, t.name AS term_name
FROM completion_requests cr
JOIN assignments a ON a.id = cr.assignment_id
JOIN users stu ON stu.id = cr.student_id
JOIN schools s ON s.id = a.school_id
JOIN terms t ON t.id = a.term_id
LEFT JOIN users mt ON mt.id = a.teacher_id
WHERE cr.id = $1`, cols)
	var detail models.CompletionRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateIfNoneOpen inserts a new pending request after verifying, under a row
// lock, that the assignment has no other non-terminal request. The check and
// the insert commit or roll back together.
func (r *CompletionRepository) CreateIfNoneOpen(ctx context.Context, request *models.CompletionRequest) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin completion tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var open []string
	const lockQuery = `SELECT id FROM completion_requests WHERE assignment_id = $1 AND status IN ('PENDING', 'UNDER_REVIEW', 'REVISION_REQUIRED') FOR UPDATE`
	if err = tx.SelectContext(ctx, &open, lockQuery, request.AssignmentID); err != nil {
		return fmt.Errorf("lock completion requests: %w", err)
	}
	if len(open) > 0 {
		err = ErrOpenRequestExists
		return err
	}

	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.SubmittedAt.IsZero() {
		request.SubmittedAt = now
	}
	request.Status = models.CompletionStatusPending

	const insertQuery = `INSERT INTO completion_requests (id, assignment_id, student_id, self_evaluation, total_hours, total_lesson_plans, total_sessions, status, submitted_at, created_at, updated_at)
VALUES (:id, :assignment_id, :student_id, :self_evaluation, :total_hours, :total_lesson_plans, :total_sessions, :status, :submitted_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, request); err != nil {
		return fmt.Errorf("insert completion request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit completion tx: %w", err)
	}
	return nil
}

// TeacherReviewParams carries the mentor review written to a request.
type TeacherReviewParams struct {
	Score      int
	Comments   string
	Decision   models.ReviewDecision
	ReviewerID string
	NewStatus  models.CompletionStatus
}

// SetTeacherReview stores the mentor review and moves the request status.
func (r *CompletionRepository) SetTeacherReview(ctx context.Context, id string, params TeacherReviewParams) error {
	now := time.Now().UTC()
	const query = `UPDATE completion_requests SET teacher_score = $2, teacher_comments = $3, teacher_decision = $4, teacher_reviewed_at = $5, teacher_reviewer_id = $6, status = $7, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, params.Score, params.Comments, params.Decision, now, params.ReviewerID, params.NewStatus); err != nil {
		return fmt.Errorf("set teacher review: %w", err)
	}
	return nil
}

// SupervisorReviewParams carries the supervisor review written to a request.
type SupervisorReviewParams struct {
	Scores     []int64
	Total      int
	Average    float64
	Comments   string
	Decision   models.ReviewDecision
	ReviewerID string
	NewStatus  models.CompletionStatus
	// CompleteAssignment marks the owning assignment COMPLETED in the same
	// transaction, used on terminal approval.
	CompleteAssignment bool
	AssignmentID       string
}

// SetSupervisorReview stores the supervisor review, moves the request status
// and, on terminal approval, completes the assignment atomically.
func (r *CompletionRepository) SetSupervisorReview(ctx context.Context, id string, params SupervisorReviewParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin supervisor review tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `UPDATE completion_requests SET supervisor_scores = $2, supervisor_total = $3, supervisor_average = $4, supervisor_comments = $5, supervisor_decision = $6, supervisor_reviewed_at = $7, supervisor_reviewer_id = $8, status = $9, updated_at = $7 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, query, id, pq.Array(params.Scores), params.Total, params.Average, params.Comments, params.Decision, now, params.ReviewerID, params.NewStatus); err != nil {
		return fmt.Errorf("set supervisor review: %w", err)
	}

	if params.CompleteAssignment {
		if _, err = tx.ExecContext(ctx, `UPDATE assignments SET status = 'COMPLETED', updated_at = $2 WHERE id = $1`, params.AssignmentID, now); err != nil {
			return fmt.Errorf("complete assignment: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit supervisor review tx: %w", err)
	}
	return nil
}

// Resubmit returns a revision-required request to PENDING with a fresh
// snapshot and clears the previous mentor review.
func (r *CompletionRepository) Resubmit(ctx context.Context, id string, stats models.ActivityStats, selfEvaluation string) error {
	now := time.Now().UTC()
	const query = `UPDATE completion_requests SET total_hours = $2, total_lesson_plans = $3, total_sessions = $4, self_evaluation = $5, status = 'PENDING', submitted_at = $6, updated_at = $6,
teacher_score = NULL, teacher_comments = NULL, teacher_decision = NULL, teacher_reviewed_at = NULL, teacher_reviewer_id = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, stats.TotalHours, stats.TotalLessonPlans, stats.TotalSessions, selfEvaluation, now); err != nil {
		return fmt.Errorf("resubmit completion request: %w", err)
	}
	return nil
}

// Delete removes a completion request. Guarded by the service so only
// pending or revision-required requests are ever deleted.
func (r *CompletionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM completion_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete completion request: %w", err)
	}
	return nil
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = prefix + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
