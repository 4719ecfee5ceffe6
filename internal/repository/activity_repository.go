package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ppl-internship-api/internal/models"
)

const lessonPlanColumns = "id, assignment_id, student_id, title, subject, description, attachment_id, status, created_at, updated_at"
const sessionColumns = "id, assignment_id, student_id, lesson_plan_id, topic, class_name, start_time, end_time, notes, status, created_at, updated_at"

// ActivityRepository handles persistence for the teaching activity ledger:
// lesson plans, teaching sessions and their attachments.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository instantiates an activity repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// ListLessonPlans returns lesson plans matching the filter.
func (r *ActivityRepository) ListLessonPlans(ctx context.Context, filter models.ActivityFilter) ([]models.LessonPlan, int, error) {
	base, args := activityConditions("lesson_plans", filter)

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", lessonPlanColumns, base, pageSize(filter), pageOffset(filter))
	var plans []models.LessonPlan
	if err := r.db.SelectContext(ctx, &plans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lesson plans: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lesson plans: %w", err)
	}
	return plans, total, nil
}

// FindLessonPlanByID loads a lesson plan by identifier.
func (r *ActivityRepository) FindLessonPlanByID(ctx context.Context, id string) (*models.LessonPlan, error) {
	query := fmt.Sprintf("SELECT %s FROM lesson_plans WHERE id = $1", lessonPlanColumns)
	var plan models.LessonPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// CreateLessonPlan inserts a new lesson plan.
func (r *ActivityRepository) CreateLessonPlan(ctx context.Context, plan *models.LessonPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	const query = `INSERT INTO lesson_plans (id, assignment_id, student_id, title, subject, description, attachment_id, status, created_at, updated_at)
VALUES (:id, :assignment_id, :student_id, :title, :subject, :description, :attachment_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		return fmt.Errorf("create lesson plan: %w", err)
	}
	return nil
}

// UpdateLessonPlan modifies mutable fields of a lesson plan.
func (r *ActivityRepository) UpdateLessonPlan(ctx context.Context, plan *models.LessonPlan) error {
	plan.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lesson_plans SET title = :title, subject = :subject, description = :description, attachment_id = :attachment_id, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		return fmt.Errorf("update lesson plan: %w", err)
	}
	return nil
}

// DeleteLessonPlan removes a lesson plan.
func (r *ActivityRepository) DeleteLessonPlan(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lesson_plans WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete lesson plan: %w", err)
	}
	return nil
}

// ListSessions returns teaching sessions matching the filter.
func (r *ActivityRepository) ListSessions(ctx context.Context, filter models.ActivityFilter) ([]models.TeachingSession, int, error) {
	base, args := activityConditions("teaching_sessions", filter)

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_time DESC LIMIT %d OFFSET %d", sessionColumns, base, pageSize(filter), pageOffset(filter))
	var sessions []models.TeachingSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teaching sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teaching sessions: %w", err)
	}
	return sessions, total, nil
}

// FindSessionByID loads a teaching session by identifier.
func (r *ActivityRepository) FindSessionByID(ctx context.Context, id string) (*models.TeachingSession, error) {
	query := fmt.Sprintf("SELECT %s FROM teaching_sessions WHERE id = $1", sessionColumns)
	var session models.TeachingSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateSession inserts a new teaching session.
func (r *ActivityRepository) CreateSession(ctx context.Context, session *models.TeachingSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO teaching_sessions (id, assignment_id, student_id, lesson_plan_id, topic, class_name, start_time, end_time, notes, status, created_at, updated_at)
VALUES (:id, :assignment_id, :student_id, :lesson_plan_id, :topic, :class_name, :start_time, :end_time, :notes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create teaching session: %w", err)
	}
	return nil
}

// UpdateSession modifies mutable fields of a teaching session.
func (r *ActivityRepository) UpdateSession(ctx context.Context, session *models.TeachingSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teaching_sessions SET lesson_plan_id = :lesson_plan_id, topic = :topic, class_name = :class_name, start_time = :start_time, end_time = :end_time, notes = :notes, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update teaching session: %w", err)
	}
	return nil
}

// DeleteSession removes a teaching session.
func (r *ActivityRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM teaching_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete teaching session: %w", err)
	}
	return nil
}

// AggregateStats sums the student's ledger. When countDrafts is false, DRAFT
// sessions and plans are excluded from the totals.
func (r *ActivityRepository) AggregateStats(ctx context.Context, studentID string, countDrafts bool) (*models.ActivityStats, error) {
	statusCond := ""
	if !countDrafts {
		statusCond = " AND status <> 'DRAFT'"
	}

	query := fmt.Sprintf(`SELECT
COALESCE((SELECT SUM(EXTRACT(EPOCH FROM (end_time - start_time)) / 3600.0) FROM teaching_sessions WHERE student_id = $1%s), 0) AS total_hours,
COALESCE((SELECT COUNT(*) FROM lesson_plans WHERE student_id = $1%s), 0) AS total_lesson_plans,
COALESCE((SELECT COUNT(*) FROM teaching_sessions WHERE student_id = $1%s), 0) AS total_sessions`, statusCond, statusCond, statusCond)

	var stats models.ActivityStats
	if err := r.db.GetContext(ctx, &stats, query, studentID); err != nil {
		return nil, fmt.Errorf("aggregate activity stats: %w", err)
	}
	return &stats, nil
}

// CreateAttachment stores attachment metadata.
func (r *ActivityRepository) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments (id, student_id, file_name, file_path, mime_type, size_bytes, created_at) VALUES (:id, :student_id, :file_name, :file_path, :mime_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, att); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// FindAttachmentByID loads attachment metadata.
func (r *ActivityRepository) FindAttachmentByID(ctx context.Context, id string) (*models.Attachment, error) {
	const query = `SELECT id, student_id, file_name, file_path, mime_type, size_bytes, created_at FROM attachments WHERE id = $1`
	var att models.Attachment
	if err := r.db.GetContext(ctx, &att, query, id); err != nil {
		return nil, err
	}
	return &att, nil
}

// DeleteAttachment removes attachment metadata.
func (r *ActivityRepository) DeleteAttachment(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

func activityConditions(table string, filter models.ActivityFilter) (string, []interface{}) {
	base := "FROM " + table + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	return base, args
}

func pageSize(filter models.ActivityFilter) int {
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return size
}

func pageOffset(filter models.ActivityFilter) int {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize(filter)
}
