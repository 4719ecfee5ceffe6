package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ppl-internship-api/internal/models"
)

// Sentinel errors surfaced by transactional guards. Services translate them
// into the API error taxonomy.
var (
	ErrQuotaSaturated    = errors.New("school quota saturated for term")
	ErrDuplicateActive   = errors.New("student already has an active assignment")
	ErrNoQuota           = errors.New("no quota configured for school and term")
	ErrOpenRequestExists = errors.New("assignment already has an open completion request")
)

const assignmentColumns = "id, student_id, school_id, teacher_id, term_id, enrollment_date, status, notes, created_at, updated_at"

// AssignmentRepository handles persistence for internship assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository instantiates an assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// List returns assignments with descriptive fields and a total count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	base := `FROM assignments a
JOIN users stu ON stu.id = a.student_id
JOIN schools s ON s.id = a.school_id
JOIN terms t ON t.id = a.term_id
LEFT JOIN users mt ON mt.id = a.teacher_id
WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("a.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("a.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("a.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"enrollment_date": true, "created_at": true, "status": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.school_id, a.teacher_id, a.term_id, a.enrollment_date, a.status, a.notes, a.created_at, a.updated_at,
stu.full_name AS student_name, s.name AS school_name, mt.full_name AS teacher_name, t.name AS term_name
%s ORDER BY a.%s %s LIMIT %d OFFSET %d`, base, sortBy, order, size, offset)

	var assignments []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	return assignments, total, nil
}

// FindByID loads an assignment by identifier.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE id = $1", assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindActiveByStudent returns the student's single active assignment.
func (r *AssignmentRepository) FindActiveByStudent(ctx context.Context, studentID string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE student_id = $1 AND status = 'ACTIVE' LIMIT 1", assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, studentID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// CountActiveForSchoolTerm counts active assignments for a school and term.
func (r *AssignmentRepository) CountActiveForSchoolTerm(ctx context.Context, schoolID, termID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assignments WHERE school_id = $1 AND term_id = $2 AND status = 'ACTIVE'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, schoolID, termID); err != nil {
		return 0, fmt.Errorf("count active assignments: %w", err)
	}
	return count, nil
}

// CreateWithinQuota inserts an active assignment after re-checking the
// one-active-per-student rule and the school quota inside one transaction.
// The school_term_quotas row is locked first and serializes every concurrent
// application for the same school and term, so the active count cannot grow
// between the re-read and the insert.
func (r *AssignmentRepository) CreateWithinQuota(ctx context.Context, assignment *models.Assignment) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var quota int
	if err = tx.GetContext(ctx, &quota, `SELECT quota FROM school_term_quotas WHERE school_id = $1 AND term_id = $2 FOR UPDATE`, assignment.SchoolID, assignment.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNoQuota
			return err
		}
		return fmt.Errorf("lock school quota: %w", err)
	}

	var ids []string
	if err = tx.SelectContext(ctx, &ids, `SELECT id FROM assignments WHERE student_id = $1 AND status = 'ACTIVE' FOR UPDATE`, assignment.StudentID); err != nil {
		return fmt.Errorf("lock student assignments: %w", err)
	}
	if len(ids) > 0 {
		err = ErrDuplicateActive
		return err
	}

	var active int
	if err = tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM assignments WHERE school_id = $1 AND term_id = $2 AND status = 'ACTIVE'`, assignment.SchoolID, assignment.TermID); err != nil {
		return fmt.Errorf("count active assignments: %w", err)
	}
	if active >= quota {
		err = ErrQuotaSaturated
		return err
	}

	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	if assignment.EnrollmentDate.IsZero() {
		assignment.EnrollmentDate = now
	}
	assignment.Status = models.AssignmentStatusActive

	const insertQuery = `INSERT INTO assignments (id, student_id, school_id, teacher_id, term_id, enrollment_date, status, notes, created_at, updated_at)
VALUES (:id, :student_id, :school_id, :teacher_id, :term_id, :enrollment_date, :status, :notes, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, assignment); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment tx: %w", err)
	}
	return nil
}

// SetTeacher binds a mentor teacher to the assignment.
func (r *AssignmentRepository) SetTeacher(ctx context.Context, id, teacherID string) error {
	const query = `UPDATE assignments SET teacher_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, teacherID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set assignment teacher: %w", err)
	}
	return nil
}

// UpdateStatus transitions the assignment lifecycle status.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, notes string) error {
	const query = `UPDATE assignments SET status = $2, notes = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, notes, time.Now().UTC()); err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	return nil
}

// HasTeachingRecords reports whether any lesson plan or teaching session
// references the assignment. Consulted before cancellation.
func (r *AssignmentRepository) HasTeachingRecords(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 WHERE EXISTS (SELECT 1 FROM lesson_plans WHERE assignment_id = $1) OR EXISTS (SELECT 1 FROM teaching_sessions WHERE assignment_id = $1)`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teaching records: %w", err)
	}
	return true, nil
}

// HasCompletionRequests reports whether any completion request, in any
// state, references the assignment.
func (r *AssignmentRepository) HasCompletionRequests(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM completion_requests WHERE assignment_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check completion requests: %w", err)
	}
	return true, nil
}
