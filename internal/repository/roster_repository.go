package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ppl-internship-api/internal/models"
)

// RosterRepository handles persistence for teacher-school roster entries.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository instantiates a roster repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListBySchool returns roster entries for a school and term.
func (r *RosterRepository) ListBySchool(ctx context.Context, schoolID, termID string) ([]models.RosterEntryDetail, error) {
	const query = `SELECT re.id, re.school_id, re.teacher_id, re.term_id, re.is_primary, re.created_at,
s.name AS school_name, u.full_name AS teacher_name, t.name AS term_name
FROM roster_entries re
JOIN schools s ON s.id = re.school_id
JOIN users u ON u.id = re.teacher_id
JOIN terms t ON t.id = re.term_id
WHERE re.school_id = $1 AND re.term_id = $2
ORDER BY re.created_at`
	var entries []models.RosterEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, schoolID, termID); err != nil {
		return nil, fmt.Errorf("list roster entries: %w", err)
	}
	return entries, nil
}

// FindByID loads a roster entry by identifier.
func (r *RosterRepository) FindByID(ctx context.Context, id string) (*models.RosterEntry, error) {
	const query = `SELECT id, school_id, teacher_id, term_id, is_primary, created_at FROM roster_entries WHERE id = $1`
	var entry models.RosterEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ExistsForTeacherInTerm reports whether the teacher already holds a roster
// entry for the term, at any school.
func (r *RosterRepository) ExistsForTeacherInTerm(ctx context.Context, teacherID, termID string) (bool, error) {
	const query = `SELECT 1 FROM roster_entries WHERE teacher_id = $1 AND term_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, termID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher roster: %w", err)
	}
	return true, nil
}

// ExistsAtSchool reports whether the teacher is rostered at the school for
// the term. Consulted before binding a mentor to an assignment.
func (r *RosterRepository) ExistsAtSchool(ctx context.Context, teacherID, schoolID, termID string) (bool, error) {
	const query = `SELECT 1 FROM roster_entries WHERE teacher_id = $1 AND school_id = $2 AND term_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, schoolID, termID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check school roster: %w", err)
	}
	return true, nil
}

// Create inserts a new roster entry.
func (r *RosterRepository) Create(ctx context.Context, entry *models.RosterEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO roster_entries (id, school_id, teacher_id, term_id, is_primary, created_at) VALUES (:id, :school_id, :teacher_id, :term_id, :is_primary, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create roster entry: %w", err)
	}
	return nil
}

// Delete removes a roster entry.
func (r *RosterRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM roster_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete roster entry: %w", err)
	}
	return nil
}

// CountAssignedStudents returns the number of active assignments mentored by
// the roster entry's teacher in its term.
func (r *RosterRepository) CountAssignedStudents(ctx context.Context, teacherID, termID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assignments WHERE teacher_id = $1 AND term_id = $2 AND status = 'ACTIVE'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID, termID); err != nil {
		return 0, fmt.Errorf("count assigned students: %w", err)
	}
	return count, nil
}
