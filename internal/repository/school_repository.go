package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ppl-internship-api/internal/models"
)

// SchoolRepository handles persistence for partner schools and their
// per-term placement quotas.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository instantiates a school repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// List returns schools matching provided filters.
func (r *SchoolRepository) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error) {
	base := "FROM schools WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"name": true, "created_at": true, "updated_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT id, name, address, phone, active, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)

	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schools: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schools: %w", err)
	}

	return schools, total, nil
}

// FindByID loads a school by identifier.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, name, address, phone, active, created_at, updated_at FROM schools WHERE id = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// Create inserts a new school record.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if school.CreatedAt.IsZero() {
		school.CreatedAt = now
	}
	school.UpdatedAt = now

	const query = `INSERT INTO schools (id, name, address, phone, active, created_at, updated_at) VALUES (:id, :name, :address, :phone, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// Update modifies an existing school.
func (r *SchoolRepository) Update(ctx context.Context, school *models.School) error {
	school.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schools SET name = :name, address = :address, phone = :phone, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("update school: %w", err)
	}
	return nil
}

// FindQuota returns the configured quota for a school and term.
func (r *SchoolRepository) FindQuota(ctx context.Context, schoolID, termID string) (*models.SchoolTermQuota, error) {
	const query = `SELECT school_id, term_id, quota, updated_at FROM school_term_quotas WHERE school_id = $1 AND term_id = $2`
	var quota models.SchoolTermQuota
	if err := r.db.GetContext(ctx, &quota, query, schoolID, termID); err != nil {
		return nil, err
	}
	return &quota, nil
}

// UpsertQuota writes the quota configuration for a school and term.
func (r *SchoolRepository) UpsertQuota(ctx context.Context, quota *models.SchoolTermQuota) error {
	quota.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO school_term_quotas (school_id, term_id, quota, updated_at) VALUES (:school_id, :term_id, :quota, :updated_at)
ON CONFLICT (school_id, term_id) DO UPDATE SET quota = EXCLUDED.quota, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, quota); err != nil {
		return fmt.Errorf("upsert school quota: %w", err)
	}
	return nil
}

// HasQuota reports whether a quota row exists for the school and term.
func (r *SchoolRepository) HasQuota(ctx context.Context, schoolID, termID string) (bool, error) {
	const query = `SELECT 1 FROM school_term_quotas WHERE school_id = $1 AND term_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, schoolID, termID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check school quota: %w", err)
	}
	return true, nil
}
