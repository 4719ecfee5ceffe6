package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

type schoolRepository interface {
	List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	Update(ctx context.Context, school *models.School) error
	FindQuota(ctx context.Context, schoolID, termID string) (*models.SchoolTermQuota, error)
	UpsertQuota(ctx context.Context, quota *models.SchoolTermQuota) error
	HasQuota(ctx context.Context, schoolID, termID string) (bool, error)
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type assignmentCounter interface {
	CountActiveForSchoolTerm(ctx context.Context, schoolID, termID string) (int, error)
}

// CreateSchoolRequest describes school registration payload.
type CreateSchoolRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	Phone   string `json:"phone"`
}

// UpdateSchoolRequest describes school update payload.
type UpdateSchoolRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	Phone   string `json:"phone"`
	Active  *bool  `json:"active" validate:"required"`
}

// ConfigureQuotaRequest caps a school's capacity for a term.
type ConfigureQuotaRequest struct {
	TermID string `json:"term_id" validate:"required"`
	Quota  int    `json:"quota" validate:"required,min=1"`
}

// SchoolCapacity reports quota usage for a school and term.
type SchoolCapacity struct {
	SchoolID    string `json:"school_id"`
	TermID      string `json:"term_id"`
	Quota       int    `json:"quota"`
	ActiveCount int    `json:"active_count"`
	Remaining   int    `json:"remaining"`
}

// SchoolService orchestrates partner school management.
type SchoolService struct {
	repo        schoolRepository
	terms       termReader
	assignments assignmentCounter
	audit       auditWriter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSchoolService constructs SchoolService.
func NewSchoolService(repo schoolRepository, terms termReader, assignments assignmentCounter, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolService{repo: repo, terms: terms, assignments: assignments, audit: audit, validator: validate, logger: logger}
}

// List returns schools with pagination metadata.
func (s *SchoolService) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, *models.Pagination, error) {
	schools, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return schools, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a single school.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// Create registers a new partner school.
func (s *SchoolService) Create(ctx context.Context, req CreateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	school := &models.School{
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
		Active:  true,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}
	return school, nil
}

// Update modifies an existing school.
func (s *SchoolService) Update(ctx context.Context, id string, req UpdateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	school.Name = req.Name
	school.Address = req.Address
	school.Phone = req.Phone
	school.Active = *req.Active

	if err := s.repo.Update(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update school")
	}
	return school, nil
}

// ConfigureQuota sets the school's placement quota for a term. Lowering the
// quota below current usage is allowed; existing placements are not evicted,
// only new applications are blocked.
func (s *SchoolService) ConfigureQuota(ctx context.Context, schoolID string, req ConfigureQuotaRequest, actorID string) (*models.SchoolTermQuota, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quota payload")
	}
	if _, err := s.repo.FindByID(ctx, schoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	quota := &models.SchoolTermQuota{
		SchoolID: schoolID,
		TermID:   req.TermID,
		Quota:    req.Quota,
	}
	if err := s.repo.UpsertQuota(ctx, quota); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to configure quota")
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionQuotaConfigure,
			Resource:   "schools",
			ResourceID: &schoolID,
			NewValues:  []byte(fmt.Sprintf(`{"term_id":%q,"quota":%d}`, req.TermID, req.Quota)),
		}); err != nil {
			s.logger.Warn("failed to record quota audit log", zap.Error(err))
		}
	}
	return quota, nil
}

// Capacity reports quota usage for a school and term.
func (s *SchoolService) Capacity(ctx context.Context, schoolID, termID string) (*SchoolCapacity, error) {
	quota, err := s.repo.FindQuota(ctx, schoolID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no quota configured for school and term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quota")
	}

	active, err := s.assignments.CountActiveForSchoolTerm(ctx, schoolID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active placements")
	}

	remaining := quota.Quota - active
	if remaining < 0 {
		remaining = 0
	}
	return &SchoolCapacity{
		SchoolID:    schoolID,
		TermID:      termID,
		Quota:       quota.Quota,
		ActiveCount: active,
		Remaining:   remaining,
	}, nil
}
