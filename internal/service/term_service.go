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
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

const activeTermCacheKey = "terms:active"

type termRepository interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error)
	FindByID(ctx context.Context, id string) (*models.Term, error)
	FindActive(ctx context.Context) (*models.Term, error)
	ExistsByYearAndSemester(ctx context.Context, academicYear string, semester models.Semester, excludeID string) (bool, error)
	Create(ctx context.Context, term *models.Term) error
	Update(ctx context.Context, term *models.Term) error
	SetActive(ctx context.Context, id string) error
	CountAssignments(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

type termCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateTermRequest describes term creation payload.
type CreateTermRequest struct {
	Name              string    `json:"name" validate:"required"`
	AcademicYear      string    `json:"academic_year" validate:"required"`
	Semester          string    `json:"semester" validate:"required,oneof=ODD EVEN"`
	StartDate         time.Time `json:"start_date" validate:"required"`
	EndDate           time.Time `json:"end_date" validate:"required"`
	RegistrationStart time.Time `json:"registration_start" validate:"required"`
	RegistrationEnd   time.Time `json:"registration_end" validate:"required"`
}

// UpdateTermRequest describes term update payload.
type UpdateTermRequest struct {
	Name              string    `json:"name" validate:"required"`
	AcademicYear      string    `json:"academic_year" validate:"required"`
	Semester          string    `json:"semester" validate:"required,oneof=ODD EVEN"`
	StartDate         time.Time `json:"start_date" validate:"required"`
	EndDate           time.Time `json:"end_date" validate:"required"`
	RegistrationStart time.Time `json:"registration_start" validate:"required"`
	RegistrationEnd   time.Time `json:"registration_end" validate:"required"`
}

// TermService orchestrates academic term workflows.
type TermService struct {
	repo      termRepository
	cache     termCache
	audit     auditWriter
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs TermService.
func NewTermService(repo termRepository, cache termCache, audit auditWriter, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &TermService{repo: repo, cache: cache, audit: audit, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns terms with pagination metadata.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.Term, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return terms, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a single term.
func (s *TermService) Get(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// GetActive returns the currently active term, served from cache when warm.
func (s *TermService) GetActive(ctx context.Context) (*models.Term, error) {
	if s.cache != nil {
		var cached models.Term
		if err := s.cache.Get(ctx, activeTermCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	term, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active term")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, activeTermCacheKey, term, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache active term", zap.Error(err))
		}
	}
	return term, nil
}

// Create registers a new term. Terms start inactive.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if err := validateTermWindow(req.StartDate, req.EndDate, req.RegistrationStart, req.RegistrationEnd); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByYearAndSemester(ctx, req.AcademicYear, models.Semester(req.Semester), "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate term uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "term already exists for academic year and semester")
	}

	term := &models.Term{
		Name:              req.Name,
		AcademicYear:      req.AcademicYear,
		Semester:          models.Semester(req.Semester),
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		RegistrationStart: req.RegistrationStart,
		RegistrationEnd:   req.RegistrationEnd,
		IsActive:          false,
	}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	return term, nil
}

// Update modifies an existing term.
func (s *TermService) Update(ctx context.Context, id string, req UpdateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if err := validateTermWindow(req.StartDate, req.EndDate, req.RegistrationStart, req.RegistrationEnd); err != nil {
		return nil, err
	}

	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	exists, err := s.repo.ExistsByYearAndSemester(ctx, req.AcademicYear, models.Semester(req.Semester), id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate term uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "term already exists for academic year and semester")
	}

	term.Name = req.Name
	term.AcademicYear = req.AcademicYear
	term.Semester = models.Semester(req.Semester)
	term.StartDate = req.StartDate
	term.EndDate = req.EndDate
	term.RegistrationStart = req.RegistrationStart
	term.RegistrationEnd = req.RegistrationEnd

	if err := s.repo.Update(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update term")
	}
	s.invalidateActiveCache(ctx)
	return term, nil
}

// Activate marks the term active and deactivates any other active term.
func (s *TermService) Activate(ctx context.Context, id string, actorID string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	if err := s.repo.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate term")
	}
	term.IsActive = true
	s.invalidateActiveCache(ctx)

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionTermActivate,
			Resource:   "terms",
			ResourceID: &id,
			NewValues:  []byte(fmt.Sprintf(`{"name":%q}`, term.Name)),
		}); err != nil {
			s.logger.Warn("failed to record term activation audit log", zap.Error(err))
		}
	}
	return term, nil
}

// Delete removes a term that has no assignments.
func (s *TermService) Delete(ctx context.Context, id string) error {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if term.IsActive {
		return appErrors.InvalidState("ACTIVE")
	}

	count, err := s.repo.CountAssignments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count term assignments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "term has assignments and cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete term")
	}
	return nil
}

func (s *TermService) invalidateActiveCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, activeTermCacheKey); err != nil {
		s.logger.Warn("failed to invalidate active term cache", zap.Error(err))
	}
}

func validateTermWindow(start, end, regStart, regEnd time.Time) error {
	if !start.Before(end) {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}
	if !regStart.Before(regEnd) {
		return appErrors.Clone(appErrors.ErrValidation, "registration_start must be before registration_end")
	}
	if regStart.After(end) {
		return appErrors.Clone(appErrors.ErrValidation, "registration window must not start after the term ends")
	}
	return nil
}
