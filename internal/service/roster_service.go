package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

type rosterRepository interface {
	ListBySchool(ctx context.Context, schoolID, termID string) ([]models.RosterEntryDetail, error)
	FindByID(ctx context.Context, id string) (*models.RosterEntry, error)
	ExistsForTeacherInTerm(ctx context.Context, teacherID, termID string) (bool, error)
	ExistsAtSchool(ctx context.Context, teacherID, schoolID, termID string) (bool, error)
	Create(ctx context.Context, entry *models.RosterEntry) error
	Delete(ctx context.Context, id string) error
	CountAssignedStudents(ctx context.Context, teacherID, termID string) (int, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type schoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

// AddRosterEntryRequest registers a mentor teacher at a school for a term.
type AddRosterEntryRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	TermID    string `json:"term_id" validate:"required"`
	IsPrimary bool   `json:"is_primary"`
}

// RosterService manages per-term mentor teacher rosters.
type RosterService struct {
	repo      rosterRepository
	users     userReader
	schools   schoolReader
	terms     termReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService constructs RosterService.
func NewRosterService(repo rosterRepository, users userReader, schools schoolReader, terms termReader, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{repo: repo, users: users, schools: schools, terms: terms, validator: validate, logger: logger}
}

// ListBySchool returns the mentor roster for a school in a term.
func (s *RosterService) ListBySchool(ctx context.Context, schoolID, termID string) ([]models.RosterEntryDetail, error) {
	if schoolID == "" || termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school_id and term_id are required")
	}
	entries, err := s.repo.ListBySchool(ctx, schoolID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return entries, nil
}

// Add registers a teacher on a school's roster. A teacher may sit on only
// one school's roster per term.
func (s *RosterService) Add(ctx context.Context, schoolID string, req AddRosterEntryRequest) (*models.RosterEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster payload")
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
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher account is inactive")
	}

	if _, err := s.schools.FindByID(ctx, schoolID); err != nil {
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

	exists, err := s.repo.ExistsForTeacherInTerm(ctx, req.TeacherID, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roster")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher already rostered at a school for this term")
	}

	entry := &models.RosterEntry{
		SchoolID:  schoolID,
		TeacherID: req.TeacherID,
		TermID:    req.TermID,
		IsPrimary: req.IsPrimary,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create roster entry")
	}
	return entry, nil
}

// Remove deletes a roster entry unless the teacher still mentors students in
// that term.
func (s *RosterService) Remove(ctx context.Context, id string) error {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "roster entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster entry")
	}

	count, err := s.repo.CountAssignedStudents(ctx, entry.TeacherID, entry.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count mentored students")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "teacher still mentors students in this term")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete roster entry")
	}
	return nil
}
