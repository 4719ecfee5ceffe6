package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/export"
	"github.com/noah-isme/ppl-internship-api/pkg/storage"
)

type completionDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.CompletionRequestDetail, error)
}

type sessionLister interface {
	ListSessions(ctx context.Context, filter models.ActivityFilter) ([]models.TeachingSession, int, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled   bool
	APIPrefix string
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string    `json:"relative_path"`
	Token        string    `json:"-"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExportService renders completion reports and activity ledgers into
// downloadable files.
type ExportService struct {
	completions completionDetailReader
	sessions    sessionLister
	storage     exportStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(completions completionDetailReader, sessions sessionLister, store exportStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		completions: completions,
		sessions:    sessions,
		storage:     store,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// CompletionReport renders the full review history of a completion request as
// a PDF and returns a signed download link.
func (s *ExportService) CompletionReport(ctx context.Context, requestID string) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "exports are disabled")
	}
	detail, err := s.completions.FindDetailByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "completion request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completion request")
	}

	dataset := buildCompletionDataset(detail)
	title := fmt.Sprintf("Internship Completion Report - %s", detail.StudentName)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render completion report")
	}

	filename := buildExportFilename("completion_report", detail.StudentName, "pdf")
	return s.store(requestID, filename, payload, "pdf")
}

// ActivityCSV renders the teaching ledger matching the filter as CSV rows.
func (s *ExportService) ActivityCSV(ctx context.Context, filter models.ActivityFilter) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "exports are disabled")
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 100
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	sessions, _, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching sessions")
	}

	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, map[string]string{
			"Session ID": session.ID,
			"Student ID": session.StudentID,
			"Topic":      session.Topic,
			"Class":      session.ClassName,
			"Start":      session.StartTime.UTC().Format(time.RFC3339),
			"End":        session.EndTime.UTC().Format(time.RFC3339),
			"Hours":      fmt.Sprintf("%.2f", session.EndTime.Sub(session.StartTime).Hours()),
			"Status":     string(session.Status),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Session ID", "Student ID", "Topic", "Class", "Start", "End", "Hours", "Status"},
		Rows:    rows,
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render activity ledger")
	}

	scope := filter.StudentID
	if scope == "" {
		scope = filter.AssignmentID
	}
	filename := buildExportFilename("activity_ledger", scope, "csv")
	return s.store(scope, filename, payload, "csv")
}

// ResolveDownload validates a signed token and opens the stored file.
func (s *ExportService) ResolveDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return file, relPath, nil
}

func (s *ExportService) store(resourceID, filename string, payload []byte, format string) (*ExportResult, error) {
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export file")
	}
	token, expiresAt, err := s.signer.Generate(resourceID, relPath)
	if err != nil {
		if cleanupErr := s.storage.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned export file", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download?token=%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

func buildCompletionDataset(detail *models.CompletionRequestDetail) export.Dataset {
	teacherName := "-"
	if detail.TeacherName != nil {
		teacherName = *detail.TeacherName
	}
	keyValues := [][2]string{
		{"Student", detail.StudentName},
		{"School", detail.SchoolName},
		{"Term", detail.TermName},
		{"Mentor Teacher", teacherName},
		{"Status", string(detail.Status)},
		{"Submitted At", detail.SubmittedAt.UTC().Format(time.RFC3339)},
		{"Total Hours", fmt.Sprintf("%.2f", detail.TotalHours)},
		{"Lesson Plans", fmt.Sprintf("%d", detail.TotalLessonPlans)},
		{"Teaching Sessions", fmt.Sprintf("%d", detail.TotalSessions)},
	}

	rows := []map[string]string{}
	if detail.TeacherDecision != nil {
		rows = append(rows, map[string]string{
			"Stage":       "Mentor Teacher",
			"Decision":    string(*detail.TeacherDecision),
			"Score":       formatOptionalInt(detail.TeacherScore),
			"Comments":    derefString(detail.TeacherComments),
			"Reviewed At": formatOptionalTime(detail.TeacherReviewedAt),
		})
	}
	if detail.SupervisorDecision != nil {
		score := "-"
		if detail.SupervisorTotal != nil && detail.SupervisorAverage != nil {
			score = fmt.Sprintf("%d (avg %.2f)", *detail.SupervisorTotal, *detail.SupervisorAverage)
		}
		rows = append(rows, map[string]string{
			"Stage":       "Campus Supervisor",
			"Decision":    string(*detail.SupervisorDecision),
			"Score":       score,
			"Comments":    derefString(detail.SupervisorComments),
			"Reviewed At": formatOptionalTime(detail.SupervisorReviewedAt),
		})
	}

	return export.Dataset{
		Headers:   []string{"Stage", "Decision", "Score", "Comments", "Reviewed At"},
		Rows:      rows,
		KeyValues: keyValues,
	}
}

func buildExportFilename(kind, scope, ext string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", kind, sanitizeFilename(scope), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatOptionalInt(ptr *int) string {
	if ptr == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *ptr)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
