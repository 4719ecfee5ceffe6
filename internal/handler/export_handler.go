package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/service"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/response"
)

// ExportHandler exposes report generation and signed-download endpoints.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// CompletionReport godoc
// @Summary Generate a completion report PDF
// @Description Renders the completion request with its frozen stats and review outcomes
// @Tags Exports
// @Produce json
// @Param id path string true "Completion request ID"
// @Success 200 {object} response.Envelope
// @Router /exports/completion-report/{id} [get]
func (h *ExportHandler) CompletionReport(c *gin.Context) {
	result, err := h.service.CompletionReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ActivityCSV godoc
// @Summary Export teaching sessions as CSV
// @Tags Exports
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /exports/activity [get]
func (h *ExportHandler) ActivityCSV(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var filter models.ActivityFilter
	filter.AssignmentID = c.Query("assignmentId")
	filter.StudentID = c.Query("studentId")
	if status := c.Query("status"); status != "" {
		filter.Status = models.ActivityStatus(status)
	}
	if claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}
	result, err := h.service.ActivityCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download an export by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, relPath, err := h.service.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".pdf":
		contentType = "application/pdf"
	case ".csv":
		contentType = "text/csv"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(relPath)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
