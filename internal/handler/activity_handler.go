package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/service"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/response"
)

// ActivityHandler exposes teaching ledger endpoints: lesson plans,
// teaching sessions, attachments, and aggregate stats.
type ActivityHandler struct {
	service *service.ActivityService
}

// NewActivityHandler constructs an activity handler.
func NewActivityHandler(svc *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

func (h *ActivityHandler) buildFilter(c *gin.Context) (models.ActivityFilter, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.ActivityFilter{}, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}

	var filter models.ActivityFilter
	filter.AssignmentID = c.Query("assignmentId")
	filter.StudentID = c.Query("studentId")
	if status := c.Query("status"); status != "" {
		filter.Status = models.ActivityStatus(status)
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	if claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}
	return filter, nil
}

// ListLessonPlans godoc
// @Summary List lesson plans
// @Tags Activities
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lesson-plans [get]
func (h *ActivityHandler) ListLessonPlans(c *gin.Context) {
	filter, err := h.buildFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	plans, pagination, err := h.service.ListLessonPlans(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, pagination)
}

// CreateLessonPlan godoc
// @Summary Create lesson plan
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body service.LessonPlanRequest true "Lesson plan payload"
// @Success 201 {object} response.Envelope
// @Router /lesson-plans [post]
func (h *ActivityHandler) CreateLessonPlan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.LessonPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	plan, err := h.service.CreateLessonPlan(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// UpdateLessonPlan godoc
// @Summary Update lesson plan
// @Description Only the owning student may update, and only before review
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Lesson plan ID"
// @Param payload body service.LessonPlanRequest true "Lesson plan payload"
// @Success 200 {object} response.Envelope
// @Router /lesson-plans/{id} [put]
func (h *ActivityHandler) UpdateLessonPlan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.LessonPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	plan, err := h.service.UpdateLessonPlan(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// DeleteLessonPlan godoc
// @Summary Delete lesson plan
// @Tags Activities
// @Produce json
// @Param id path string true "Lesson plan ID"
// @Success 204
// @Router /lesson-plans/{id} [delete]
func (h *ActivityHandler) DeleteLessonPlan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	if err := h.service.DeleteLessonPlan(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSessions godoc
// @Summary List teaching sessions
// @Tags Activities
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *ActivityHandler) ListSessions(c *gin.Context) {
	filter, err := h.buildFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	sessions, pagination, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// CreateSession godoc
// @Summary Record a teaching session
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body service.TeachingSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *ActivityHandler) CreateSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.TeachingSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// UpdateSession godoc
// @Summary Update a teaching session
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.TeachingSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *ActivityHandler) UpdateSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.TeachingSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.UpdateSession(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// DeleteSession godoc
// @Summary Delete a teaching session
// @Tags Activities
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *ActivityHandler) DeleteSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	if err := h.service.DeleteSession(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Aggregate teaching stats
// @Description Total hours, lesson plans, and sessions for a student's ledger
// @Tags Activities
// @Produce json
// @Param studentId query string false "Student ID (defaults to caller for students)"
// @Success 200 {object} response.Envelope
// @Router /activities/stats [get]
func (h *ActivityHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	studentID := c.Query("studentId")
	if claims.Role == models.RoleStudent || studentID == "" {
		studentID = claims.UserID
	}
	stats, err := h.service.Stats(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// StudentStats godoc
// @Summary Aggregate teaching stats for a specific student
// @Tags Activities
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/activity/stats [get]
func (h *ActivityHandler) StudentStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// UploadAttachment godoc
// @Summary Upload an attachment
// @Tags Activities
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Router /attachments [post]
func (h *ActivityHandler) UploadAttachment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	attachment, err := h.service.UploadAttachment(c.Request.Context(), claims.UserID, service.UploadAttachmentInput{
		FileName:  fileHeader.Filename,
		MIMEType:  fileHeader.Header.Get("Content-Type"),
		SizeBytes: fileHeader.Size,
		Reader:    src,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// AttachmentURL godoc
// @Summary Get a signed download URL
// @Description Students may only sign their own attachments
// @Tags Activities
// @Produce json
// @Param id path string true "Attachment ID"
// @Success 200 {object} response.Envelope
// @Router /attachments/{id}/url [get]
func (h *ActivityHandler) AttachmentURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	download, err := h.service.AttachmentURL(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// DownloadAttachment godoc
// @Summary Download an attachment by signed token
// @Tags Activities
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /attachments/download [get]
func (h *ActivityHandler) DownloadAttachment(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	attachment, file, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", attachment.FileName))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, attachment.SizeBytes, attachment.MIMEType, file, nil)
}
