package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/service"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/response"
)

// AssignmentHandler exposes placement assignment endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// List godoc
// @Summary List placement assignments
// @Description Students see their own assignments and teachers the students they mentor; admins and supervisors see all
// @Tags Assignments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param schoolId query string false "Filter by school"
// @Param teacherId query string false "Filter by mentor teacher"
// @Param termId query string false "Filter by term"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}

	var filter models.AssignmentFilter
	filter.StudentID = c.Query("studentId")
	filter.SchoolID = c.Query("schoolId")
	filter.TeacherID = c.Query("teacherId")
	filter.TermID = c.Query("termId")
	if status := c.Query("status"); status != "" {
		filter.Status = models.AssignmentStatus(status)
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	switch claims.Role {
	case models.RoleStudent:
		filter.StudentID = claims.UserID
	case models.RoleTeacher:
		filter.TeacherID = claims.UserID
	}

	assignments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, pagination)
}

// Get godoc
// @Summary Get assignment by ID
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// GetMine godoc
// @Summary Get the caller's active assignment
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assignments/me [get]
func (h *AssignmentHandler) GetMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	assignment, err := h.service.GetMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Apply godoc
// @Summary Apply for a placement
// @Description Creates an active placement at a school for the current term, subject to quota
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.ApplyRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/apply [post]
func (h *AssignmentHandler) Apply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.Apply(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// AssignTeacher godoc
// @Summary Assign a mentor teacher
// @Description The teacher must be rostered at the assignment's school for its term
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.AssignTeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/assign-teacher [post]
func (h *AssignmentHandler) AssignTeacher(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.AssignTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.AssignTeacher(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Cancel godoc
// @Summary Cancel an assignment
// @Description Blocked once teaching records or completion requests exist
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.CancelAssignmentRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/cancel [post]
func (h *AssignmentHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.CancelAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
