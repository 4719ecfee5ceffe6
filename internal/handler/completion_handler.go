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

// CompletionHandler exposes completion request endpoints.
type CompletionHandler struct {
	service *service.CompletionService
}

// NewCompletionHandler constructs a completion handler.
func NewCompletionHandler(svc *service.CompletionService) *CompletionHandler {
	return &CompletionHandler{service: svc}
}

// List godoc
// @Summary List completion requests
// @Description Students see their own requests and teachers the requests they review; admins and supervisors see all
// @Tags Completions
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /completion-requests [get]
func (h *CompletionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}

	var filter models.CompletionFilter
	filter.AssignmentID = c.Query("assignmentId")
	filter.StudentID = c.Query("studentId")
	if status := c.Query("status"); status != "" {
		filter.Status = models.CompletionStatus(status)
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

	requests, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get completion request by ID
// @Tags Completions
// @Produce json
// @Param id path string true "Completion request ID"
// @Success 200 {object} response.Envelope
// @Router /completion-requests/{id} [get]
func (h *CompletionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	request, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Submit godoc
// @Summary Submit a completion request
// @Description Freezes the caller's teaching stats and opens the review workflow
// @Tags Completions
// @Accept json
// @Produce json
// @Param payload body service.SubmitCompletionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Router /completion-requests [post]
func (h *CompletionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.SubmitCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// TeacherReview godoc
// @Summary Record the mentor teacher's review
// @Description Approve forwards to supervisor review; reject closes; revise sends back to the student
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion request ID"
// @Param payload body service.TeacherReviewRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /completion-requests/{id}/teacher-review [post]
func (h *CompletionHandler) TeacherReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.TeacherReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.TeacherReview(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// SupervisorReview godoc
// @Summary Record the campus supervisor's review
// @Description Approval scores the rubric and completes the assignment in the same transaction
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion request ID"
// @Param payload body service.SupervisorReviewRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /completion-requests/{id}/supervisor-review [post]
func (h *CompletionHandler) SupervisorReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.SupervisorReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.SupervisorReview(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resubmit godoc
// @Summary Resubmit after revision
// @Description Refreshes the stats snapshot and reopens review for a request sent back for revision
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion request ID"
// @Param payload body service.SubmitCompletionRequest true "Resubmission payload"
// @Success 200 {object} response.Envelope
// @Router /completion-requests/{id}/resubmit [post]
func (h *CompletionHandler) Resubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	var req service.SubmitCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.Resubmit(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Delete godoc
// @Summary Withdraw a completion request
// @Description Only the owner may withdraw, and only before a teacher decision is recorded
// @Tags Completions
// @Produce json
// @Param id path string true "Completion request ID"
// @Success 204
// @Router /completion-requests/{id} [delete]
func (h *CompletionHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
