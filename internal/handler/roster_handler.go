package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ppl-internship-api/internal/service"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/response"
)

// RosterHandler exposes mentor roster endpoints.
type RosterHandler struct {
	service *service.RosterService
}

// NewRosterHandler constructs a roster handler.
func NewRosterHandler(svc *service.RosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

// ListBySchool godoc
// @Summary List mentor teachers rostered at a school
// @Tags Rosters
// @Produce json
// @Param id path string true "School ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /schools/{id}/roster [get]
func (h *RosterHandler) ListBySchool(c *gin.Context) {
	termID := c.Query("termId")
	if termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "termId query parameter is required"))
		return
	}
	entries, err := h.service.ListBySchool(c.Request.Context(), c.Param("id"), termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Add godoc
// @Summary Roster a mentor teacher at a school
// @Tags Rosters
// @Accept json
// @Produce json
// @Param id path string true "School ID"
// @Param payload body service.AddRosterEntryRequest true "Roster payload"
// @Success 201 {object} response.Envelope
// @Router /schools/{id}/roster [post]
func (h *RosterHandler) Add(c *gin.Context) {
	var req service.AddRosterEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.service.Add(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Remove godoc
// @Summary Remove a roster entry
// @Description Fails while the teacher still mentors active placements in the term
// @Tags Rosters
// @Produce json
// @Param id path string true "Roster entry ID"
// @Success 204
// @Router /roster/{id} [delete]
func (h *RosterHandler) Remove(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
