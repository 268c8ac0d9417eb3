package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// AvailabilityHandler manages the availability calendar endpoints.
type AvailabilityHandler struct {
	service *service.TeacherAvailabilityService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc *service.TeacherAvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Create godoc
// @Summary Register an availability window
// @Description The window enters the approval workflow in pending state.
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.CreateAvailabilityRequest true "Availability payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability [post]
// @Security BearerAuth
func (h *AvailabilityHandler) Create(c *gin.Context) {
	var req dto.CreateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	window, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

// Approve godoc
// @Summary Approve a pending availability window
// @Tags Availability
// @Produce json
// @Param id path string true "Availability ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /availability/{id}/approve [post]
// @Security BearerAuth
func (h *AvailabilityHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	window, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// Reject godoc
// @Summary Reject a pending availability window
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Availability ID"
// @Param payload body dto.RejectAvailabilityRequest true "Rejection reason"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /availability/{id}/reject [post]
// @Security BearerAuth
func (h *AvailabilityHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Check godoc
// @Summary Check whether a teacher is free in a window
// @Tags Availability
// @Produce json
// @Param teacherId query string true "Teacher ID"
// @Param dayOfWeek query int true "ISO weekday 1-7"
// @Param startTime query string true "Window start HH:MM"
// @Param endTime query string true "Window end HH:MM"
// @Param date query string false "Concrete date YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /availability/check [get]
// @Security BearerAuth
func (h *AvailabilityHandler) Check(c *gin.Context) {
	var query dto.AvailabilityCheckQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	decision, err := h.service.CheckAvailability(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// WeeklySummary godoc
// @Summary Weekly availability calendar for a teacher
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
// @Security BearerAuth
func (h *AvailabilityHandler) WeeklySummary(c *gin.Context) {
	summary, err := h.service.WeeklySummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
