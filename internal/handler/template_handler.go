package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// TemplateHandler manages the generation blueprint endpoints.
type TemplateHandler struct {
	service *service.ScheduleTemplateService
}

// NewTemplateHandler constructs handler.
func NewTemplateHandler(svc *service.ScheduleTemplateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// Create godoc
// @Summary Author a new template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /templates [post]
// @Security BearerAuth
func (h *TemplateHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	template, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// Get godoc
// @Summary Get one template
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /templates/{id} [get]
// @Security BearerAuth
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// List godoc
// @Summary List an institution's templates
// @Tags Templates
// @Produce json
// @Param institutionId query string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /templates [get]
// @Security BearerAuth
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.service.List(c.Request.Context(), c.Query("institutionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// UpdateStatus godoc
// @Summary Move a template along its lifecycle
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.UpdateTemplateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /templates/{id}/status [patch]
// @Security BearerAuth
func (h *TemplateHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateTemplateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	template, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), models.TemplateStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Fork godoc
// @Summary Fork a template into a new version
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Source template ID"
// @Param payload body dto.ForkTemplateRequest true "Fork overrides"
// @Success 201 {object} response.Envelope
// @Router /templates/{id}/fork [post]
// @Security BearerAuth
func (h *TemplateHandler) Fork(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ForkTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	template, err := h.service.Fork(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// Generate godoc
// @Summary Generate a draft schedule from a template
// @Description Greedy placement; subjects that could not be fully placed are listed in meta.unplaced.
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.GenerateFromTemplateRequest true "Generation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /templates/generate [post]
// @Security BearerAuth
func (h *TemplateHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GenerateFromTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, unplaced, err := h.service.GenerateSchedule(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if len(unplaced) > 0 {
		meta = map[string]interface{}{"unplaced": unplaced}
	}
	response.JSON(c, http.StatusCreated, schedule, nil, meta)
}
