package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// ScheduleHandler manages the schedule aggregate endpoints: lifecycle,
// sessions, conflict reports, statistics, history and exports.
type ScheduleHandler struct {
	service   *service.ScheduleService
	changeLog *service.ChangeLogService
	export    *service.ExportService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService, changeLog *service.ChangeLogService, export *service.ExportService) *ScheduleHandler {
	return &ScheduleHandler{service: svc, changeLog: changeLog, export: export}
}

// Create godoc
// @Summary Create a draft schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.CreateScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules [post]
// @Security BearerAuth
func (h *ScheduleHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param academicYearId query string false "Academic year filter"
// @Param institutionId query string false "Institution filter"
// @Param gradeId query string false "Grade filter"
// @Param scheduleType query string false "Type filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
// @Security BearerAuth
func (h *ScheduleHandler) List(c *gin.Context) {
	var query dto.ScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	schedules, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Get godoc
// @Summary Get one schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
// @Security BearerAuth
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Sessions godoc
// @Summary List a schedule's sessions
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/sessions [get]
// @Security BearerAuth
func (h *ScheduleHandler) Sessions(c *gin.Context) {
	sessions, err := h.service.Sessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// AddSession godoc
// @Summary Book a session into a draft schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.AddSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedules/{id}/sessions [post]
// @Security BearerAuth
func (h *ScheduleHandler) AddSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AddSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.AddSession(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// CancelSession godoc
// @Summary Cancel a booked session
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Param sessionId path string true "Session ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id}/sessions/{sessionId} [delete]
// @Security BearerAuth
func (h *ScheduleHandler) CancelSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.CancelSession(c.Request.Context(), c.Param("id"), c.Param("sessionId"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DetectConflicts godoc
// @Summary Run conflict detection across a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/conflicts [get]
// @Security BearerAuth
func (h *ScheduleHandler) DetectConflicts(c *gin.Context) {
	conflicts, err := h.service.DetectConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// Validate godoc
// @Summary Build a validation report for a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/validate [get]
// @Security BearerAuth
func (h *ScheduleHandler) Validate(c *gin.Context) {
	report, err := h.service.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// SubmitForReview godoc
// @Summary Submit a draft schedule for review
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/submit [post]
// @Security BearerAuth
func (h *ScheduleHandler) SubmitForReview(c *gin.Context) {
	h.transition(c, h.service.SubmitForReview)
}

// StartReview godoc
// @Summary Claim a submitted schedule for review
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/review [post]
// @Security BearerAuth
func (h *ScheduleHandler) StartReview(c *gin.Context) {
	h.transition(c, h.service.StartReview)
}

// Approve godoc
// @Summary Approve a reviewed schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/approve [post]
// @Security BearerAuth
func (h *ScheduleHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a schedule back to draft
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.RejectScheduleRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/{id}/reject [post]
// @Security BearerAuth
func (h *ScheduleHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Activate godoc
// @Summary Activate an approved schedule
// @Description Supersedes any other active schedule for the same grade and academic year.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/activate [post]
// @Security BearerAuth
func (h *ScheduleHandler) Activate(c *gin.Context) {
	h.transition(c, h.service.Activate)
}

// Suspend godoc
// @Summary Suspend an active schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.SuspendScheduleRequest true "Suspension reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/{id}/suspend [post]
// @Security BearerAuth
func (h *ScheduleHandler) Suspend(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SuspendScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.Suspend(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Archive godoc
// @Summary Archive a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/archive [post]
// @Security BearerAuth
func (h *ScheduleHandler) Archive(c *gin.Context) {
	h.transition(c, h.service.Archive)
}

// Copy godoc
// @Summary Deep-copy a schedule into a fresh draft
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Source schedule ID"
// @Param payload body dto.CopyScheduleRequest true "Copy overrides"
// @Success 201 {object} response.Envelope
// @Router /schedules/{id}/copy [post]
// @Security BearerAuth
func (h *ScheduleHandler) Copy(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CopyScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.CreateCopy(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Statistics godoc
// @Summary Utilization and distribution statistics
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/statistics [get]
// @Security BearerAuth
func (h *ScheduleHandler) Statistics(c *gin.Context) {
	stats, fromCache, err := h.service.Statistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, fromCache)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// History godoc
// @Summary Change history of a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/history [get]
// @Security BearerAuth
func (h *ScheduleHandler) History(c *gin.Context) {
	entries, err := h.changeLog.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Export godoc
// @Summary Export the timetable as CSV or PDF
// @Tags Schedules
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Schedule ID"
// @Param format path string true "csv or pdf"
// @Success 200 {file} file
// @Router /schedules/{id}/export/{format} [get]
// @Security BearerAuth
func (h *ScheduleHandler) Export(c *gin.Context) {
	var data []byte
	var filename, contentType string
	var err error
	switch c.Param("format") {
	case "csv":
		data, filename, err = h.export.TimetableCSV(c.Request.Context(), c.Param("id"))
		contentType = "text/csv"
	case "pdf":
		data, filename, err = h.export.TimetablePDF(c.Request.Context(), c.Param("id"))
		contentType = "application/pdf"
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// ArchiveExport godoc
// @Summary Render, store and sign a timetable export
// @Description Returns a signed token valid for a limited time; redeem it at /exports/download.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param format path string true "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /schedules/{id}/export/{format}/archive [post]
// @Security BearerAuth
func (h *ScheduleHandler) ArchiveExport(c *gin.Context) {
	archived, err := h.export.ArchiveTimetable(c.Request.Context(), c.Param("id"), c.Param("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, archived)
}

// DownloadExport godoc
// @Summary Download an archived export by signed token
// @Tags Schedules
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /exports/download [get]
func (h *ScheduleHandler) DownloadExport(c *gin.Context) {
	file, filename, err := h.export.OpenArchived(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to stat export"))
		return
	}
	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(filename, ".csv"):
		contentType = "text/csv"
	case strings.HasSuffix(filename, ".pdf"):
		contentType = "application/pdf"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}

type transitionFunc func(ctx context.Context, scheduleID, actorID string) (*models.Schedule, error)

func (h *ScheduleHandler) transition(c *gin.Context, fn transitionFunc) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	schedule, err := fn(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}
