package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// TeacherSubjectHandler manages the qualification ledger endpoints.
type TeacherSubjectHandler struct {
	service *service.TeacherSubjectService
}

// NewTeacherSubjectHandler constructs handler.
func NewTeacherSubjectHandler(svc *service.TeacherSubjectService) *TeacherSubjectHandler {
	return &TeacherSubjectHandler{service: svc}
}

// Upsert godoc
// @Summary Create or replace a qualification
// @Tags TeacherSubjects
// @Accept json
// @Produce json
// @Param payload body dto.UpsertTeacherSubjectRequest true "Qualification payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teacher-subjects [put]
// @Security BearerAuth
func (h *TeacherSubjectHandler) Upsert(c *gin.Context) {
	var req dto.UpsertTeacherSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	ts, err := h.service.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ts)
}

// Get godoc
// @Summary Get one qualification
// @Tags TeacherSubjects
// @Produce json
// @Param id path string true "Qualification ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teacher-subjects/{id} [get]
// @Security BearerAuth
func (h *TeacherSubjectHandler) Get(c *gin.Context) {
	ts, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ts, nil)
}

// ListByTeacher godoc
// @Summary List a teacher's qualifications
// @Tags TeacherSubjects
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/subjects [get]
// @Security BearerAuth
func (h *TeacherSubjectHandler) ListByTeacher(c *gin.Context) {
	list, err := h.service.ListByTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Qualified godoc
// @Summary Ranked qualified teachers for a subject and grade
// @Tags TeacherSubjects
// @Produce json
// @Param subjectId query string true "Subject ID"
// @Param gradeLevel query int true "Grade level"
// @Success 200 {object} response.Envelope
// @Router /teacher-subjects/qualified [get]
// @Security BearerAuth
func (h *TeacherSubjectHandler) Qualified(c *gin.Context) {
	var query dto.QualifiedTeachersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	list, err := h.service.QualifiedTeachers(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// WeeklyWorkload godoc
// @Summary Weekly workload summary for a qualification
// @Tags TeacherSubjects
// @Produce json
// @Param id path string true "Qualification ID"
// @Success 200 {object} response.Envelope
// @Router /teacher-subjects/{id}/workload [get]
// @Security BearerAuth
func (h *TeacherSubjectHandler) WeeklyWorkload(c *gin.Context) {
	summary, err := h.service.WeeklyWorkload(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// DailyWorkload godoc
// @Summary One weekday's workload breakdown for a qualification
// @Tags TeacherSubjects
// @Produce json
// @Param id path string true "Qualification ID"
// @Param day query int true "ISO weekday 1-7"
// @Success 200 {object} response.Envelope
// @Router /teacher-subjects/{id}/workload/daily [get]
// @Security BearerAuth
func (h *TeacherSubjectHandler) DailyWorkload(c *gin.Context) {
	day, err := strconv.Atoi(c.Query("day"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "day must be an integer between 1 and 7"))
		return
	}
	workload, err := h.service.DailyWorkload(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workload, nil)
}

// Evaluate godoc
// @Summary Evaluate a candidate session against the qualification gate
// @Tags TeacherSubjects
// @Accept json
// @Produce json
// @Param payload body dto.SessionCandidate true "Candidate session"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teacher-subjects/evaluate [post]
// @Security BearerAuth
func (h *TeacherSubjectHandler) Evaluate(c *gin.Context) {
	var candidate dto.SessionCandidate
	if err := c.ShouldBindJSON(&candidate); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	evaluation, err := h.service.EvaluateAssignment(c.Request.Context(), candidate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}
