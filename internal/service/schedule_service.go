package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type scheduleRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	UpdateWorkflow(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	SupersedeActiveInScope(ctx context.Context, exec sqlx.ExtContext, gradeID string, scheduleType models.ScheduleType, excludeID, reason string) ([]string, error)
	UpdateMetrics(ctx context.Context, id string, score float64, conflicts int, teacherUtil, roomUtil float64) error
}

type scheduleSessionRepository interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduleSession) error
	BulkInsert(ctx context.Context, tx *sqlx.Tx, sessions []models.ScheduleSession) error
	FindByID(ctx context.Context, id string) (*models.ScheduleSession, error)
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSession, error)
	ListActiveForTeacher(ctx context.Context, teacherID, excludeScheduleID string) ([]models.ScheduleSession, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, substituteTeacherID *string) error
	DeleteBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) error
}

type slotReader interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
}

type assignmentGate interface {
	EvaluateAssignment(ctx context.Context, candidate dto.SessionCandidate) (*models.AssignmentEvaluation, error)
}

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, query dto.AvailabilityCheckQuery) (*models.AvailabilityDecision, error)
}

type qualificationReader interface {
	FindActive(ctx context.Context, teacherID, subjectID string) (*models.TeacherSubject, error)
}

type auditRecorder interface {
	Record(scheduleID, action, actorID string, payload interface{})
}

type statisticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ScheduleServiceConfig governs aggregate behaviour.
type ScheduleServiceConfig struct {
	// CrossScheduleConflicts enables the cross-schedule teacher booking pass
	// during conflict detection. Off by default: the pairwise pass is scoped
	// to one schedule.
	CrossScheduleConflicts bool
	StatisticsCacheTTL     time.Duration
	MaxSessionsPerSchedule int
}

// ScheduleService owns the schedule aggregate: its lifecycle state machine,
// session membership, conflict detection and the advisory optimization score.
type ScheduleService struct {
	schedules      scheduleRepository
	sessions       scheduleSessionRepository
	slots          slotReader
	gate           assignmentGate
	availability   availabilityChecker
	qualifications qualificationReader
	audit          auditRecorder
	cache          statisticsCache
	tx             txProvider
	validator      *validator.Validate
	logger         *zap.Logger
	metrics        *MetricsService
	cfg            ScheduleServiceConfig
}

// NewScheduleService wires the aggregate dependencies.
func NewScheduleService(
	schedules scheduleRepository,
	sessions scheduleSessionRepository,
	slots slotReader,
	gate assignmentGate,
	availability availabilityChecker,
	qualifications qualificationReader,
	audit auditRecorder,
	cache statisticsCache,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleServiceConfig,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatisticsCacheTTL <= 0 {
		cfg.StatisticsCacheTTL = 5 * time.Minute
	}
	if cfg.MaxSessionsPerSchedule <= 0 {
		cfg.MaxSessionsPerSchedule = 400
	}
	return &ScheduleService{
		schedules:      schedules,
		sessions:       sessions,
		slots:          slots,
		gate:           gate,
		availability:   availability,
		qualifications: qualifications,
		audit:          audit,
		cache:          cache,
		tx:             tx,
		validator:      validate,
		logger:         logger,
		cfg:            cfg,
	}
}

// WithMetrics attaches the metrics sink. Optional; all recording calls are
// no-ops without it.
func (s *ScheduleService) WithMetrics(metrics *MetricsService) *ScheduleService {
	s.metrics = metrics
	return s
}

// scheduleTransitions is the lifecycle state machine. Any pair not listed is
// an illegal transition.
var scheduleTransitions = map[models.ScheduleStatus][]models.ScheduleStatus{
	models.ScheduleStatusDraft:         {models.ScheduleStatusPendingReview},
	models.ScheduleStatusRejected:      {models.ScheduleStatusPendingReview},
	models.ScheduleStatusPendingReview: {models.ScheduleStatusUnderReview},
	models.ScheduleStatusUnderReview:   {models.ScheduleStatusApproved, models.ScheduleStatusRejected},
	models.ScheduleStatusApproved:      {models.ScheduleStatusActive, models.ScheduleStatusArchived},
	models.ScheduleStatusActive:        {models.ScheduleStatusSuspended, models.ScheduleStatusArchived},
	models.ScheduleStatusSuspended:     {models.ScheduleStatusArchived},
}

func canTransition(from, to models.ScheduleStatus) bool {
	for _, next := range scheduleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Create opens a new draft schedule, versioned within its (grade, type) scope.
func (s *ScheduleService) Create(ctx context.Context, req dto.CreateScheduleRequest, creatorID string) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	effective, err := optionalDate(req.EffectiveDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "effectiveDate must be YYYY-MM-DD")
	}
	end, err := optionalDate(req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be YYYY-MM-DD")
	}
	if effective != nil && end != nil && !effective.Before(*end) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "effectiveDate must be before endDate")
	}

	schedule := &models.Schedule{
		Name:             req.Name,
		AcademicYearID:   req.AcademicYearID,
		InstitutionID:    req.InstitutionID,
		GradeID:          req.GradeID,
		ScheduleType:     models.ScheduleType(req.ScheduleType),
		EffectiveDate:    effective,
		EndDate:          end,
		WorkingDays:      toInt64Array(req.WorkingDays),
		Status:           models.ScheduleStatusDraft,
		GenerationMethod: models.GenerationManual,
		CreatedBy:        creatorID,
	}
	if err := s.schedules.Create(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	s.audit.Record(schedule.ID, models.ChangeActionCreated, creatorID, map[string]interface{}{
		"name":    schedule.Name,
		"gradeId": schedule.GradeID,
		"type":    schedule.ScheduleType,
		"version": schedule.Version,
	})
	return schedule, nil
}

// Get loads one schedule.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

// List returns schedules matching the query, newest first.
func (s *ScheduleService) List(ctx context.Context, query dto.ScheduleQuery) ([]models.Schedule, *models.Pagination, error) {
	filter := models.ScheduleFilter{
		AcademicYearID: query.AcademicYearID,
		InstitutionID:  query.InstitutionID,
		GradeID:        query.GradeID,
		ScheduleType:   models.ScheduleType(query.ScheduleType),
		Status:         models.ScheduleStatus(query.Status),
		Page:           query.Page,
		PageSize:       query.PageSize,
	}
	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return schedules, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Sessions lists a schedule's sessions in timetable order.
func (s *ScheduleService) Sessions(ctx context.Context, scheduleID string) ([]models.ScheduleSession, error) {
	if _, err := s.Get(ctx, scheduleID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// AddSession appends one session to a draft schedule. The qualification and
// availability gates are advisory here; the double-booking indexes are the
// hard guarantee, and their violation surfaces as a retryable conflict.
func (s *ScheduleService) AddSession(ctx context.Context, scheduleID string, req dto.AddSessionRequest, actorID string) (*models.ScheduleSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Status != models.ScheduleStatusDraft && schedule.Status != models.ScheduleStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("sessions can only be added while the schedule is draft or rejected, not %s", schedule.Status))
	}
	if !schedule.WorksOn(req.DayOfWeek) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("day %d is not a working day of this schedule", req.DayOfWeek))
	}

	existing, err := s.sessions.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if len(existing) >= s.cfg.MaxSessionsPerSchedule {
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("schedule already holds %d sessions", len(existing)))
	}

	slot, err := s.slots.FindByID(ctx, req.TimeSlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	if !slot.IsActive || !slot.IsTeachingPeriod {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time slot is not an active teaching period")
	}
	if !slot.ApplicableOn(req.DayOfWeek) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("time slot %s is not applicable on day %d", slot.Code, req.DayOfWeek))
	}

	evaluation, err := s.gate.EvaluateAssignment(ctx, dto.SessionCandidate{
		TeacherID:  req.TeacherID,
		SubjectID:  req.SubjectID,
		GradeLevel: req.GradeLevel,
		TimeSlotID: req.TimeSlotID,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  slot.StartTime,
		EndTime:    slot.EndTime,
	})
	if err != nil {
		return nil, err
	}
	if !evaluation.CanAssign {
		details := make([]string, 0, len(evaluation.Conflicts))
		for _, c := range evaluation.Conflicts {
			details = append(details, c.Message)
		}
		s.metrics.RecordSessionBooking("rejected")
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "teacher cannot take this session"), details)
	}

	decision, err := s.availability.CheckAvailability(ctx, dto.AvailabilityCheckQuery{
		TeacherID: req.TeacherID,
		DayOfWeek: req.DayOfWeek,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	})
	if err != nil {
		return nil, err
	}
	if !decision.IsAvailable {
		details := make([]string, 0, len(decision.Conflicts))
		for _, entry := range decision.Conflicts {
			details = append(details, fmt.Sprintf("%s %s-%s: %s", entry.Type, entry.StartTime, entry.EndTime, entry.Reason))
		}
		s.metrics.RecordSessionBooking("rejected")
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "teacher is unavailable in this window"), details)
	}

	periodNumber := req.PeriodNumber
	if periodNumber == 0 {
		periodNumber = slot.OrderIndex
	}
	sessionType := req.SessionType
	if sessionType == "" {
		sessionType = "regular"
	}
	session := &models.ScheduleSession{
		ScheduleID:      scheduleID,
		SubjectID:       req.SubjectID,
		TeacherID:       req.TeacherID,
		TimeSlotID:      req.TimeSlotID,
		DayOfWeek:       req.DayOfWeek,
		PeriodNumber:    periodNumber,
		StartTime:       slot.StartTime,
		EndTime:         slot.EndTime,
		DurationMinutes: slot.DurationMinutes,
		SessionType:     sessionType,
	}
	if req.RoomID != "" {
		session.RoomID = &req.RoomID
	}
	if err := s.sessions.Insert(ctx, nil, session); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert session")
	}

	s.audit.Record(scheduleID, models.ChangeActionSessionAdded, actorID, map[string]interface{}{
		"sessionId":  session.ID,
		"teacherId":  session.TeacherID,
		"subjectId":  session.SubjectID,
		"dayOfWeek":  session.DayOfWeek,
		"timeSlotId": session.TimeSlotID,
		"score":      evaluation.Score,
	})
	s.metrics.RecordSessionBooking("accepted")
	s.invalidateStatistics(ctx, scheduleID)
	return session, nil
}

// CancelSession cancels a session in place. Sessions are never deleted once
// the schedule left draft; cancelled sessions stop counting everywhere.
func (s *ScheduleService) CancelSession(ctx context.Context, scheduleID, sessionID, actorID string) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.ScheduleID != scheduleID {
		return appErrors.Clone(appErrors.ErrValidation, "session does not belong to this schedule")
	}
	if session.Status == models.SessionStatusCancelled {
		return appErrors.Clone(appErrors.ErrInvalidState, "session is already cancelled")
	}
	if err := s.sessions.UpdateStatus(ctx, sessionID, models.SessionStatusCancelled, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	s.audit.Record(scheduleID, models.ChangeActionSessionCanceled, actorID, map[string]interface{}{
		"sessionId": sessionID,
	})
	s.invalidateStatistics(ctx, scheduleID)
	return nil
}

// DetectConflicts runs the pairwise pass over the schedule's non-cancelled
// sessions, plus the optional cross-schedule teacher pass.
func (s *ScheduleService) DetectConflicts(ctx context.Context, scheduleID string) ([]models.Conflict, error) {
	if _, err := s.Get(ctx, scheduleID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	conflicts := detectPairwiseConflicts(sessions)
	if s.cfg.CrossScheduleConflicts {
		cross, err := s.crossScheduleConflicts(ctx, scheduleID, sessions)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, cross...)
	}
	for _, c := range conflicts {
		s.metrics.RecordConflict(string(c.Severity))
	}
	return conflicts, nil
}

// Validate runs the full validation pass and refreshes the stored metrics.
func (s *ScheduleService) Validate(ctx context.Context, scheduleID string) (*models.ValidationReport, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	conflicts := detectPairwiseConflicts(sessions)
	if s.cfg.CrossScheduleConflicts {
		cross, err := s.crossScheduleConflicts(ctx, scheduleID, sessions)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, cross...)
	}
	score := s.optimizationScore(ctx, schedule, sessions, conflicts)

	report := buildValidationReport(schedule, sessions, conflicts, score)

	teacherUtil, roomUtil := utilization(schedule, sessions)
	if err := s.schedules.UpdateMetrics(ctx, scheduleID, score, len(conflicts), teacherUtil, roomUtil); err != nil {
		s.logger.Warn("failed to persist schedule metrics", zap.String("scheduleId", scheduleID), zap.Error(err))
	}
	return report, nil
}

// SubmitForReview moves a draft or rejected schedule into the review queue.
// The full validation pass runs first; a failing report blocks the
// transition and is returned as error detail.
func (s *ScheduleService) SubmitForReview(ctx context.Context, scheduleID, actorID string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !canTransition(schedule.Status, models.ScheduleStatusPendingReview) {
		return nil, appErrors.InvalidTransition(string(schedule.Status), string(models.ScheduleStatusPendingReview))
	}
	report, err := s.Validate(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !report.IsValid {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "schedule failed validation"), report.Errors)
	}

	now := time.Now().UTC()
	schedule.Status = models.ScheduleStatusPendingReview
	schedule.SubmittedBy = &actorID
	schedule.SubmittedAt = &now
	schedule.RejectionReason = nil
	if err := s.schedules.UpdateWorkflow(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit schedule")
	}
	s.audit.Record(scheduleID, models.ChangeActionSubmitted, actorID, map[string]interface{}{
		"warnings": report.Warnings,
	})
	s.metrics.RecordTransition(string(schedule.Status))
	return schedule, nil
}

// StartReview claims a pending schedule for review.
func (s *ScheduleService) StartReview(ctx context.Context, scheduleID, reviewerID string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !canTransition(schedule.Status, models.ScheduleStatusUnderReview) {
		return nil, appErrors.InvalidTransition(string(schedule.Status), string(models.ScheduleStatusUnderReview))
	}
	now := time.Now().UTC()
	schedule.Status = models.ScheduleStatusUnderReview
	schedule.ReviewedBy = &reviewerID
	schedule.ReviewedAt = &now
	if err := s.schedules.UpdateWorkflow(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start review")
	}
	s.audit.Record(scheduleID, models.ChangeActionReviewStarted, reviewerID, nil)
	s.metrics.RecordTransition(string(schedule.Status))
	return schedule, nil
}

// Approve accepts a schedule under review.
func (s *ScheduleService) Approve(ctx context.Context, scheduleID, approverID string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !canTransition(schedule.Status, models.ScheduleStatusApproved) {
		return nil, appErrors.InvalidTransition(string(schedule.Status), string(models.ScheduleStatusApproved))
	}
	now := time.Now().UTC()
	schedule.Status = models.ScheduleStatusApproved
	schedule.ApprovedBy = &approverID
	schedule.ApprovedAt = &now
	if err := s.schedules.UpdateWorkflow(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve schedule")
	}
	s.audit.Record(scheduleID, models.ChangeActionApproved, approverID, nil)
	s.metrics.RecordTransition(string(schedule.Status))
	return schedule, nil
}

// Reject sends a schedule under review back with a reason.
func (s *ScheduleService) Reject(ctx context.Context, scheduleID, reviewerID string, req dto.RejectScheduleRequest) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !canTransition(schedule.Status, models.ScheduleStatusRejected) {
		return nil, appErrors.InvalidTransition(string(schedule.Status), string(models.ScheduleStatusRejected))
	}
	now := time.Now().UTC()
	schedule.Status = models.ScheduleStatusRejected
	schedule.ReviewedBy = &reviewerID
	schedule.ReviewedAt = &now
	schedule.RejectionReason = &req.Reason
	if err := s.schedules.UpdateWorkflow(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject schedule")
	}
	s.audit.Record(scheduleID, models.ChangeActionRejected, reviewerID, map[string]interface{}{
		"reason": req.Reason,
	})
	s.metrics.RecordTransition(string(schedule.Status))
	return schedule, nil
}

// Activate flips an approved schedule to active and suspends every other
// active schedule in the same (grade, type) scope. Both updates commit in one
// transaction so the single-active invariant never observes zero or two
// holders.
func (s *ScheduleService) Activate(ctx context.Context, scheduleID, actorID string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !canTransition(schedule.Status, models.ScheduleStatusActive) {
		return nil, appErrors.InvalidTransition(string(schedule.Status), string(models.ScheduleStatusActive))
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}

	reason := fmt.Sprintf("superseded by schedule %s (v%d)", schedule.ID, schedule.Version)
	superseded, err := s.schedules.SupersedeActiveInScope(ctx, tx, schedule.GradeID, schedule.ScheduleType, schedule.ID, reason)
	if err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede active schedules")
	}

	now := time.Now().UTC()
	schedule.Status = models.ScheduleStatusActive
	schedule.ActivatedAt = &now
	if err := s.schedules.UpdateWorkflow(ctx, tx, schedule); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate schedule")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit activation")
	}

	s.audit.Record(scheduleID, models.ChangeActionActivated, actorID, map[string]interface{}{
		"superseded": superseded,
	})
	for _, oldID := range superseded {
		s.audit.Record(oldID, models.ChangeActionSuperseded, actorID, map[string]interface{}{
			"supersededBy": scheduleID,
		})
		s.invalidateStatistics(ctx, oldID)
	}
	s.invalidateStatistics(ctx, scheduleID)
	s.metrics.RecordTransition(string(schedule.Status))
	s.logger.Info("schedule activated",
		zap.String("scheduleId", scheduleID),
		zap.Strings("superseded", superseded))
	return schedule, nil
}

// Suspend takes an active schedule out of service.
func (s *ScheduleService) Suspend(ctx context.Context, scheduleID, actorID string, req dto.SuspendScheduleRequest) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "suspension reason is required")
	}
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !canTransition(schedule.Status, models.ScheduleStatusSuspended) {
		return nil, appErrors.InvalidTransition(string(schedule.Status), string(models.ScheduleStatusSuspended))
	}
	schedule.Status = models.ScheduleStatusSuspended
	schedule.SuspensionReason = &req.Reason
	if err := s.schedules.UpdateWorkflow(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to suspend schedule")
	}
	s.audit.Record(scheduleID, models.ChangeActionSuspended, actorID, map[string]interface{}{
		"reason": req.Reason,
	})
	s.metrics.RecordTransition(string(schedule.Status))
	s.invalidateStatistics(ctx, scheduleID)
	return schedule, nil
}

// Archive retires an approved, active or suspended schedule.
func (s *ScheduleService) Archive(ctx context.Context, scheduleID, actorID string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !canTransition(schedule.Status, models.ScheduleStatusArchived) {
		return nil, appErrors.InvalidTransition(string(schedule.Status), string(models.ScheduleStatusArchived))
	}
	schedule.Status = models.ScheduleStatusArchived
	if err := s.schedules.UpdateWorkflow(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive schedule")
	}
	s.audit.Record(scheduleID, models.ChangeActionArchived, actorID, nil)
	s.metrics.RecordTransition(string(schedule.Status))
	s.invalidateStatistics(ctx, scheduleID)
	return schedule, nil
}

// CreateCopy deep-copies a schedule into a fresh draft: workflow fields
// reset, generation method copied, every session replicated into the new
// id-space.
func (s *ScheduleService) CreateCopy(ctx context.Context, sourceID string, req dto.CopyScheduleRequest, creatorID string) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid copy payload")
	}
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListBySchedule(ctx, sourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list source sessions")
	}

	name := req.Name
	if name == "" {
		name = source.Name + " (copy)"
	}
	effective := source.EffectiveDate
	if req.EffectiveDate != "" {
		parsed, err := optionalDate(req.EffectiveDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "effectiveDate must be YYYY-MM-DD")
		}
		effective = parsed
	}
	end := source.EndDate
	if req.EndDate != "" {
		parsed, err := optionalDate(req.EndDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be YYYY-MM-DD")
		}
		end = parsed
	}

	duplicate := &models.Schedule{
		Name:             name,
		AcademicYearID:   source.AcademicYearID,
		InstitutionID:    source.InstitutionID,
		GradeID:          source.GradeID,
		ScheduleType:     source.ScheduleType,
		EffectiveDate:    effective,
		EndDate:          end,
		WorkingDays:      source.WorkingDays,
		Status:           models.ScheduleStatusDraft,
		GenerationMethod: models.GenerationCopied,
		TemplateID:       source.TemplateID,
		CreatedBy:        creatorID,
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	if err := s.schedules.Create(ctx, tx, duplicate); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule copy")
	}

	copies := make([]models.ScheduleSession, 0, len(sessions))
	for _, session := range sessions {
		duplicateSession := session
		duplicateSession.ID = ""
		duplicateSession.ScheduleID = duplicate.ID
		duplicateSession.Status = models.SessionStatusScheduled
		duplicateSession.SubstituteTeacherID = nil
		duplicateSession.CreatedAt = time.Time{}
		copies = append(copies, duplicateSession)
	}
	if len(copies) > 0 {
		if err := s.sessions.BulkInsert(ctx, tx, copies); err != nil {
			_ = tx.Rollback()
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy sessions")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule copy")
	}

	s.audit.Record(duplicate.ID, models.ChangeActionCopied, creatorID, map[string]interface{}{
		"sourceScheduleId": sourceID,
		"sessions":         len(copies),
	})
	return duplicate, nil
}

// Statistics computes the dashboard summary with a cache-aside read. The
// second return reports whether the cache served the result.
func (s *ScheduleService) Statistics(ctx context.Context, scheduleID string) (*models.ScheduleStatistics, bool, error) {
	key := statisticsCacheKey(scheduleID)
	var cached models.ScheduleStatistics
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.metrics.RecordCacheOperation(true)
		return &cached, true, nil
	}
	s.metrics.RecordCacheOperation(false)

	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, false, err
	}
	sessions, err := s.sessions.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	conflicts := detectPairwiseConflicts(sessions)
	score := s.optimizationScore(ctx, schedule, sessions, conflicts)
	teacherUtil, roomUtil := utilization(schedule, sessions)

	stats := &models.ScheduleStatistics{
		ScheduleID:         scheduleID,
		Conflicts:          len(conflicts),
		TeacherUtilization: teacherUtil,
		RoomUtilization:    roomUtil,
		SessionsByDay:      make(map[int]int),
		SessionsByType:     make(map[string]int),
		OptimizationScore:  score,
	}
	teachers := make(map[string]struct{})
	rooms := make(map[string]struct{})
	for _, session := range sessions {
		if !session.Countable() {
			continue
		}
		stats.TotalSessions++
		teachers[session.TeacherID] = struct{}{}
		if room := session.Room(); room != "" {
			rooms[room] = struct{}{}
		}
		stats.SessionsByDay[session.DayOfWeek]++
		stats.SessionsByType[session.SessionType]++
	}
	stats.TotalTeachers = len(teachers)
	stats.TotalRooms = len(rooms)

	if err := s.cache.Set(ctx, key, stats, s.cfg.StatisticsCacheTTL); err != nil {
		s.logger.Warn("failed to cache schedule statistics", zap.String("scheduleId", scheduleID), zap.Error(err))
	}
	return stats, false, nil
}

func statisticsCacheKey(scheduleID string) string {
	return "schedule:stats:" + scheduleID
}

func (s *ScheduleService) invalidateStatistics(ctx context.Context, scheduleID string) {
	if err := s.cache.DeleteByPattern(ctx, statisticsCacheKey(scheduleID)); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.String("scheduleId", scheduleID), zap.Error(err))
	}
}

// detectPairwiseConflicts compares every non-cancelled session against every
// other within one schedule. O(n^2) and intentionally so: a single
// schedule's session count is bounded, and the pass must not be reused
// across schedules without re-scoping.
func detectPairwiseConflicts(sessions []models.ScheduleSession) []models.Conflict {
	var conflicts []models.Conflict
	seen := make(map[string]struct{})
	add := func(c models.Conflict) {
		key := c.Key()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		conflicts = append(conflicts, c)
	}

	for i := 0; i < len(sessions); i++ {
		a := &sessions[i]
		if !a.Countable() {
			continue
		}
		for j := i + 1; j < len(sessions); j++ {
			b := &sessions[j]
			if !b.Countable() || a.DayOfWeek != b.DayOfWeek || a.TimeSlotID != b.TimeSlotID {
				continue
			}
			if a.TeacherID == b.TeacherID {
				add(models.Conflict{
					Kind:       models.ConflictTeacherDoubleBooking,
					Severity:   models.SeverityCritical,
					Message:    fmt.Sprintf("teacher %s is booked twice on day %d slot %s", a.TeacherID, a.DayOfWeek, a.TimeSlotID),
					TeacherID:  a.TeacherID,
					TimeSlotID: a.TimeSlotID,
					DayOfWeek:  a.DayOfWeek,
					SessionIDs: []string{a.ID, b.ID},
				})
			}
			if a.Room() != "" && a.Room() == b.Room() {
				add(models.Conflict{
					Kind:       models.ConflictRoomDoubleBooking,
					Severity:   models.SeverityHigh,
					Message:    fmt.Sprintf("room %s is booked twice on day %d slot %s", a.Room(), a.DayOfWeek, a.TimeSlotID),
					RoomID:     a.Room(),
					TimeSlotID: a.TimeSlotID,
					DayOfWeek:  a.DayOfWeek,
					SessionIDs: []string{a.ID, b.ID},
				})
			}
		}
	}
	return conflicts
}

// crossScheduleConflicts flags this schedule's sessions colliding with the
// same teacher's bookings in other active schedules.
func (s *ScheduleService) crossScheduleConflicts(ctx context.Context, scheduleID string, sessions []models.ScheduleSession) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	checked := make(map[string][]models.ScheduleSession)
	for i := range sessions {
		session := &sessions[i]
		if !session.Countable() {
			continue
		}
		others, ok := checked[session.TeacherID]
		if !ok {
			loaded, err := s.sessions.ListActiveForTeacher(ctx, session.TeacherID, scheduleID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cross-schedule sessions")
			}
			checked[session.TeacherID] = loaded
			others = loaded
		}
		for _, other := range others {
			if other.DayOfWeek == session.DayOfWeek && other.TimeSlotID == session.TimeSlotID {
				conflicts = append(conflicts, models.Conflict{
					Kind:       models.ConflictCrossSchedule,
					Severity:   models.SeverityCritical,
					Message:    fmt.Sprintf("teacher %s is already booked in schedule %s on day %d slot %s", session.TeacherID, other.ScheduleID, session.DayOfWeek, session.TimeSlotID),
					TeacherID:  session.TeacherID,
					TimeSlotID: session.TimeSlotID,
					DayOfWeek:  session.DayOfWeek,
					SessionIDs: []string{session.ID, other.ID},
				})
			}
		}
	}
	return conflicts, nil
}

func buildValidationReport(schedule *models.Schedule, sessions []models.ScheduleSession, conflicts []models.Conflict, score float64) *models.ValidationReport {
	report := &models.ValidationReport{}
	if schedule.AcademicYearID == "" {
		report.Errors = append(report.Errors, "schedule has no academic year")
	}
	if schedule.InstitutionID == "" {
		report.Errors = append(report.Errors, "schedule has no institution")
	}
	if schedule.EffectiveDate != nil && schedule.EndDate != nil && !schedule.EffectiveDate.Before(*schedule.EndDate) {
		report.Errors = append(report.Errors, "effective date must be before end date")
	}
	if len(conflicts) > 0 {
		report.Errors = append(report.Errors, fmt.Sprintf("%d unresolved conflicts detected", len(conflicts)))
	}

	countable := 0
	perTeacher := make(map[string]int)
	for _, session := range sessions {
		if !session.Countable() {
			continue
		}
		countable++
		perTeacher[session.TeacherID]++
		if !schedule.WorksOn(session.DayOfWeek) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("session %s is scheduled on day %d which is not a working day", session.ID, session.DayOfWeek))
		}
	}
	if countable == 0 {
		report.Errors = append(report.Errors, "schedule has no sessions")
	}

	if score < 70 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("optimization score %.1f is below 70", score))
	}
	if len(perTeacher) > 1 {
		minCount, maxCount := -1, 0
		for _, count := range perTeacher {
			if minCount == -1 || count < minCount {
				minCount = count
			}
			if count > maxCount {
				maxCount = count
			}
		}
		if maxCount-minCount > 5 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("teacher workload is imbalanced: %d vs %d sessions", maxCount, minCount))
		}
	}

	report.IsValid = len(report.Errors) == 0
	return report
}

// optimizationScore is the advisory heuristic: 100, minus 10 per conflict,
// minus twice the population variance of per-day session counts, plus 0.2 x
// average preference alignment, minus a gap penalty of (gap-60)/60 per
// over-an-hour gap in any teacher's day. Clamped to [0,100]. A tunable
// constant set, not a correctness property.
func (s *ScheduleService) optimizationScore(ctx context.Context, schedule *models.Schedule, sessions []models.ScheduleSession, conflicts []models.Conflict) float64 {
	score := 100.0
	score -= float64(len(conflicts)) * 10

	countable := make([]models.ScheduleSession, 0, len(sessions))
	for _, session := range sessions {
		if session.Countable() {
			countable = append(countable, session)
		}
	}

	score -= dayDistributionVariance(schedule, countable) * 2
	score += 0.2 * s.averagePreferenceAlignment(ctx, countable)
	score -= teacherGapPenalty(countable)

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func dayDistributionVariance(schedule *models.Schedule, sessions []models.ScheduleSession) float64 {
	if len(schedule.WorkingDays) == 0 {
		return 0
	}
	counts := make(map[int]int, len(schedule.WorkingDays))
	for _, d := range schedule.WorkingDays {
		counts[int(d)] = 0
	}
	for _, session := range sessions {
		counts[session.DayOfWeek]++
	}

	n := float64(len(counts))
	var mean float64
	for _, count := range counts {
		mean += float64(count)
	}
	mean /= n

	var variance float64
	for _, count := range counts {
		diff := float64(count) - mean
		variance += diff * diff
	}
	return variance / n
}

// averagePreferenceAlignment scores each session against its teacher's
// qualification using the assignment heuristic, averaged over the sessions
// that have a matching ledger record.
func (s *ScheduleService) averagePreferenceAlignment(ctx context.Context, sessions []models.ScheduleSession) float64 {
	if s.qualifications == nil || len(sessions) == 0 {
		return 0
	}
	type ledgerKey struct{ teacher, subject string }
	ledger := make(map[ledgerKey]*models.TeacherSubject)

	var total float64
	matched := 0
	for _, session := range sessions {
		key := ledgerKey{session.TeacherID, session.SubjectID}
		ts, ok := ledger[key]
		if !ok {
			loaded, err := s.qualifications.FindActive(ctx, session.TeacherID, session.SubjectID)
			if err != nil {
				ledger[key] = nil
				continue
			}
			ledger[key] = loaded
			ts = loaded
		}
		if ts == nil {
			continue
		}
		candidate := dto.SessionCandidate{
			TeacherID:  session.TeacherID,
			SubjectID:  session.SubjectID,
			TimeSlotID: session.TimeSlotID,
			DayOfWeek:  session.DayOfWeek,
			StartTime:  session.StartTime,
			EndTime:    session.EndTime,
		}
		total += float64(assignmentScore(ts, candidate, 0))
		matched++
	}
	if matched == 0 {
		return 0
	}
	return total / float64(matched)
}

// teacherGapPenalty sums (gap-60)/60 over every gap above sixty minutes
// between a teacher's consecutive sessions on one day.
func teacherGapPenalty(sessions []models.ScheduleSession) float64 {
	type dayKey struct {
		teacher string
		day     int
	}
	grouped := make(map[dayKey][]models.ScheduleSession)
	for _, session := range sessions {
		key := dayKey{session.TeacherID, session.DayOfWeek}
		grouped[key] = append(grouped[key], session)
	}

	var penalty float64
	for _, group := range grouped {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			si, _ := models.MinuteOfDay(group[i].StartTime)
			sj, _ := models.MinuteOfDay(group[j].StartTime)
			return si < sj
		})
		for i := 0; i < len(group)-1; i++ {
			gap, err := models.ClockDuration(group[i].EndTime, group[i+1].StartTime)
			if err != nil || gap <= 60 {
				continue
			}
			penalty += float64(gap-60) / 60
		}
	}
	return penalty
}

// utilization derives the stored percentages: sessions per teacher (or room)
// against an eight-teaching-period working week.
func utilization(schedule *models.Schedule, sessions []models.ScheduleSession) (float64, float64) {
	teachers := make(map[string]int)
	rooms := make(map[string]int)
	countable := 0
	for _, session := range sessions {
		if !session.Countable() {
			continue
		}
		countable++
		teachers[session.TeacherID]++
		if room := session.Room(); room != "" {
			rooms[room]++
		}
	}
	if countable == 0 {
		return 0, 0
	}
	capacityPerResource := float64(len(schedule.WorkingDays) * 8)
	if capacityPerResource == 0 {
		return 0, 0
	}

	percent := func(counts map[string]int) float64 {
		if len(counts) == 0 {
			return 0
		}
		var total float64
		for _, count := range counts {
			total += float64(count) / capacityPerResource * 100
		}
		value := total / float64(len(counts))
		if value > 100 {
			return 100
		}
		return value
	}
	return percent(teachers), percent(rooms)
}
