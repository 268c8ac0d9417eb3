package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type teacherAvailabilityRepository interface {
	Create(ctx context.Context, a *models.TeacherAvailability) error
	FindByID(ctx context.Context, id string) (*models.TeacherAvailability, error)
	ListActiveForTeacherDay(ctx context.Context, teacherID string, day int) ([]models.TeacherAvailability, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error)
	UpdateStatus(ctx context.Context, id string, status models.AvailabilityStatus, approvedBy *string, approvedAt *time.Time) error
	ExpireOutdated(ctx context.Context, now time.Time) (int64, error)
}

// TeacherAvailabilityService owns the availability calendar and its approval
// workflow. Availability is an independent constraint layer: it never grants
// qualification.
type TeacherAvailabilityService struct {
	calendar  teacherAvailabilityRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherAvailabilityService wires the calendar dependencies.
func NewTeacherAvailabilityService(calendar teacherAvailabilityRepository, validate *validator.Validate, logger *zap.Logger) *TeacherAvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherAvailabilityService{calendar: calendar, validator: validate, logger: logger}
}

// Create registers a window in pending state; it only constrains scheduling
// once approved and activated.
func (s *TeacherAvailabilityService) Create(ctx context.Context, req dto.CreateAvailabilityRequest) (*models.TeacherAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if _, err := clockSpan(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	effective, err := optionalDate(req.EffectiveDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "effectiveDate must be YYYY-MM-DD")
	}
	end, err := optionalDate(req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be YYYY-MM-DD")
	}
	if effective != nil && end != nil && end.Before(*effective) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "effectiveDate must be on or before endDate")
	}

	window := &models.TeacherAvailability{
		TeacherID:              req.TeacherID,
		DayOfWeek:              req.DayOfWeek,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		AvailabilityType:       models.AvailabilityType(req.AvailabilityType),
		RecurrenceType:         models.RecurrenceType(req.RecurrenceType),
		EffectiveDate:          effective,
		EndDate:                end,
		Priority:               req.Priority,
		IsFlexible:             req.IsFlexible,
		IsMandatory:            req.IsMandatory,
		AllowEmergencyOverride: req.AllowEmergencyOverride,
		Reason:                 req.Reason,
	}
	if err := s.calendar.Create(ctx, window); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create availability")
	}
	return window, nil
}

// Approve moves a pending window to approved and immediately activates it.
func (s *TeacherAvailabilityService) Approve(ctx context.Context, id, approverID string) (*models.TeacherAvailability, error) {
	window, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if window.Status != models.AvailabilityStatusPending {
		return nil, appErrors.InvalidTransition(string(window.Status), string(models.AvailabilityStatusApproved))
	}
	now := time.Now().UTC()
	if err := s.calendar.UpdateStatus(ctx, id, models.AvailabilityStatusActive, &approverID, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve availability")
	}
	window.Status = models.AvailabilityStatusActive
	window.ApprovedBy = &approverID
	window.ApprovedAt = &now
	return window, nil
}

// Reject closes a pending window.
func (s *TeacherAvailabilityService) Reject(ctx context.Context, id, reviewerID string, req dto.RejectAvailabilityRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	window, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if window.Status != models.AvailabilityStatusPending {
		return appErrors.InvalidTransition(string(window.Status), string(models.AvailabilityStatusRejected))
	}
	now := time.Now().UTC()
	if err := s.calendar.UpdateStatus(ctx, id, models.AvailabilityStatusRejected, &reviewerID, &now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject availability")
	}
	s.logger.Info("availability rejected",
		zap.String("availabilityId", id),
		zap.String("reviewerId", reviewerID),
		zap.String("reason", req.Reason))
	return nil
}

// CheckAvailability classifies every active window overlapping the candidate
// range. Hard blocks flip is_available; flexible or overridable windows and
// restricted types surface as restrictions; preferred windows as preferences.
// Overlapping windows are all reported, never merged.
func (s *TeacherAvailabilityService) CheckAvailability(ctx context.Context, query dto.AvailabilityCheckQuery) (*models.AvailabilityDecision, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability check")
	}
	date := time.Now()
	if query.Date != "" {
		parsed, err := time.Parse("2006-01-02", query.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
		date = parsed
	}

	windows, err := s.calendar.ListActiveForTeacherDay(ctx, query.TeacherID, query.DayOfWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}

	decision := &models.AvailabilityDecision{IsAvailable: true}
	for i := range windows {
		window := &windows[i]
		if !window.CurrentOn(date) || !window.OverlapsClock(query.StartTime, query.EndTime) {
			continue
		}
		entry := models.AvailabilityEntry{
			AvailabilityID: window.ID,
			Type:           window.AvailabilityType,
			StartTime:      window.StartTime,
			EndTime:        window.EndTime,
			Reason:         window.Reason,
			Priority:       window.Priority,
		}
		switch window.AvailabilityType {
		case models.AvailabilityUnavailable, models.AvailabilityMeeting, models.AvailabilityTraining:
			if window.IsHardBlock() {
				decision.IsAvailable = false
				decision.Conflicts = append(decision.Conflicts, entry)
			} else {
				decision.Restrictions = append(decision.Restrictions, entry)
			}
		case models.AvailabilityRestricted:
			decision.Restrictions = append(decision.Restrictions, entry)
		case models.AvailabilityPreferred:
			decision.Preferences = append(decision.Preferences, entry)
		case models.AvailabilityAvailable:
			// Implicit positive; no entry.
		default:
			decision.Restrictions = append(decision.Restrictions, entry)
		}
	}
	return decision, nil
}

// WeeklySummary returns the teacher's non-expired windows grouped by weekday.
func (s *TeacherAvailabilityService) WeeklySummary(ctx context.Context, teacherID string) (*models.WeeklyAvailability, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	windows, err := s.calendar.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	summary := &models.WeeklyAvailability{
		TeacherID: teacherID,
		Days:      make(map[int][]models.TeacherAvailability, 7),
	}
	for _, window := range windows {
		summary.Days[window.DayOfWeek] = append(summary.Days[window.DayOfWeek], window)
	}
	return summary, nil
}

// ExpireOutdated sweeps active windows past their end date. Driven by the
// periodic cleanup ticker, not by events.
func (s *TeacherAvailabilityService) ExpireOutdated(ctx context.Context) (int64, error) {
	swept, err := s.calendar.ExpireOutdated(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire availability")
	}
	if swept > 0 {
		s.logger.Info("expired outdated availability windows", zap.Int64("count", swept))
	}
	return swept, nil
}

func (s *TeacherAvailabilityService) get(ctx context.Context, id string) (*models.TeacherAvailability, error) {
	window, err := s.calendar.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	return window, nil
}
