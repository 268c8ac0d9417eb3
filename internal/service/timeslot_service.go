package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timeSlotRepository interface {
	Create(ctx context.Context, slot *models.TimeSlot) error
	BulkCreate(ctx context.Context, tx *sqlx.Tx, slots []models.TimeSlot) error
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	ListActiveByInstitution(ctx context.Context, institutionID string) ([]models.TimeSlot, error)
	Deactivate(ctx context.Context, id string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TimeSlotService manages the bookable-period registry.
type TimeSlotService struct {
	slots     timeSlotRepository
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimeSlotService wires the registry dependencies.
func NewTimeSlotService(slots timeSlotRepository, tx txProvider, validate *validator.Validate, logger *zap.Logger) *TimeSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSlotService{slots: slots, tx: tx, validator: validate, logger: logger}
}

// Create registers one slot after checking it against the active grid.
// Overlaps are rejected unless both slots carry allow_conflicts.
func (s *TimeSlotService) Create(ctx context.Context, req dto.CreateTimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	duration, err := clockSpan(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	slot := &models.TimeSlot{
		InstitutionID:    req.InstitutionID,
		Name:             req.Name,
		Code:             req.Code,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		DurationMinutes:  duration,
		SlotType:         models.SlotType(req.SlotType),
		ApplicableDays:   toInt64Array(req.ApplicableDays),
		OrderIndex:       req.OrderIndex,
		IsActive:         true,
		IsTeachingPeriod: req.IsTeachingPeriod,
		AllowConflicts:   req.AllowConflicts,
	}

	existing, err := s.slots.ListActiveByInstitution(ctx, req.InstitutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot grid")
	}
	if details := overlapViolations(slot, existing); len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "time slot overlaps the active grid"), details)
	}

	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time slot")
	}
	return slot, nil
}

// CreateStandardSlots seeds the canonical school day for an institution:
// assembly, eight teaching periods, two breaks and lunch, 07:30 to 15:30,
// contiguous and ordered.
func (s *TimeSlotService) CreateStandardSlots(ctx context.Context, req dto.SeedStandardSlotsRequest) ([]models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid seed payload")
	}

	grid := standardDayGrid(req.InstitutionID)

	existing, err := s.slots.ListActiveByInstitution(ctx, req.InstitutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot grid")
	}
	var details []string
	for i := range grid {
		details = append(details, overlapViolations(&grid[i], existing)...)
	}
	if len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "standard grid overlaps existing active slots"), details)
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	if err := s.slots.BulkCreate(ctx, tx, grid); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed standard slots")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit standard slots")
	}

	s.logger.Info("seeded standard time slot grid",
		zap.String("institutionId", req.InstitutionID),
		zap.Int("slots", len(grid)))
	return grid, nil
}

// Get loads one slot.
func (s *TimeSlotService) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	return slot, nil
}

// List returns the institution's active grid in display order.
func (s *TimeSlotService) List(ctx context.Context, institutionID string) ([]models.TimeSlot, error) {
	if institutionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "institutionId is required")
	}
	slots, err := s.slots.ListActiveByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time slots")
	}
	return slots, nil
}

// Deactivate soft-disables a slot; sessions keep referencing it.
func (s *TimeSlotService) Deactivate(ctx context.Context, id string) error {
	if err := s.slots.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate time slot")
	}
	return nil
}

func overlapViolations(candidate *models.TimeSlot, existing []models.TimeSlot) []string {
	var details []string
	for i := range existing {
		other := &existing[i]
		if other.ID == candidate.ID {
			continue
		}
		if !candidate.Overlaps(other) {
			continue
		}
		if candidate.AllowConflicts && other.AllowConflicts {
			continue
		}
		details = append(details, fmt.Sprintf("slot %s (%s-%s) overlaps %s (%s-%s)",
			candidate.Code, candidate.StartTime, candidate.EndTime, other.Code, other.StartTime, other.EndTime))
	}
	return details
}

// standardDayGrid builds the twelve-slot canonical day. Weekday-only
// (Mon-Fri), contiguous, sequential order_index.
func standardDayGrid(institutionID string) []models.TimeSlot {
	type def struct {
		name     string
		code     string
		start    string
		end      string
		slotType models.SlotType
		teaching bool
	}
	defs := []def{
		{"Morning Assembly", "ASSEMBLY", "07:30", "08:00", models.SlotTypeAssembly, false},
		{"Period 1", "P1", "08:00", "08:45", models.SlotTypeClass, true},
		{"Period 2", "P2", "08:45", "09:30", models.SlotTypeClass, true},
		{"Morning Break", "BREAK1", "09:30", "09:45", models.SlotTypeBreak, false},
		{"Period 3", "P3", "09:45", "10:30", models.SlotTypeClass, true},
		{"Period 4", "P4", "10:30", "11:15", models.SlotTypeClass, true},
		{"Second Break", "BREAK2", "11:15", "11:30", models.SlotTypeBreak, false},
		{"Period 5", "P5", "11:30", "12:15", models.SlotTypeClass, true},
		{"Lunch", "LUNCH", "12:15", "13:00", models.SlotTypeLunch, false},
		{"Period 6", "P6", "13:00", "13:45", models.SlotTypeClass, true},
		{"Period 7", "P7", "13:45", "14:30", models.SlotTypeClass, true},
		{"Period 8", "P8", "14:30", "15:30", models.SlotTypeClass, true},
	}

	slots := make([]models.TimeSlot, 0, len(defs))
	for i, d := range defs {
		duration, _ := models.ClockDuration(d.start, d.end)
		slots = append(slots, models.TimeSlot{
			InstitutionID:    institutionID,
			Name:             d.name,
			Code:             d.code,
			StartTime:        d.start,
			EndTime:          d.end,
			DurationMinutes:  duration,
			SlotType:         d.slotType,
			ApplicableDays:   pq.Int64Array{1, 2, 3, 4, 5},
			OrderIndex:       i + 1,
			IsActive:         true,
			IsTeachingPeriod: d.teaching,
		})
	}
	return slots
}

func clockSpan(start, end string) (int, error) {
	duration, err := models.ClockDuration(start, end)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "startTime and endTime must be HH:MM clock values")
	}
	if duration <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	return duration, nil
}

func toInt64Array(values []int) pq.Int64Array {
	out := make(pq.Int64Array, 0, len(values))
	for _, v := range values {
		out = append(out, int64(v))
	}
	return out
}
