package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimeSlotRepository persists the bookable-period registry.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

const timeSlotColumns = `id, institution_id, name, code, start_time, end_time, duration_minutes, slot_type,
applicable_days, order_index, is_active, is_teaching_period, allow_conflicts, created_at, updated_at`

// Create inserts a single slot.
func (r *TimeSlotRepository) Create(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO time_slots (id, institution_id, name, code, start_time, end_time, duration_minutes, slot_type,
		applicable_days, order_index, is_active, is_teaching_period, allow_conflicts, created_at, updated_at)
		VALUES (:id, :institution_id, :name, :code, :start_time, :end_time, :duration_minutes, :slot_type,
		:applicable_days, :order_index, :is_active, :is_teaching_period, :allow_conflicts, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

// BulkCreate inserts a slot grid inside one transaction.
func (r *TimeSlotRepository) BulkCreate(ctx context.Context, tx *sqlx.Tx, slots []models.TimeSlot) error {
	const query = `INSERT INTO time_slots (id, institution_id, name, code, start_time, end_time, duration_minutes, slot_type,
		applicable_days, order_index, is_active, is_teaching_period, allow_conflicts, created_at, updated_at)
		VALUES (:id, :institution_id, :name, :code, :start_time, :end_time, :duration_minutes, :slot_type,
		:applicable_days, :order_index, :is_active, :is_teaching_period, :allow_conflicts, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		slot.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, tx, query, slot); err != nil {
			return fmt.Errorf("bulk create time slot %s: %w", slot.Code, err)
		}
	}
	return nil
}

// FindByID loads one slot.
func (r *TimeSlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListActiveByInstitution returns the active slot grid ordered by position.
func (r *TimeSlotRepository) ListActiveByInstitution(ctx context.Context, institutionID string) ([]models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots
WHERE institution_id = $1 AND is_active = TRUE ORDER BY order_index ASC, start_time ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, institutionID); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// Deactivate soft-disables a slot. Slots referenced by sessions are never
// deleted.
func (r *TimeSlotRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE time_slots SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate time slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deactivated time slot rows: %w", err)
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}
