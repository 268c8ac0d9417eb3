package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TeacherAvailabilityRepository persists the availability calendar.
type TeacherAvailabilityRepository struct {
	db *sqlx.DB
}

// NewTeacherAvailabilityRepository constructs the repository.
func NewTeacherAvailabilityRepository(db *sqlx.DB) *TeacherAvailabilityRepository {
	return &TeacherAvailabilityRepository{db: db}
}

const availabilityColumns = `id, teacher_id, day_of_week, start_time, end_time, availability_type, recurrence_type,
effective_date, end_date, priority, is_flexible, is_mandatory, allow_emergency_override, status, reason,
approved_by, approved_at, created_at, updated_at`

// Create inserts a new window in pending state.
func (r *TeacherAvailabilityRepository) Create(ctx context.Context, a *models.TeacherAvailability) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.AvailabilityStatusPending
	}

	const query = `INSERT INTO teacher_availabilities (id, teacher_id, day_of_week, start_time, end_time,
		availability_type, recurrence_type, effective_date, end_date, priority, is_flexible, is_mandatory,
		allow_emergency_override, status, reason, approved_by, approved_at, created_at, updated_at)
	VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time,
		:availability_type, :recurrence_type, :effective_date, :end_date, :priority, :is_flexible, :is_mandatory,
		:allow_emergency_override, :status, :reason, :approved_by, :approved_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create teacher availability: %w", err)
	}
	return nil
}

// FindByID loads one window.
func (r *TeacherAvailabilityRepository) FindByID(ctx context.Context, id string) (*models.TeacherAvailability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM teacher_availabilities WHERE id = $1`
	var a models.TeacherAvailability
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActiveForTeacherDay returns the active windows for a teacher/weekday.
func (r *TeacherAvailabilityRepository) ListActiveForTeacherDay(ctx context.Context, teacherID string, day int) ([]models.TeacherAvailability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM teacher_availabilities
WHERE teacher_id = $1 AND day_of_week = $2 AND status = 'active'
ORDER BY priority ASC, start_time ASC`
	var items []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &items, query, teacherID, day); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return items, nil
}

// ListByTeacher returns every non-expired window for the weekly summary.
func (r *TeacherAvailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM teacher_availabilities
WHERE teacher_id = $1 AND status <> 'expired'
ORDER BY day_of_week ASC, start_time ASC`
	var items []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &items, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return items, nil
}

// UpdateStatus advances the approval workflow.
func (r *TeacherAvailabilityRepository) UpdateStatus(ctx context.Context, id string, status models.AvailabilityStatus, approvedBy *string, approvedAt *time.Time) error {
	const query = `UPDATE teacher_availabilities
SET status = $2, approved_by = $3, approved_at = $4, updated_at = $5 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, approvedBy, approvedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update teacher availability status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check availability status rows: %w", err)
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// ExpireOutdated marks active windows whose end date has passed as expired
// and returns how many rows were swept.
func (r *TeacherAvailabilityRepository) ExpireOutdated(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE teacher_availabilities
SET status = 'expired', updated_at = $1
WHERE status = 'active' AND end_date IS NOT NULL AND end_date < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire teacher availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check expired availability rows: %w", err)
	}
	return affected, nil
}
