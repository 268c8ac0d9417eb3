package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// ScheduleSessionRepository persists sessions owned by schedule aggregates.
//
// Partial unique indexes enforce the double-booking invariants at the
// persistence layer:
//
//	(schedule_id, teacher_id, day_of_week, time_slot_id) WHERE status <> 'cancelled'
//	(schedule_id, room_id,    day_of_week, time_slot_id) WHERE status <> 'cancelled' AND room_id IS NOT NULL
type ScheduleSessionRepository struct {
	db *sqlx.DB
}

// NewScheduleSessionRepository constructs the repository.
func NewScheduleSessionRepository(db *sqlx.DB) *ScheduleSessionRepository {
	return &ScheduleSessionRepository{db: db}
}

func (r *ScheduleSessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const sessionColumns = `id, schedule_id, subject_id, teacher_id, room_id, time_slot_id, day_of_week, period_number,
start_time, end_time, duration_minutes, session_type, status, substitute_teacher_id, created_at, updated_at`

const sessionInsert = `INSERT INTO schedule_sessions (id, schedule_id, subject_id, teacher_id, room_id, time_slot_id,
	day_of_week, period_number, start_time, end_time, duration_minutes, session_type, status,
	substitute_teacher_id, created_at, updated_at)
VALUES (:id, :schedule_id, :subject_id, :teacher_id, :room_id, :time_slot_id,
	:day_of_week, :period_number, :start_time, :end_time, :duration_minutes, :session_type, :status,
	:substitute_teacher_id, :created_at, :updated_at)`

// Insert adds one session. A unique-index violation is returned as a
// retryable conflict, not an internal error, so two callers racing past the
// advisory checks cannot both commit.
func (r *ScheduleSessionRepository) Insert(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduleSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}

	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), sessionInsert, session); err != nil {
		if IsUniqueViolation(err) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"teacher or room already booked for this slot")
		}
		return fmt.Errorf("insert schedule session: %w", err)
	}
	return nil
}

// BulkInsert replicates sessions inside one transaction (copy/generation).
func (r *ScheduleSessionRepository) BulkInsert(ctx context.Context, tx *sqlx.Tx, sessions []models.ScheduleSession) error {
	now := time.Now().UTC()
	for i := range sessions {
		session := &sessions[i]
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
		session.UpdatedAt = now
		if session.Status == "" {
			session.Status = models.SessionStatusScheduled
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, sessionInsert, session); err != nil {
			if IsUniqueViolation(err) {
				return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
					"duplicate booking while replicating sessions")
			}
			return fmt.Errorf("bulk insert schedule session: %w", err)
		}
	}
	return nil
}

// FindByID loads one session.
func (r *ScheduleSessionRepository) FindByID(ctx context.Context, id string) (*models.ScheduleSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM schedule_sessions WHERE id = $1`
	var session models.ScheduleSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListBySchedule returns every session of a schedule ordered by day/period.
func (r *ScheduleSessionRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM schedule_sessions
WHERE schedule_id = $1 ORDER BY day_of_week ASC, period_number ASC, start_time ASC`
	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule sessions: %w", err)
	}
	return sessions, nil
}

// ListActiveForTeacherSubject returns a teacher's non-cancelled sessions of
// one subject across active schedules. Feeds weekly workload accounting.
func (r *ScheduleSessionRepository) ListActiveForTeacherSubject(ctx context.Context, teacherID, subjectID string) ([]models.ScheduleSession, error) {
	query := `SELECT ss.id, ss.schedule_id, ss.subject_id, ss.teacher_id, ss.room_id, ss.time_slot_id, ss.day_of_week,
       ss.period_number, ss.start_time, ss.end_time, ss.duration_minutes, ss.session_type, ss.status,
       ss.substitute_teacher_id, ss.created_at, ss.updated_at
FROM schedule_sessions ss
JOIN schedules s ON s.id = ss.schedule_id
WHERE ss.teacher_id = $1 AND ss.subject_id = $2 AND ss.status <> 'cancelled' AND s.status = 'active'
ORDER BY ss.day_of_week ASC, ss.start_time ASC`
	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, subjectID); err != nil {
		return nil, fmt.Errorf("list active teacher sessions: %w", err)
	}
	return sessions, nil
}

// ListActiveForTeacher returns a teacher's non-cancelled sessions across all
// active schedules except the given one. Feeds the cross-schedule conflict
// pass.
func (r *ScheduleSessionRepository) ListActiveForTeacher(ctx context.Context, teacherID, excludeScheduleID string) ([]models.ScheduleSession, error) {
	query := `SELECT ss.id, ss.schedule_id, ss.subject_id, ss.teacher_id, ss.room_id, ss.time_slot_id, ss.day_of_week,
       ss.period_number, ss.start_time, ss.end_time, ss.duration_minutes, ss.session_type, ss.status,
       ss.substitute_teacher_id, ss.created_at, ss.updated_at
FROM schedule_sessions ss
JOIN schedules s ON s.id = ss.schedule_id
WHERE ss.teacher_id = $1 AND ss.schedule_id <> $2 AND ss.status <> 'cancelled' AND s.status = 'active'`
	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, excludeScheduleID); err != nil {
		return nil, fmt.Errorf("list cross-schedule teacher sessions: %w", err)
	}
	return sessions, nil
}

// UpdateStatus moves a session through its lifecycle (cancel, substitute,
// complete). Sessions are never deleted once the schedule left draft.
func (r *ScheduleSessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, substituteTeacherID *string) error {
	const query = `UPDATE schedule_sessions
SET status = $2, substitute_teacher_id = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, substituteTeacherID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check session status rows: %w", err)
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// DeleteBySchedule removes sessions of a draft schedule being discarded.
func (r *ScheduleSessionRepository) DeleteBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) error {
	const query = `DELETE FROM schedule_sessions WHERE schedule_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, scheduleID); err != nil {
		return fmt.Errorf("delete schedule sessions: %w", err)
	}
	return nil
}
