package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ChangeLogRepository appends schedule audit records. The log is append-only;
// there is no update or delete path.
type ChangeLogRepository struct {
	db *sqlx.DB
}

// NewChangeLogRepository constructs the repository.
func NewChangeLogRepository(db *sqlx.DB) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

// Append writes one change record.
func (r *ChangeLogRepository) Append(ctx context.Context, entry *models.ScheduleChangeLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_change_logs (id, schedule_id, action, actor_id, payload, created_at)
		VALUES (:id, :schedule_id, :action, :actor_id, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append schedule change log: %w", err)
	}
	return nil
}

// ListBySchedule returns the audit trail for a schedule, oldest first.
func (r *ChangeLogRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleChangeLog, error) {
	const query = `SELECT id, schedule_id, action, actor_id, payload, created_at
FROM schedule_change_logs WHERE schedule_id = $1 ORDER BY created_at ASC`
	var entries []models.ScheduleChangeLog
	if err := r.db.SelectContext(ctx, &entries, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule change logs: %w", err)
	}
	return entries, nil
}
