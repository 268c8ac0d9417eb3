package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ScheduleRepository persists schedule aggregates.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const scheduleColumns = `id, name, academic_year_id, institution_id, grade_id, schedule_type, effective_date, end_date,
working_days, status, generation_method, template_id, version, optimization_score, conflict_count,
teacher_utilization, room_utilization, submitted_by, submitted_at, reviewed_by, reviewed_at,
approved_by, approved_at, activated_at, rejection_reason, suspension_reason, created_by, created_at, updated_at`

// Create inserts a new draft schedule, versioned within its scope.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusDraft
	}

	target := r.exec(exec)

	const versionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM schedules WHERE grade_id = $1 AND schedule_type = $2`
	row := target.QueryRowxContext(ctx, versionQuery, schedule.GradeID, schedule.ScheduleType)
	if err := row.Scan(&schedule.Version); err != nil {
		return fmt.Errorf("next schedule version: %w", err)
	}

	const query = `INSERT INTO schedules (id, name, academic_year_id, institution_id, grade_id, schedule_type,
		effective_date, end_date, working_days, status, generation_method, template_id, version,
		optimization_score, conflict_count, teacher_utilization, room_utilization,
		submitted_by, submitted_at, reviewed_by, reviewed_at, approved_by, approved_at, activated_at,
		rejection_reason, suspension_reason, created_by, created_at, updated_at)
	VALUES (:id, :name, :academic_year_id, :institution_id, :grade_id, :schedule_type,
		:effective_date, :end_date, :working_days, :status, :generation_method, :template_id, :version,
		:optimization_score, :conflict_count, :teacher_utilization, :room_utilization,
		:submitted_by, :submitted_at, :reviewed_by, :reviewed_at, :approved_by, :approved_at, :activated_at,
		:rejection_reason, :suspension_reason, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// FindByID loads one schedule.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// List returns schedules matching the filter, newest first.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	clauses := []string{"1 = 1"}
	args := []interface{}{}

	add := func(condition string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, condition+" $"+strconv.Itoa(len(args)))
	}
	if filter.AcademicYearID != "" {
		add("academic_year_id =", filter.AcademicYearID)
	}
	if filter.InstitutionID != "" {
		add("institution_id =", filter.InstitutionID)
	}
	if filter.GradeID != "" {
		add("grade_id =", filter.GradeID)
	}
	if filter.ScheduleType != "" {
		add("schedule_type =", filter.ScheduleType)
	}
	if filter.Status != "" {
		add("status =", filter.Status)
	}

	where := strings.Join(clauses, " AND ")

	countQuery := `SELECT COUNT(*) FROM schedules WHERE ` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE ` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, total, nil
}

// UpdateWorkflow persists the workflow fields after a state transition.
func (r *ScheduleRepository) UpdateWorkflow(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules
SET status = :status,
    submitted_by = :submitted_by, submitted_at = :submitted_at,
    reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
    approved_by = :approved_by, approved_at = :approved_at,
    activated_at = :activated_at,
    rejection_reason = :rejection_reason, suspension_reason = :suspension_reason,
    optimization_score = :optimization_score, conflict_count = :conflict_count,
    updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule)
	if err != nil {
		return fmt.Errorf("update schedule workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check schedule workflow rows: %w", err)
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// SupersedeActiveInScope suspends every other active schedule sharing the
// (grade, type) scope. Runs inside the activation transaction so the
// single-active invariant holds atomically.
func (r *ScheduleRepository) SupersedeActiveInScope(ctx context.Context, exec sqlx.ExtContext, gradeID string, scheduleType models.ScheduleType, excludeID, reason string) ([]string, error) {
	const query = `UPDATE schedules
SET status = 'suspended', suspension_reason = $4, updated_at = $5
WHERE grade_id = $1 AND schedule_type = $2 AND status = 'active' AND id <> $3
RETURNING id`
	rows, err := r.exec(exec).QueryxContext(ctx, query, gradeID, scheduleType, excludeID, reason, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("supersede active schedules: %w", err)
	}
	defer rows.Close()

	var superseded []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan superseded schedule: %w", err)
		}
		superseded = append(superseded, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate superseded schedules: %w", err)
	}
	return superseded, nil
}

// UpdateMetrics stores the advisory score and conflict/utilization figures.
func (r *ScheduleRepository) UpdateMetrics(ctx context.Context, id string, score float64, conflicts int, teacherUtil, roomUtil float64) error {
	const query = `UPDATE schedules
SET optimization_score = $2, conflict_count = $3, teacher_utilization = $4, room_utilization = $5, updated_at = $6
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, score, conflicts, teacherUtil, roomUtil, time.Now().UTC()); err != nil {
		return fmt.Errorf("update schedule metrics: %w", err)
	}
	return nil
}
