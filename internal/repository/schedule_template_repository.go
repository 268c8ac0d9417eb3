package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ScheduleTemplateRepository persists generation blueprints.
type ScheduleTemplateRepository struct {
	db *sqlx.DB
}

// NewScheduleTemplateRepository constructs the repository.
func NewScheduleTemplateRepository(db *sqlx.DB) *ScheduleTemplateRepository {
	return &ScheduleTemplateRepository{db: db}
}

const templateColumns = `id, institution_id, name, template_type, grade_level_start, grade_level_end,
subject_allocations, periods_per_day, working_days, status, version, parent_template_id,
created_by, created_at, updated_at`

// Create inserts a template. Version 1 for fresh templates; forks carry the
// parent chain and the next version number.
func (r *ScheduleTemplateRepository) Create(ctx context.Context, template *models.ScheduleTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now
	if template.Version == 0 {
		template.Version = 1
	}
	if template.Status == "" {
		template.Status = models.TemplateStatusDraft
	}

	const query = `INSERT INTO schedule_templates (id, institution_id, name, template_type, grade_level_start,
		grade_level_end, subject_allocations, periods_per_day, working_days, status, version, parent_template_id,
		created_by, created_at, updated_at)
	VALUES (:id, :institution_id, :name, :template_type, :grade_level_start,
		:grade_level_end, :subject_allocations, :periods_per_day, :working_days, :status, :version, :parent_template_id,
		:created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, template); err != nil {
		return fmt.Errorf("create schedule template: %w", err)
	}
	return nil
}

// FindByID loads one template.
func (r *ScheduleTemplateRepository) FindByID(ctx context.Context, id string) (*models.ScheduleTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM schedule_templates WHERE id = $1`
	var template models.ScheduleTemplate
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}
	return &template, nil
}

// ListByInstitution returns templates for an institution, newest first.
func (r *ScheduleTemplateRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.ScheduleTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM schedule_templates
WHERE institution_id = $1 ORDER BY created_at DESC`
	var templates []models.ScheduleTemplate
	if err := r.db.SelectContext(ctx, &templates, query, institutionID); err != nil {
		return nil, fmt.Errorf("list schedule templates: %w", err)
	}
	return templates, nil
}

// UpdateStatus advances the template lifecycle.
func (r *ScheduleTemplateRepository) UpdateStatus(ctx context.Context, id string, status models.TemplateStatus) error {
	const query = `UPDATE schedule_templates SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update template status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check template status rows: %w", err)
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// MaxVersionInChain returns the highest version among a template and its
// descendants, for forking.
func (r *ScheduleTemplateRepository) MaxVersionInChain(ctx context.Context, rootID string) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM schedule_templates
WHERE id = $1 OR parent_template_id = $1`
	var version int
	if err := r.db.GetContext(ctx, &version, query, rootID); err != nil {
		return 0, fmt.Errorf("max template version: %w", err)
	}
	return version, nil
}
