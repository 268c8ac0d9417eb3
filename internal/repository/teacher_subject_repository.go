package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TeacherSubjectRepository persists the qualification ledger.
type TeacherSubjectRepository struct {
	db *sqlx.DB
}

// NewTeacherSubjectRepository constructs the repository.
func NewTeacherSubjectRepository(db *sqlx.DB) *TeacherSubjectRepository {
	return &TeacherSubjectRepository{db: db}
}

const teacherSubjectColumns = `id, teacher_id, subject_id, grade_levels, specialization_level, max_hours_per_week,
max_classes_per_day, max_consecutive_classes, preferred_time_slots, unavailable_time_slots, preferred_days,
requires_lab, requires_projector, requires_computer, is_primary_subject, is_active, valid_from, valid_until,
performance_rating, years_experience, created_at, updated_at`

// Upsert creates or replaces the qualification for a (teacher, subject) pair.
func (r *TeacherSubjectRepository) Upsert(ctx context.Context, ts *models.TeacherSubject) error {
	if ts.ID == "" {
		ts.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = now
	}
	ts.UpdatedAt = now

	const query = `INSERT INTO teacher_subjects (id, teacher_id, subject_id, grade_levels, specialization_level,
		max_hours_per_week, max_classes_per_day, max_consecutive_classes, preferred_time_slots, unavailable_time_slots,
		preferred_days, requires_lab, requires_projector, requires_computer, is_primary_subject, is_active,
		valid_from, valid_until, performance_rating, years_experience, created_at, updated_at)
	VALUES (:id, :teacher_id, :subject_id, :grade_levels, :specialization_level,
		:max_hours_per_week, :max_classes_per_day, :max_consecutive_classes, :preferred_time_slots, :unavailable_time_slots,
		:preferred_days, :requires_lab, :requires_projector, :requires_computer, :is_primary_subject, :is_active,
		:valid_from, :valid_until, :performance_rating, :years_experience, :created_at, :updated_at)
	ON CONFLICT (teacher_id, subject_id) DO UPDATE
	SET grade_levels = EXCLUDED.grade_levels,
	    specialization_level = EXCLUDED.specialization_level,
	    max_hours_per_week = EXCLUDED.max_hours_per_week,
	    max_classes_per_day = EXCLUDED.max_classes_per_day,
	    max_consecutive_classes = EXCLUDED.max_consecutive_classes,
	    preferred_time_slots = EXCLUDED.preferred_time_slots,
	    unavailable_time_slots = EXCLUDED.unavailable_time_slots,
	    preferred_days = EXCLUDED.preferred_days,
	    requires_lab = EXCLUDED.requires_lab,
	    requires_projector = EXCLUDED.requires_projector,
	    requires_computer = EXCLUDED.requires_computer,
	    is_primary_subject = EXCLUDED.is_primary_subject,
	    is_active = EXCLUDED.is_active,
	    valid_from = EXCLUDED.valid_from,
	    valid_until = EXCLUDED.valid_until,
	    performance_rating = EXCLUDED.performance_rating,
	    years_experience = EXCLUDED.years_experience,
	    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, ts); err != nil {
		return fmt.Errorf("upsert teacher subject: %w", err)
	}
	return nil
}

// FindByID loads one qualification.
func (r *TeacherSubjectRepository) FindByID(ctx context.Context, id string) (*models.TeacherSubject, error) {
	query := `SELECT ` + teacherSubjectColumns + ` FROM teacher_subjects WHERE id = $1`
	var ts models.TeacherSubject
	if err := r.db.GetContext(ctx, &ts, query, id); err != nil {
		return nil, err
	}
	return &ts, nil
}

// FindActive returns the active qualification for a (teacher, subject) pair.
func (r *TeacherSubjectRepository) FindActive(ctx context.Context, teacherID, subjectID string) (*models.TeacherSubject, error) {
	query := `SELECT ` + teacherSubjectColumns + ` FROM teacher_subjects
WHERE teacher_id = $1 AND subject_id = $2 AND is_active = TRUE`
	var ts models.TeacherSubject
	if err := r.db.GetContext(ctx, &ts, query, teacherID, subjectID); err != nil {
		return nil, err
	}
	return &ts, nil
}

// ListByTeacher returns all qualifications held by a teacher.
func (r *TeacherSubjectRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherSubject, error) {
	query := `SELECT ` + teacherSubjectColumns + ` FROM teacher_subjects
WHERE teacher_id = $1 ORDER BY is_primary_subject DESC, subject_id ASC`
	var items []models.TeacherSubject
	if err := r.db.SelectContext(ctx, &items, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher subjects: %w", err)
	}
	return items, nil
}

// ListQualified returns active qualifications for a subject covering the
// grade, ranked by performance rating desc, experience desc, specialization
// level asc.
func (r *TeacherSubjectRepository) ListQualified(ctx context.Context, subjectID string, grade int) ([]models.QualifiedTeacher, error) {
	const query = `
SELECT ts.id, ts.teacher_id, ts.subject_id, ts.grade_levels, ts.specialization_level, ts.max_hours_per_week,
       ts.max_classes_per_day, ts.max_consecutive_classes, ts.preferred_time_slots, ts.unavailable_time_slots,
       ts.preferred_days, ts.requires_lab, ts.requires_projector, ts.requires_computer, ts.is_primary_subject,
       ts.is_active, ts.valid_from, ts.valid_until, ts.performance_rating, ts.years_experience,
       ts.created_at, ts.updated_at, t.full_name AS teacher_name
FROM teacher_subjects ts
JOIN teachers t ON t.id = ts.teacher_id
WHERE ts.subject_id = $1 AND ts.is_active = TRUE AND $2 = ANY(ts.grade_levels)
ORDER BY ts.performance_rating DESC, ts.years_experience DESC,
         CASE ts.specialization_level
              WHEN 'basic' THEN 0 WHEN 'intermediate' THEN 1 WHEN 'advanced' THEN 2
              WHEN 'expert' THEN 3 ELSE 4 END ASC`
	var items []models.QualifiedTeacher
	if err := r.db.SelectContext(ctx, &items, query, subjectID, grade); err != nil {
		return nil, fmt.Errorf("list qualified teachers: %w", err)
	}
	return items, nil
}
