package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// TemplateStatus tracks a template's lifecycle. Templates in active use are
// immutable; new versions fork via ParentTemplateID.
type TemplateStatus string

const (
	TemplateStatusDraft      TemplateStatus = "draft"
	TemplateStatusTesting    TemplateStatus = "testing"
	TemplateStatusActive     TemplateStatus = "active"
	TemplateStatusDeprecated TemplateStatus = "deprecated"
	TemplateStatusArchived   TemplateStatus = "archived"
)

// SubjectAllocation assigns weekly hours of one subject inside a template.
type SubjectAllocation struct {
	SubjectID          string `json:"subject_id"`
	WeeklyHours        int    `json:"weekly_hours"`
	PreferredTeacherID string `json:"preferred_teacher_id,omitempty"`
}

// ScheduleTemplate is a reusable generation blueprint consumed at
// schedule-creation time.
type ScheduleTemplate struct {
	ID                 string         `db:"id" json:"id"`
	InstitutionID      string         `db:"institution_id" json:"institution_id"`
	Name               string         `db:"name" json:"name"`
	TemplateType       ScheduleType   `db:"template_type" json:"template_type"`
	GradeLevelStart    int            `db:"grade_level_start" json:"grade_level_start"`
	GradeLevelEnd      int            `db:"grade_level_end" json:"grade_level_end"`
	SubjectAllocations types.JSONText `db:"subject_allocations" json:"subject_allocations"`
	PeriodsPerDay      int            `db:"periods_per_day" json:"periods_per_day"`
	WorkingDays        pq.Int64Array  `db:"working_days" json:"working_days"`
	Status             TemplateStatus `db:"status" json:"status"`
	Version            int            `db:"version" json:"version"`
	ParentTemplateID   *string        `db:"parent_template_id" json:"parent_template_id,omitempty"`
	CreatedBy          string         `db:"created_by" json:"created_by"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Allocations decodes the stored subject allocation list.
func (t *ScheduleTemplate) Allocations() ([]SubjectAllocation, error) {
	if len(t.SubjectAllocations) == 0 {
		return nil, nil
	}
	var allocations []SubjectAllocation
	if err := json.Unmarshal(t.SubjectAllocations, &allocations); err != nil {
		return nil, fmt.Errorf("decode subject allocations: %w", err)
	}
	return allocations, nil
}

// SetAllocations encodes the subject allocation list for storage.
func (t *ScheduleTemplate) SetAllocations(allocations []SubjectAllocation) error {
	payload, err := json.Marshal(allocations)
	if err != nil {
		return fmt.Errorf("encode subject allocations: %w", err)
	}
	t.SubjectAllocations = types.JSONText(payload)
	return nil
}

// CoversGrade reports whether the grade level falls in the template range.
func (t *ScheduleTemplate) CoversGrade(level int) bool {
	return level >= t.GradeLevelStart && level <= t.GradeLevelEnd
}
