package dto

// TemplateAllocation maps one subject to its weekly hours.
type TemplateAllocation struct {
	SubjectID          string `json:"subjectId" validate:"required"`
	WeeklyHours        int    `json:"weeklyHours" validate:"required,min=1,max=20"`
	PreferredTeacherID string `json:"preferredTeacherId"`
}

// CreateTemplateRequest authors a new generation blueprint.
type CreateTemplateRequest struct {
	InstitutionID   string               `json:"institutionId" validate:"required"`
	Name            string               `json:"name" validate:"required"`
	TemplateType    string               `json:"templateType" validate:"required,oneof=regular exam holiday special temporary makeup summer"`
	GradeLevelStart int                  `json:"gradeLevelStart" validate:"required,min=1,max=12"`
	GradeLevelEnd   int                  `json:"gradeLevelEnd" validate:"required,min=1,max=12,gtefield=GradeLevelStart"`
	Allocations     []TemplateAllocation `json:"allocations" validate:"required,min=1,dive"`
	PeriodsPerDay   int                  `json:"periodsPerDay" validate:"required,min=1,max=12"`
	WorkingDays     []int                `json:"workingDays" validate:"required,min=1,dive,min=1,max=7"`
}

// ForkTemplateRequest creates a new version of an existing template.
type ForkTemplateRequest struct {
	Name        string               `json:"name"`
	Allocations []TemplateAllocation `json:"allocations" validate:"omitempty,min=1,dive"`
}

// UpdateTemplateStatusRequest moves a template along its lifecycle.
type UpdateTemplateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft testing active deprecated archived"`
}

// GenerateFromTemplateRequest seeds a draft schedule from a template.
type GenerateFromTemplateRequest struct {
	TemplateID     string `json:"templateId" validate:"required"`
	Name           string `json:"name" validate:"required"`
	AcademicYearID string `json:"academicYearId" validate:"required"`
	GradeID        string `json:"gradeId" validate:"required"`
	GradeLevel     int    `json:"gradeLevel" validate:"required,min=1,max=12"`
}
