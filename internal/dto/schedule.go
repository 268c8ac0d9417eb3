package dto

// CreateScheduleRequest opens a new draft schedule.
type CreateScheduleRequest struct {
	Name           string `json:"name" validate:"required"`
	AcademicYearID string `json:"academicYearId" validate:"required"`
	InstitutionID  string `json:"institutionId" validate:"required"`
	GradeID        string `json:"gradeId" validate:"required"`
	ScheduleType   string `json:"scheduleType" validate:"required,oneof=regular exam holiday special temporary makeup summer"`
	EffectiveDate  string `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate        string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	WorkingDays    []int  `json:"workingDays" validate:"required,min=1,dive,min=1,max=7"`
}

// AddSessionRequest appends one session to a draft schedule.
type AddSessionRequest struct {
	SubjectID    string `json:"subjectId" validate:"required"`
	TeacherID    string `json:"teacherId" validate:"required"`
	RoomID       string `json:"roomId"`
	TimeSlotID   string `json:"timeSlotId" validate:"required"`
	DayOfWeek    int    `json:"dayOfWeek" validate:"required,min=1,max=7"`
	PeriodNumber int    `json:"periodNumber" validate:"min=0"`
	SessionType  string `json:"sessionType"`
	GradeLevel   int    `json:"gradeLevel" validate:"required,min=1,max=12"`
}

// CopyScheduleRequest deep-copies a schedule into a fresh draft. Overrides
// are optional; unset fields carry over from the source.
type CopyScheduleRequest struct {
	Name          string `json:"name"`
	EffectiveDate string `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate       string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// RejectScheduleRequest carries the review rejection reason.
type RejectScheduleRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// SuspendScheduleRequest carries the suspension reason.
type SuspendScheduleRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ScheduleQuery filters schedule listings.
type ScheduleQuery struct {
	AcademicYearID string `form:"academicYearId" json:"academicYearId"`
	InstitutionID  string `form:"institutionId" json:"institutionId"`
	GradeID        string `form:"gradeId" json:"gradeId"`
	ScheduleType   string `form:"scheduleType" json:"scheduleType"`
	Status         string `form:"status" json:"status"`
	Page           int    `form:"page" json:"page"`
	PageSize       int    `form:"pageSize" json:"pageSize"`
}
