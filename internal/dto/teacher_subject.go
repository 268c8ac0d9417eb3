package dto

// UpsertTeacherSubjectRequest creates or updates a qualification record.
type UpsertTeacherSubjectRequest struct {
	TeacherID             string   `json:"teacherId" validate:"required"`
	SubjectID             string   `json:"subjectId" validate:"required"`
	GradeLevels           []int    `json:"gradeLevels" validate:"required,min=1,dive,min=1,max=12"`
	SpecializationLevel   string   `json:"specializationLevel" validate:"required,oneof=basic intermediate advanced expert master"`
	MaxHoursPerWeek       int      `json:"maxHoursPerWeek" validate:"min=0,max=60"`
	MaxClassesPerDay      int      `json:"maxClassesPerDay" validate:"min=0,max=12"`
	MaxConsecutiveClasses int      `json:"maxConsecutiveClasses" validate:"min=0,max=8"`
	PreferredTimeSlots    []string `json:"preferredTimeSlots"`
	UnavailableTimeSlots  []string `json:"unavailableTimeSlots"`
	PreferredDays         []int    `json:"preferredDays" validate:"omitempty,dive,min=1,max=7"`
	RequiresLab           bool     `json:"requiresLab"`
	RequiresProjector     bool     `json:"requiresProjector"`
	RequiresComputer      bool     `json:"requiresComputer"`
	IsPrimarySubject      bool     `json:"isPrimarySubject"`
	ValidFrom             string   `json:"validFrom" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil            string   `json:"validUntil" validate:"omitempty,datetime=2006-01-02"`
	PerformanceRating     float64  `json:"performanceRating" validate:"min=0,max=5"`
	YearsExperience       int      `json:"yearsExperience" validate:"min=0"`
}

// SessionCandidate describes a session assignment under evaluation by the
// qualification gate.
type SessionCandidate struct {
	TeacherID  string `json:"teacherId" validate:"required"`
	SubjectID  string `json:"subjectId" validate:"required"`
	GradeLevel int    `json:"gradeLevel" validate:"required,min=1,max=12"`
	TimeSlotID string `json:"timeSlotId" validate:"required"`
	DayOfWeek  int    `json:"dayOfWeek" validate:"required,min=1,max=7"`
	StartTime  string `json:"startTime" validate:"required"`
	EndTime    string `json:"endTime" validate:"required"`
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// QualifiedTeachersQuery filters the ranked teacher suggestion list.
type QualifiedTeachersQuery struct {
	SubjectID  string `form:"subjectId" json:"subjectId"`
	GradeLevel int    `form:"gradeLevel" json:"gradeLevel"`
}
