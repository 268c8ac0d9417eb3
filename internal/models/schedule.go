package models

import (
	"time"

	"github.com/lib/pq"
)

// ScheduleStatus tracks the workflow state of a schedule aggregate.
type ScheduleStatus string

const (
	ScheduleStatusDraft         ScheduleStatus = "draft"
	ScheduleStatusPendingReview ScheduleStatus = "pending_review"
	ScheduleStatusUnderReview   ScheduleStatus = "under_review"
	ScheduleStatusApproved      ScheduleStatus = "approved"
	ScheduleStatusActive        ScheduleStatus = "active"
	ScheduleStatusSuspended     ScheduleStatus = "suspended"
	ScheduleStatusArchived      ScheduleStatus = "archived"
	ScheduleStatusRejected      ScheduleStatus = "rejected"
)

// ScheduleType scopes a schedule. Together with the grade it forms the
// exclusivity scope: at most one active schedule per (grade, type).
type ScheduleType string

const (
	ScheduleTypeRegular   ScheduleType = "regular"
	ScheduleTypeExam      ScheduleType = "exam"
	ScheduleTypeHoliday   ScheduleType = "holiday"
	ScheduleTypeSpecial   ScheduleType = "special"
	ScheduleTypeTemporary ScheduleType = "temporary"
	ScheduleTypeMakeup    ScheduleType = "makeup"
	ScheduleTypeSummer    ScheduleType = "summer"
)

// GenerationMethod records how a schedule came to exist.
type GenerationMethod string

const (
	GenerationManual    GenerationMethod = "manual"
	GenerationTemplate  GenerationMethod = "template"
	GenerationAutomated GenerationMethod = "automated"
	GenerationImported  GenerationMethod = "imported"
	GenerationCopied    GenerationMethod = "copied"
)

// Schedule is the versioned container of sessions for one grade and type.
type Schedule struct {
	ID                 string           `db:"id" json:"id"`
	Name               string           `db:"name" json:"name"`
	AcademicYearID     string           `db:"academic_year_id" json:"academic_year_id"`
	InstitutionID      string           `db:"institution_id" json:"institution_id"`
	GradeID            string           `db:"grade_id" json:"grade_id"`
	ScheduleType       ScheduleType     `db:"schedule_type" json:"schedule_type"`
	EffectiveDate      *time.Time       `db:"effective_date" json:"effective_date,omitempty"`
	EndDate            *time.Time       `db:"end_date" json:"end_date,omitempty"`
	WorkingDays        pq.Int64Array    `db:"working_days" json:"working_days"`
	Status             ScheduleStatus   `db:"status" json:"status"`
	GenerationMethod   GenerationMethod `db:"generation_method" json:"generation_method"`
	TemplateID         *string          `db:"template_id" json:"template_id,omitempty"`
	Version            int              `db:"version" json:"version"`
	OptimizationScore  float64          `db:"optimization_score" json:"optimization_score"`
	ConflictCount      int              `db:"conflict_count" json:"conflict_count"`
	TeacherUtilization float64          `db:"teacher_utilization" json:"teacher_utilization"`
	RoomUtilization    float64          `db:"room_utilization" json:"room_utilization"`
	SubmittedBy        *string          `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt        *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedBy         *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ApprovedBy         *string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	ActivatedAt        *time.Time       `db:"activated_at" json:"activated_at,omitempty"`
	RejectionReason    *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SuspensionReason   *string          `db:"suspension_reason" json:"suspension_reason,omitempty"`
	CreatedBy          string           `db:"created_by" json:"created_by"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// WorksOn reports whether the weekday belongs to the schedule's school week.
func (s *Schedule) WorksOn(day int) bool {
	for _, d := range s.WorkingDays {
		if int(d) == day {
			return true
		}
	}
	return false
}

// SessionStatus tracks one session's lifecycle. Sessions are never deleted
// once the schedule leaves draft; they are cancelled in place.
type SessionStatus string

const (
	SessionStatusScheduled   SessionStatus = "scheduled"
	SessionStatusConfirmed   SessionStatus = "confirmed"
	SessionStatusCancelled   SessionStatus = "cancelled"
	SessionStatusMoved       SessionStatus = "moved"
	SessionStatusSubstituted SessionStatus = "substituted"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusInProgress  SessionStatus = "in_progress"
)

// ScheduleSession is one subject x teacher x room x day x slot occurrence
// owned by exactly one schedule.
type ScheduleSession struct {
	ID                  string        `db:"id" json:"id"`
	ScheduleID          string        `db:"schedule_id" json:"schedule_id"`
	SubjectID           string        `db:"subject_id" json:"subject_id"`
	TeacherID           string        `db:"teacher_id" json:"teacher_id"`
	RoomID              *string       `db:"room_id" json:"room_id,omitempty"`
	TimeSlotID          string        `db:"time_slot_id" json:"time_slot_id"`
	DayOfWeek           int           `db:"day_of_week" json:"day_of_week"`
	PeriodNumber        int           `db:"period_number" json:"period_number"`
	StartTime           string        `db:"start_time" json:"start_time"`
	EndTime             string        `db:"end_time" json:"end_time"`
	DurationMinutes     int           `db:"duration_minutes" json:"duration_minutes"`
	SessionType         string        `db:"session_type" json:"session_type"`
	Status              SessionStatus `db:"status" json:"status"`
	SubstituteTeacherID *string       `db:"substitute_teacher_id" json:"substitute_teacher_id,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// Countable reports whether the session participates in conflict detection
// and workload accounting.
func (s *ScheduleSession) Countable() bool {
	return s.Status != SessionStatusCancelled
}

// Room returns the room id or empty when unassigned.
func (s *ScheduleSession) Room() string {
	if s.RoomID == nil {
		return ""
	}
	return *s.RoomID
}

// ValidationReport accumulates every blocking error and advisory warning of
// a schedule validation pass.
type ValidationReport struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ScheduleStatistics is the dashboard-facing summary of a schedule.
type ScheduleStatistics struct {
	ScheduleID         string         `json:"schedule_id"`
	TotalSessions      int            `json:"total_sessions"`
	TotalTeachers      int            `json:"total_teachers"`
	TotalRooms         int            `json:"total_rooms"`
	Conflicts          int            `json:"conflicts"`
	TeacherUtilization float64        `json:"teacher_utilization"`
	RoomUtilization    float64        `json:"room_utilization"`
	SessionsByDay      map[int]int    `json:"sessions_by_day"`
	SessionsByType     map[string]int `json:"sessions_by_type"`
	OptimizationScore  float64        `json:"optimization_score"`
}

// ScheduleFilter narrows schedule listings.
type ScheduleFilter struct {
	AcademicYearID string
	InstitutionID  string
	GradeID        string
	ScheduleType   ScheduleType
	Status         ScheduleStatus
	Page           int
	PageSize       int
}
