package models

import (
	"time"

	"github.com/lib/pq"
)

// SpecializationLevel ranks how deeply a teacher commands a subject.
type SpecializationLevel string

const (
	SpecializationBasic        SpecializationLevel = "basic"
	SpecializationIntermediate SpecializationLevel = "intermediate"
	SpecializationAdvanced     SpecializationLevel = "advanced"
	SpecializationExpert       SpecializationLevel = "expert"
	SpecializationMaster       SpecializationLevel = "master"
)

// Ordinal maps the level to its position, basic=0 .. master=4.
func (l SpecializationLevel) Ordinal() int {
	switch l {
	case SpecializationIntermediate:
		return 1
	case SpecializationAdvanced:
		return 2
	case SpecializationExpert:
		return 3
	case SpecializationMaster:
		return 4
	default:
		return 0
	}
}

// ScoreBonus is the assignment-score contribution of the level (basic 0,
// master 20).
func (l SpecializationLevel) ScoreBonus() int {
	return l.Ordinal() * 5
}

// TeacherSubject is the qualification ledger entry: the authoritative record
// of whether a teacher may take a (subject, grade) session and under which
// workload caps.
type TeacherSubject struct {
	ID                    string              `db:"id" json:"id"`
	TeacherID             string              `db:"teacher_id" json:"teacher_id"`
	SubjectID             string              `db:"subject_id" json:"subject_id"`
	GradeLevels           pq.Int64Array       `db:"grade_levels" json:"grade_levels"`
	SpecializationLevel   SpecializationLevel `db:"specialization_level" json:"specialization_level"`
	MaxHoursPerWeek       int                 `db:"max_hours_per_week" json:"max_hours_per_week"`
	MaxClassesPerDay      int                 `db:"max_classes_per_day" json:"max_classes_per_day"`
	MaxConsecutiveClasses int                 `db:"max_consecutive_classes" json:"max_consecutive_classes"`
	PreferredTimeSlots    pq.StringArray      `db:"preferred_time_slots" json:"preferred_time_slots"`
	UnavailableTimeSlots  pq.StringArray      `db:"unavailable_time_slots" json:"unavailable_time_slots"`
	PreferredDays         pq.Int64Array       `db:"preferred_days" json:"preferred_days"`
	RequiresLab           bool                `db:"requires_lab" json:"requires_lab"`
	RequiresProjector     bool                `db:"requires_projector" json:"requires_projector"`
	RequiresComputer      bool                `db:"requires_computer" json:"requires_computer"`
	IsPrimarySubject      bool                `db:"is_primary_subject" json:"is_primary_subject"`
	IsActive              bool                `db:"is_active" json:"is_active"`
	ValidFrom             *time.Time          `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil            *time.Time          `db:"valid_until" json:"valid_until,omitempty"`
	PerformanceRating     float64             `db:"performance_rating" json:"performance_rating"`
	YearsExperience       int                 `db:"years_experience" json:"years_experience"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}

// CanTeachGrade reports whether the grade is within the qualification.
func (ts *TeacherSubject) CanTeachGrade(grade int) bool {
	for _, g := range ts.GradeLevels {
		if int(g) == grade {
			return true
		}
	}
	return false
}

// AvailableOnDay reports whether the teacher takes sessions on the weekday.
// An unset preferred-day list defaults to the Monday-Friday school week.
func (ts *TeacherSubject) AvailableOnDay(day int) bool {
	if len(ts.PreferredDays) == 0 {
		return day >= 1 && day <= 5
	}
	for _, d := range ts.PreferredDays {
		if int(d) == day {
			return true
		}
	}
	return false
}

// PrefersTimeSlot reports preference for the slot id.
func (ts *TeacherSubject) PrefersTimeSlot(slotID string) bool {
	for _, id := range ts.PreferredTimeSlots {
		if id == slotID {
			return true
		}
	}
	return false
}

// UnavailableAtTimeSlot reports a hard slot exclusion.
func (ts *TeacherSubject) UnavailableAtTimeSlot(slotID string) bool {
	for _, id := range ts.UnavailableTimeSlots {
		if id == slotID {
			return true
		}
	}
	return false
}

// CurrentOn reports whether the qualification is active and inside its
// validity window at the given date.
func (ts *TeacherSubject) CurrentOn(date time.Time) bool {
	if !ts.IsActive {
		return false
	}
	if ts.ValidFrom != nil && date.Before(*ts.ValidFrom) {
		return false
	}
	if ts.ValidUntil != nil && date.After(*ts.ValidUntil) {
		return false
	}
	return true
}

// RoomRequirements lists the capabilities a room must provide.
func (ts *TeacherSubject) RoomRequirements() []string {
	var reqs []string
	if ts.RequiresLab {
		reqs = append(reqs, "lab")
	}
	if ts.RequiresProjector {
		reqs = append(reqs, "projector")
	}
	if ts.RequiresComputer {
		reqs = append(reqs, "computer")
	}
	return reqs
}

// WorkloadSummary aggregates a teacher-subject's booked sessions.
type WorkloadSummary struct {
	TotalHours     float64 `json:"total_hours"`
	Sessions       int     `json:"sessions"`
	HoursRemaining float64 `json:"hours_remaining"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// ConsecutiveBlock is a run of same-day sessions separated by gaps of at most
// fifteen minutes.
type ConsecutiveBlock struct {
	SessionIDs []string `json:"session_ids"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	ExceedsCap bool     `json:"exceeds_cap"`
}

// DailyWorkload summarises one weekday of bookings for a teacher-subject.
type DailyWorkload struct {
	Sessions          int                `json:"sessions"`
	TotalHours        float64            `json:"total_hours"`
	ConsecutiveBlocks []ConsecutiveBlock `json:"consecutive_blocks"`
	CapExceeded       bool               `json:"cap_exceeded"`
}

// AssignmentEvaluation is the qualification gate verdict for one candidate
// session. Conflicts accumulate every violated check; the score is computed
// regardless so infeasible candidates can still be ranked.
type AssignmentEvaluation struct {
	CanAssign bool       `json:"can_assign"`
	Conflicts []Conflict `json:"conflicts"`
	Score     int        `json:"assignment_score"`
}

// QualifiedTeacher is one entry of the ranked suggestion list for a
// (subject, grade) pair.
type QualifiedTeacher struct {
	TeacherSubject
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}
