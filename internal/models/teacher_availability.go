package models

import "time"

// AvailabilityType classifies what an availability window expresses.
type AvailabilityType string

const (
	AvailabilityAvailable    AvailabilityType = "available"
	AvailabilityUnavailable  AvailabilityType = "unavailable"
	AvailabilityPreferred    AvailabilityType = "preferred"
	AvailabilityRestricted   AvailabilityType = "restricted"
	AvailabilityMeeting      AvailabilityType = "meeting"
	AvailabilityTraining     AvailabilityType = "training"
	AvailabilityPreparation  AvailabilityType = "preparation"
	AvailabilityExamination  AvailabilityType = "examination"
	AvailabilityConsultation AvailabilityType = "consultation"
)

// RecurrenceType describes how an availability window repeats.
type RecurrenceType string

const (
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiWeekly RecurrenceType = "bi_weekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
	RecurrenceOneTime  RecurrenceType = "one_time"
	RecurrenceTerm     RecurrenceType = "term"
	RecurrenceYear     RecurrenceType = "year"
)

// AvailabilityStatus tracks the approval workflow of a window.
type AvailabilityStatus string

const (
	AvailabilityStatusPending  AvailabilityStatus = "pending"
	AvailabilityStatusApproved AvailabilityStatus = "approved"
	AvailabilityStatusRejected AvailabilityStatus = "rejected"
	AvailabilityStatusActive   AvailabilityStatus = "active"
	AvailabilityStatusExpired  AvailabilityStatus = "expired"
)

// TeacherAvailability is one time-bounded, possibly recurring window marking
// a teacher unavailable, preferred or restricted. It is an independent
// constraint layer over the qualification ledger: availability never grants
// qualification.
type TeacherAvailability struct {
	ID                     string             `db:"id" json:"id"`
	TeacherID              string             `db:"teacher_id" json:"teacher_id"`
	DayOfWeek              int                `db:"day_of_week" json:"day_of_week"`
	StartTime              string             `db:"start_time" json:"start_time"`
	EndTime                string             `db:"end_time" json:"end_time"`
	AvailabilityType       AvailabilityType   `db:"availability_type" json:"availability_type"`
	RecurrenceType         RecurrenceType     `db:"recurrence_type" json:"recurrence_type"`
	EffectiveDate          *time.Time         `db:"effective_date" json:"effective_date,omitempty"`
	EndDate                *time.Time         `db:"end_date" json:"end_date,omitempty"`
	Priority               int                `db:"priority" json:"priority"`
	IsFlexible             bool               `db:"is_flexible" json:"is_flexible"`
	IsMandatory            bool               `db:"is_mandatory" json:"is_mandatory"`
	AllowEmergencyOverride bool               `db:"allow_emergency_override" json:"allow_emergency_override"`
	Status                 AvailabilityStatus `db:"status" json:"status"`
	Reason                 string             `db:"reason" json:"reason"`
	ApprovedBy             *string            `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt             *time.Time         `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// CurrentOn reports whether the window applies at the given date.
func (a *TeacherAvailability) CurrentOn(date time.Time) bool {
	if a.EffectiveDate != nil && date.Before(*a.EffectiveDate) {
		return false
	}
	if a.EndDate != nil && date.After(*a.EndDate) {
		return false
	}
	return true
}

// OverlapsClock reports whether the window intersects [start,end).
func (a *TeacherAvailability) OverlapsClock(start, end string) bool {
	return ClockRangesOverlap(a.StartTime, a.EndTime, start, end)
}

// IsHardBlock reports whether the window forbids scheduling outright:
// unavailable/meeting/training, inflexible, and without emergency override.
func (a *TeacherAvailability) IsHardBlock() bool {
	switch a.AvailabilityType {
	case AvailabilityUnavailable, AvailabilityMeeting, AvailabilityTraining:
		return !a.IsFlexible && !a.AllowEmergencyOverride
	default:
		return false
	}
}

// ConflictsWith reports same-teacher, same-day windows whose date ranges and
// clock ranges both overlap.
func (a *TeacherAvailability) ConflictsWith(other *TeacherAvailability) bool {
	if other == nil || a.TeacherID != other.TeacherID || a.DayOfWeek != other.DayOfWeek {
		return false
	}
	if !dateRangesOverlap(a.EffectiveDate, a.EndDate, other.EffectiveDate, other.EndDate) {
		return false
	}
	return a.OverlapsClock(other.StartTime, other.EndTime)
}

func dateRangesOverlap(aFrom, aTo, bFrom, bTo *time.Time) bool {
	// Open-ended ranges overlap unless one ends before the other begins.
	if aTo != nil && bFrom != nil && aTo.Before(*bFrom) {
		return false
	}
	if bTo != nil && aFrom != nil && bTo.Before(*aFrom) {
		return false
	}
	return true
}

// AvailabilityEntry is one classified window reported by an availability
// check. Multiple overlapping windows are all reported, never merged.
type AvailabilityEntry struct {
	AvailabilityID string           `json:"availability_id"`
	Type           AvailabilityType `json:"type"`
	StartTime      string           `json:"start_time"`
	EndTime        string           `json:"end_time"`
	Reason         string           `json:"reason,omitempty"`
	Priority       int              `json:"priority"`
}

// AvailabilityDecision is the outcome of an availability check for one
// candidate window.
type AvailabilityDecision struct {
	IsAvailable  bool                `json:"is_available"`
	Conflicts    []AvailabilityEntry `json:"conflicts"`
	Restrictions []AvailabilityEntry `json:"restrictions"`
	Preferences  []AvailabilityEntry `json:"preferences"`
}

// WeeklyAvailability is the per-day breakdown consumed by teacher-facing UI.
type WeeklyAvailability struct {
	TeacherID string                        `json:"teacher_id"`
	Days      map[int][]TeacherAvailability `json:"days"`
}
