package models

import (
	"fmt"
	"sort"
	"strings"
)

// ConflictKind enumerates every violation the reporters can emit. One case
// per concrete conflict shape instead of a schemaless detail blob.
type ConflictKind string

const (
	ConflictTeacherDoubleBooking ConflictKind = "teacher_double_booking"
	ConflictRoomDoubleBooking    ConflictKind = "room_double_booking"
	ConflictCrossSchedule        ConflictKind = "cross_schedule_booking"
	ConflictGradeMismatch        ConflictKind = "grade_mismatch"
	ConflictQualificationExpired ConflictKind = "qualification_expired"
	ConflictDayUnavailable       ConflictKind = "day_unavailable"
	ConflictSlotUnavailable      ConflictKind = "slot_unavailable"
	ConflictWeeklyOverload       ConflictKind = "weekly_overload"
	ConflictDailyOverload        ConflictKind = "daily_overload"
	ConflictConsecutiveOverload  ConflictKind = "consecutive_overload"
	ConflictDuplicateBooking     ConflictKind = "duplicate_booking"
	ConflictTeacherUnavailable   ConflictKind = "teacher_unavailable"
)

// ConflictSeverity grades how blocking a conflict is.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical"
	SeverityHigh     ConflictSeverity = "high"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityLow      ConflictSeverity = "low"
)

// Conflict is a structured violation record emitted by the schedule
// aggregate and the qualification/availability gates.
type Conflict struct {
	Kind       ConflictKind     `json:"kind"`
	Severity   ConflictSeverity `json:"severity"`
	Message    string           `json:"message"`
	TeacherID  string           `json:"teacher_id,omitempty"`
	RoomID     string           `json:"room_id,omitempty"`
	TimeSlotID string           `json:"time_slot_id,omitempty"`
	DayOfWeek  int              `json:"day_of_week,omitempty"`
	SessionIDs []string         `json:"session_ids,omitempty"`
}

// Key returns a stable identity for the conflict so repeated detection runs
// over an unchanged schedule yield a comparable set.
func (c Conflict) Key() string {
	ids := append([]string(nil), c.SessionIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("%s|%s|%s|%d|%s", c.Kind, c.TeacherID, c.RoomID, c.DayOfWeek, strings.Join(ids, ","))
}
