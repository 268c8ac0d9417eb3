package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SlotType categorises what a period of the day is used for.
type SlotType string

const (
	SlotTypeClass       SlotType = "class"
	SlotTypeBreak       SlotType = "break"
	SlotTypeLunch       SlotType = "lunch"
	SlotTypeAssembly    SlotType = "assembly"
	SlotTypeActivity    SlotType = "activity"
	SlotTypeExam        SlotType = "exam"
	SlotTypePreparation SlotType = "preparation"
)

// TimeSlot is one named, bounded period of the school day. Sessions reference
// slots by id; slots are soft-disabled via IsActive once referenced.
type TimeSlot struct {
	ID               string        `db:"id" json:"id"`
	InstitutionID    string        `db:"institution_id" json:"institution_id"`
	Name             string        `db:"name" json:"name"`
	Code             string        `db:"code" json:"code"`
	StartTime        string        `db:"start_time" json:"start_time"`
	EndTime          string        `db:"end_time" json:"end_time"`
	DurationMinutes  int           `db:"duration_minutes" json:"duration_minutes"`
	SlotType         SlotType      `db:"slot_type" json:"slot_type"`
	ApplicableDays   pq.Int64Array `db:"applicable_days" json:"applicable_days"`
	OrderIndex       int           `db:"order_index" json:"order_index"`
	IsActive         bool          `db:"is_active" json:"is_active"`
	IsTeachingPeriod bool          `db:"is_teaching_period" json:"is_teaching_period"`
	AllowConflicts   bool          `db:"allow_conflicts" json:"allow_conflicts"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// ApplicableOn reports whether the slot is bookable on the given ISO weekday
// (1=Monday .. 7=Sunday).
func (t *TimeSlot) ApplicableOn(day int) bool {
	for _, d := range t.ApplicableDays {
		if int(d) == day {
			return true
		}
	}
	return false
}

// Overlaps reports whether two slots share at least one applicable day and
// their [start,end) clock intervals intersect.
func (t *TimeSlot) Overlaps(other *TimeSlot) bool {
	if other == nil {
		return false
	}
	shared := false
	for _, d := range t.ApplicableDays {
		if other.ApplicableOn(int(d)) {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	return ClockRangesOverlap(t.StartTime, t.EndTime, other.StartTime, other.EndTime)
}

// MinuteOfDay parses a "HH:MM" clock value into minutes since midnight.
func MinuteOfDay(clock string) (int, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// ClockRangesOverlap reports whether [aStart,aEnd) and [bStart,bEnd)
// intersect. Unparseable values are treated as non-overlapping.
func ClockRangesOverlap(aStart, aEnd, bStart, bEnd string) bool {
	as, err1 := MinuteOfDay(aStart)
	ae, err2 := MinuteOfDay(aEnd)
	bs, err3 := MinuteOfDay(bStart)
	be, err4 := MinuteOfDay(bEnd)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return as < be && bs < ae
}

// ClockDuration returns the whole-minute distance between two "HH:MM" values.
func ClockDuration(start, end string) (int, error) {
	s, err := MinuteOfDay(start)
	if err != nil {
		return 0, err
	}
	e, err := MinuteOfDay(end)
	if err != nil {
		return 0, err
	}
	return e - s, nil
}
