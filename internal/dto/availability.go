package dto

// CreateAvailabilityRequest registers a new availability window. It enters
// the approval workflow in pending state.
type CreateAvailabilityRequest struct {
	TeacherID              string `json:"teacherId" validate:"required"`
	DayOfWeek              int    `json:"dayOfWeek" validate:"required,min=1,max=7"`
	StartTime              string `json:"startTime" validate:"required"`
	EndTime                string `json:"endTime" validate:"required"`
	AvailabilityType       string `json:"availabilityType" validate:"required,oneof=available unavailable preferred restricted meeting training preparation examination consultation"`
	RecurrenceType         string `json:"recurrenceType" validate:"required,oneof=weekly bi_weekly monthly one_time term year"`
	EffectiveDate          string `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate                string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Priority               int    `json:"priority" validate:"min=0"`
	IsFlexible             bool   `json:"isFlexible"`
	IsMandatory            bool   `json:"isMandatory"`
	AllowEmergencyOverride bool   `json:"allowEmergencyOverride"`
	Reason                 string `json:"reason"`
}

// AvailabilityCheckQuery asks whether a teacher is free in a window.
type AvailabilityCheckQuery struct {
	TeacherID string `form:"teacherId" json:"teacherId" validate:"required"`
	DayOfWeek int    `form:"dayOfWeek" json:"dayOfWeek" validate:"required,min=1,max=7"`
	StartTime string `form:"startTime" json:"startTime" validate:"required"`
	EndTime   string `form:"endTime" json:"endTime" validate:"required"`
	Date      string `form:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// RejectAvailabilityRequest carries the rejection reason.
type RejectAvailabilityRequest struct {
	Reason string `json:"reason" validate:"required"`
}
