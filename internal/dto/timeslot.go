package dto

// CreateTimeSlotRequest defines one bookable period of the day.
type CreateTimeSlotRequest struct {
	InstitutionID    string `json:"institutionId" validate:"required"`
	Name             string `json:"name" validate:"required"`
	Code             string `json:"code" validate:"required"`
	StartTime        string `json:"startTime" validate:"required"`
	EndTime          string `json:"endTime" validate:"required"`
	SlotType         string `json:"slotType" validate:"required,oneof=class break lunch assembly activity exam preparation"`
	ApplicableDays   []int  `json:"applicableDays" validate:"required,min=1,dive,min=1,max=7"`
	OrderIndex       int    `json:"orderIndex" validate:"min=0"`
	IsTeachingPeriod bool   `json:"isTeachingPeriod"`
	AllowConflicts   bool   `json:"allowConflicts"`
}

// SeedStandardSlotsRequest seeds the canonical daily grid for an institution.
type SeedStandardSlotsRequest struct {
	InstitutionID string `json:"institutionId" validate:"required"`
}
