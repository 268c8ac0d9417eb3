package models

import "time"

// Directory records resolve external identifiers (institution, grade, room,
// subject, teacher, academic year). They are owned by other flows; the
// scheduling core only reads them.

// Institution is a school the registry belongs to.
type Institution struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Grade is one grade level within an institution.
type Grade struct {
	ID            string `db:"id" json:"id"`
	InstitutionID string `db:"institution_id" json:"institution_id"`
	Name          string `db:"name" json:"name"`
	Level         int    `db:"level" json:"level"`
	IsActive      bool   `db:"is_active" json:"is_active"`
}

// Room is a bookable space with capability flags matched against
// qualification room requirements.
type Room struct {
	ID            string `db:"id" json:"id"`
	InstitutionID string `db:"institution_id" json:"institution_id"`
	Name          string `db:"name" json:"name"`
	Capacity      int    `db:"capacity" json:"capacity"`
	HasLab        bool   `db:"has_lab" json:"has_lab"`
	HasProjector  bool   `db:"has_projector" json:"has_projector"`
	HasComputer   bool   `db:"has_computer" json:"has_computer"`
	IsActive      bool   `db:"is_active" json:"is_active"`
}

// Provides reports whether the room satisfies a named capability.
func (r *Room) Provides(capability string) bool {
	switch capability {
	case "lab":
		return r.HasLab
	case "projector":
		return r.HasProjector
	case "computer":
		return r.HasComputer
	default:
		return false
	}
}

// Subject is a taught discipline.
type Subject struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Code     string `db:"code" json:"code"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Teacher is the directory view of a teaching staff member; used for display
// and audit only, never to gate scheduling beyond what the qualification
// ledger and availability calendar encode.
type Teacher struct {
	ID               string `db:"id" json:"id"`
	FullName         string `db:"full_name" json:"full_name"`
	EmploymentStatus string `db:"employment_status" json:"employment_status"`
	IsActive         bool   `db:"is_active" json:"is_active"`
}

// AcademicYear supplies effective-date bounds and working-day defaults.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}
