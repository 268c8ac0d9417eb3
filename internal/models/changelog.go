package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Change-log action constants for schedule workflow transitions and session
// mutations.
const (
	ChangeActionCreated         = "SCHEDULE_CREATED"
	ChangeActionSessionAdded    = "SESSION_ADDED"
	ChangeActionSessionUpdated  = "SESSION_UPDATED"
	ChangeActionSessionCanceled = "SESSION_CANCELLED"
	ChangeActionSubmitted       = "SUBMITTED_FOR_REVIEW"
	ChangeActionReviewStarted   = "REVIEW_STARTED"
	ChangeActionApproved        = "APPROVED"
	ChangeActionRejected        = "REJECTED"
	ChangeActionActivated       = "ACTIVATED"
	ChangeActionSuperseded      = "SUPERSEDED"
	ChangeActionSuspended       = "SUSPENDED"
	ChangeActionArchived        = "ARCHIVED"
	ChangeActionCopied          = "COPIED"
)

// ScheduleChangeLog is one append-only audit record. Writing it never blocks
// the transition it describes.
type ScheduleChangeLog struct {
	ID         string         `db:"id" json:"id"`
	ScheduleID string         `db:"schedule_id" json:"schedule_id"`
	Action     string         `db:"action" json:"action"`
	ActorID    string         `db:"actor_id" json:"actor_id"`
	Payload    types.JSONText `db:"payload" json:"payload,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
