package models

import (
	"fmt"
	"time"

	id "volunteerhub/pkg/domain"
)

// DenyReason identifies why a lifecycle operation was refused. These are
// expected business outcomes, not faults.
type DenyReason string

const (
	DenyActivityClosed    DenyReason = "activity_closed"
	DenyActivityFull      DenyReason = "activity_full"
	DenyAlreadyActive     DenyReason = "already_active"
	DenyAlreadyPending    DenyReason = "already_pending"
	DenyCooldownActive    DenyReason = "cooldown_active"
	DenyHardConflict      DenyReason = "hard_conflict"
	DenyNotActive         DenyReason = "not_active"
	DenyNotPending        DenyReason = "not_pending"
	DenyPastCutoff        DenyReason = "past_cutoff"
	DenyInvalidReason     DenyReason = "invalid_reason"
	DenyMissingOtherText  DenyReason = "missing_other_text"
	DenyUndoWindowExpired DenyReason = "undo_window_expired"
)

// Denial is the error returned when a lifecycle operation is refused.
// Handlers translate it to a structured 4xx; everything else on the error
// path is infrastructure failure.
type Denial struct {
	Reason DenyReason

	// Remaining is how long the caller must wait (cooldown denials).
	Remaining time.Duration
	// ConflictWith is the activity blocking registration (hard conflicts).
	ConflictWith id.ActivityID
}

func (d *Denial) Error() string {
	return fmt.Sprintf("registration denied: %s", d.Reason)
}

// Deny builds a plain denial.
func Deny(reason DenyReason) *Denial { return &Denial{Reason: reason} }

// DenyCooldown builds a cooldown denial carrying the remaining wait.
func DenyCooldown(remaining time.Duration) *Denial {
	return &Denial{Reason: DenyCooldownActive, Remaining: remaining}
}

// DenyConflict builds a hard-conflict denial naming the blocking activity.
func DenyConflict(conflictWith id.ActivityID) *Denial {
	return &Denial{Reason: DenyHardConflict, ConflictWith: conflictWith}
}
