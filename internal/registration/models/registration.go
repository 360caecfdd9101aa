// Package models defines the registration record and its lifecycle state
// machine.
//
// A registration moves ACTIVE -> CANCEL_PENDING -> CANCELED. Cancellation
// is two-phase: BeginCancel opens an undo window during which the
// registrant can return to ACTIVE; once the window passes, the pending
// state is finalized to CANCELED on first observation. A canceled user may
// re-register for the same activity after the cooldown; re-registration
// reactivates the existing row, it never creates a second one.
package models

import (
	"encoding/json"
	"time"

	id "volunteerhub/pkg/domain"
)

// Status is the registration lifecycle state.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusCancelPending Status = "CANCEL_PENDING"
	StatusCanceled      Status = "CANCELED"
)

// CancelReason is the registrant's stated reason for canceling.
type CancelReason string

const (
	ReasonNotAvailable CancelReason = "NOT_AVAILABLE"
	ReasonHealth       CancelReason = "HEALTH"
	ReasonOther        CancelReason = "OTHER"
)

// Valid reports whether the reason is one of the accepted values.
func (r CancelReason) Valid() bool {
	switch r {
	case ReasonNotAvailable, ReasonHealth, ReasonOther:
		return true
	}
	return false
}

// Registration is one user's registration for one activity. At most one
// row exists per (user, activity) pair regardless of lifecycle history.
type Registration struct {
	ID         id.RegistrationID
	UserID     id.UserID
	ActivityID id.ActivityID
	Status     Status

	// Snapshot is the applicant's registration payload (contact details,
	// medical flags, consents), stored opaquely as submitted and replaced
	// wholesale on re-registration.
	Snapshot json.RawMessage

	CancelReason     CancelReason
	CancelReasonText string

	// CancelUndoUntil is the inclusive end of the undo window; set while
	// CANCEL_PENDING.
	CancelUndoUntil *time.Time
	// CanceledAt is when the cancellation became final.
	CanceledAt *time.Time
	// CooldownUntil blocks re-registration until this instant; set when a
	// cancellation finalizes.
	CooldownUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the registration holds a capacity slot.
// CANCEL_PENDING does not: the slot frees the moment cancellation starts.
func (r *Registration) Active() bool { return r.Status == StatusActive }

// UndoOpen reports whether the undo window is still open at the given
// instant. The boundary is inclusive: undo exactly at the deadline
// succeeds.
func (r *Registration) UndoOpen(now time.Time) bool {
	return r.Status == StatusCancelPending &&
		r.CancelUndoUntil != nil && !now.After(*r.CancelUndoUntil)
}

// PendingExpired reports whether a CANCEL_PENDING registration's undo
// window has lapsed, making it finalizable.
func (r *Registration) PendingExpired(now time.Time) bool {
	return r.Status == StatusCancelPending &&
		r.CancelUndoUntil != nil && now.After(*r.CancelUndoUntil)
}

// InCooldown reports whether re-registration is still blocked at the given
// instant.
func (r *Registration) InCooldown(now time.Time) bool {
	return r.CooldownUntil != nil && now.Before(*r.CooldownUntil)
}

// BeginCancel moves ACTIVE to CANCEL_PENDING, recording the reason and
// opening the undo window.
func (r *Registration) BeginCancel(reason CancelReason, reasonText string, now time.Time, undoWindow time.Duration) {
	until := now.Add(undoWindow)
	r.Status = StatusCancelPending
	r.CancelReason = reason
	r.CancelReasonText = reasonText
	r.CancelUndoUntil = &until
	r.UpdatedAt = now
}

// UndoCancel returns a CANCEL_PENDING registration to ACTIVE, clearing the
// cancellation fields.
func (r *Registration) UndoCancel(now time.Time) {
	r.Status = StatusActive
	r.CancelReason = ""
	r.CancelReasonText = ""
	r.CancelUndoUntil = nil
	r.UpdatedAt = now
}

// Finalize moves CANCEL_PENDING to CANCELED and starts the cooldown from
// the finalization instant.
func (r *Registration) Finalize(now time.Time, cooldown time.Duration) {
	cooldownUntil := now.Add(cooldown)
	r.Status = StatusCanceled
	r.CanceledAt = &now
	r.CooldownUntil = &cooldownUntil
	r.CancelUndoUntil = nil
	r.UpdatedAt = now
}

// Reactivate returns a CANCELED registration to ACTIVE on re-registration,
// keeping the same row and refreshing the snapshot.
func (r *Registration) Reactivate(snapshot json.RawMessage, now time.Time) {
	r.Status = StatusActive
	r.Snapshot = snapshot
	r.CancelReason = ""
	r.CancelReasonText = ""
	r.CanceledAt = nil
	r.CooldownUntil = nil
	r.CancelUndoUntil = nil
	r.UpdatedAt = now
}
