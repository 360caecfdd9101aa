// Package models defines the Activity aggregate.
package models

import (
	"time"

	id "volunteerhub/pkg/domain"
)

// ApprovalStatus is the moderation state of a published activity. Only
// approved activities participate in registration and reminder rules.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Activity is a capacity-limited, time-bound event users register for.
//
// Capacity is never stored as a counter: the active registration count is
// always derived from registration rows so it cannot drift.
type Activity struct {
	ID          id.ActivityID
	OrganizerID id.UserID

	Title       string
	Location    string
	Description string
	Category    string

	// Slots is the capacity; 0 means unlimited.
	Slots int
	// Fee in whole currency units; 0 means free.
	Fee int

	// StartAt is the start instant. The zero time means not yet scheduled;
	// unscheduled activities cannot be cancelled against a cutoff and never
	// produce reminders.
	StartAt time.Time

	// AcceptingRegistrations gates register(); cleared automatically when
	// the activity reaches capacity.
	AcceptingRegistrations bool

	Approval ApprovalStatus
	Hidden   bool
	Deleted  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scheduled reports whether the activity has a start instant.
func (a *Activity) Scheduled() bool { return !a.StartAt.IsZero() }

// Visible reports whether the activity participates in notification rules:
// approved, not hidden, not deleted.
func (a *Activity) Visible() bool {
	return a.Approval == ApprovalApproved && !a.Hidden && !a.Deleted
}

// Unlimited reports whether the activity has no capacity bound.
func (a *Activity) Unlimited() bool { return a.Slots == 0 }
