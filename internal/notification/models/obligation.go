// Package models defines notification obligations: derived, deduplicated
// records meaning "this recipient should receive this notification",
// decoupled from actual delivery.
package models

import (
	"time"

	id "volunteerhub/pkg/domain"
)

// Kind classifies an obligation. The rule table in the rules package is the
// single source of truth for when each kind fires and to whom.
type Kind string

const (
	KindOwnerFull           Kind = "OWNER_FULL"
	KindRegisterReminder    Kind = "REGISTER_REMINDER"
	KindSavedReminder       Kind = "SAVED_REMINDER"
	KindOwnerStatusReminder Kind = "OWNER_STATUS_REMINDER"
	KindPostUpdated         Kind = "POST_UPDATED"
	KindPostHidden          Kind = "POST_HIDDEN"
	KindPostDeleted         Kind = "POST_DELETED"
	KindFollowerNewPost     Kind = "FOLLOWER_NEW_POST"
	KindChatMessage         Kind = "CHAT_MESSAGE"
	KindSystem              Kind = "SYSTEM"
)

// Deduplicated reports whether the kind participates in the
// (recipient, kind, activity, trigger-date) dedup key. CHAT_MESSAGE is the
// single exemption: every occurrence is delivered.
func (k Kind) Deduplicated() bool { return k != KindChatMessage }

// Date is a civil calendar date in ISO form (YYYY-MM-DD). ISO form makes
// lexical comparison equal to chronological comparison, which the
// rescheduling rule relies on.
type Date string

// DateOf converts an instant to the civil date in the given zone.
func DateOf(t time.Time, loc *time.Location) Date {
	return Date(t.In(loc).Format("2006-01-02"))
}

// AddDays shifts a civil date by a number of days.
func (d Date) AddDays(days int) Date {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return d
	}
	return Date(t.AddDate(0, 0, days).Format("2006-01-02"))
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d > other }

// Obligation is one stored notification obligation. For deduplicated kinds
// the tuple (RecipientID, Kind, ActivityID, TriggerDate) is unique; an
// upsert on an existing tuple is a no-op that preserves Read.
type Obligation struct {
	ID          id.ObligationID
	RecipientID id.UserID
	Kind        Kind
	// ActivityID is nil-UUID for obligations not tied to an activity.
	ActivityID  id.ActivityID
	TriggerDate Date

	Title   string
	Message string
	LinkURL string

	Read      bool
	CreatedAt time.Time
}
