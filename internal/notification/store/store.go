// Package store persists notification obligations and enforces the dedup
// key at the point of commit.
package store

import (
	"context"

	"volunteerhub/internal/notification/models"
	id "volunteerhub/pkg/domain"
)

// Store is the persistence port for obligations.
//
// Date-based obligations are materialized with their computed trigger date
// (possibly in the future); delivery surfaces only *due* obligations, i.e.
// those whose trigger date is empty (immediate kinds) or not after today.
type Store interface {
	// Upsert commits an obligation. For deduplicated kinds the write is
	// keyed by (recipient, kind, activity, trigger-date): if the tuple
	// already exists nothing changes (read state included) and created is
	// false. CHAT_MESSAGE always inserts a fresh row.
	Upsert(ctx context.Context, obligation *models.Obligation) (created bool, err error)

	// ListDue returns the recipient's due obligations, newest first.
	ListDue(ctx context.Context, recipientID id.UserID, today models.Date, limit int) ([]*models.Obligation, error)

	// CountUnreadDue returns the recipient's unread due obligation count.
	CountUnreadDue(ctx context.Context, recipientID id.UserID, today models.Date) (int, error)

	// MarkRead marks one obligation delivered/read. Returns
	// sentinel.ErrNotFound when the obligation does not exist or belongs
	// to another recipient.
	MarkRead(ctx context.Context, obligationID id.ObligationID, recipientID id.UserID) error

	// DeleteFutureByActivity removes obligations of the given kinds for an
	// activity whose trigger date is strictly after today. Used by the
	// rescheduling rule; past and due obligations stay untouched.
	DeleteFutureByActivity(ctx context.Context, activityID id.ActivityID, kinds []models.Kind, today models.Date) error

	// DeleteFutureForRecipient is DeleteFutureByActivity scoped to one
	// recipient. Used when a registrant's cancellation finalizes and their
	// not-yet-due reminders no longer apply.
	DeleteFutureForRecipient(ctx context.Context, recipientID id.UserID, activityID id.ActivityID, kinds []models.Kind, today models.Date) error
}
