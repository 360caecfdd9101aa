package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerhub/internal/notification/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
)

func obligation(recipient id.UserID, kind models.Kind, activity id.ActivityID, trigger models.Date, at time.Time) *models.Obligation {
	return &models.Obligation{
		ID:          id.NewObligationID(),
		RecipientID: recipient,
		Kind:        kind,
		ActivityID:  activity,
		TriggerDate: trigger,
		Title:       "t",
		Message:     "m",
		CreatedAt:   at,
	}
}

func TestUpsertDeduplicates(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	recipient := id.NewUserID()
	activity := id.NewActivityID()
	at := time.Now()

	created, err := s.Upsert(ctx, obligation(recipient, models.KindOwnerFull, activity, "2026-03-10", at))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Upsert(ctx, obligation(recipient, models.KindOwnerFull, activity, "2026-03-10", at))
	require.NoError(t, err)
	assert.False(t, created)

	// Different trigger date is a distinct obligation.
	created, err = s.Upsert(ctx, obligation(recipient, models.KindOwnerFull, activity, "2026-03-11", at))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestUpsertDoesNotResetReadState(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	recipient := id.NewUserID()
	activity := id.NewActivityID()
	first := obligation(recipient, models.KindPostUpdated, activity, "2026-03-10", time.Now())

	_, err := s.Upsert(ctx, first)
	require.NoError(t, err)
	require.NoError(t, s.MarkRead(ctx, first.ID, recipient))

	_, err = s.Upsert(ctx, obligation(recipient, models.KindPostUpdated, activity, "2026-03-10", time.Now()))
	require.NoError(t, err)

	count, err := s.CountUnreadDue(ctx, recipient, "2026-03-10")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChatMessagesBypassDedup(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	recipient := id.NewUserID()
	activity := id.NewActivityID()

	for i := 0; i < 3; i++ {
		created, err := s.Upsert(ctx, obligation(recipient, models.KindChatMessage, activity, "", time.Now()))
		require.NoError(t, err)
		assert.True(t, created)
	}

	due, err := s.ListDue(ctx, recipient, "2026-03-10", 0)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestListDueHidesFutureObligations(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	recipient := id.NewUserID()
	activity := id.NewActivityID()
	at := time.Now()

	_, err := s.Upsert(ctx, obligation(recipient, models.KindRegisterReminder, activity, "2026-03-12", at))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, obligation(recipient, models.KindSystem, activity, "2026-03-10", at.Add(time.Second)))
	require.NoError(t, err)

	due, err := s.ListDue(ctx, recipient, "2026-03-10", 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.KindSystem, due[0].Kind)

	// Two days later the reminder surfaces.
	due, err = s.ListDue(ctx, recipient, "2026-03-12", 0)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestMarkReadChecksOwnership(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	owner := id.NewUserID()
	o := obligation(owner, models.KindSystem, id.NewActivityID(), "", time.Now())

	_, err := s.Upsert(ctx, o)
	require.NoError(t, err)

	assert.ErrorIs(t, s.MarkRead(ctx, o.ID, id.NewUserID()), sentinel.ErrNotFound)
	assert.NoError(t, s.MarkRead(ctx, o.ID, owner))
}

func TestDeleteFutureLeavesDueObligations(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	recipient := id.NewUserID()
	activity := id.NewActivityID()
	at := time.Now()

	_, err := s.Upsert(ctx, obligation(recipient, models.KindRegisterReminder, activity, "2026-03-09", at))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, obligation(recipient, models.KindRegisterReminder, activity, "2026-03-15", at))
	require.NoError(t, err)

	kinds := []models.Kind{models.KindRegisterReminder}
	require.NoError(t, s.DeleteFutureByActivity(ctx, activity, kinds, "2026-03-10"))

	due, err := s.ListDue(ctx, recipient, "2026-03-20", 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.Date("2026-03-09"), due[0].TriggerDate)

	// The deleted slot can be re-materialized (dedup entry released).
	created, err := s.Upsert(ctx, obligation(recipient, models.KindRegisterReminder, activity, "2026-03-15", at))
	require.NoError(t, err)
	assert.True(t, created)
}
