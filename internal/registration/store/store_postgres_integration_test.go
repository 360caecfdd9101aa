//go:build integration

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerhub/internal/registration/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
	"volunteerhub/pkg/testutil/containers"
)

func newRegistration(userID id.UserID, activityID id.ActivityID, at time.Time) *models.Registration {
	return &models.Registration{
		ID:         id.NewRegistrationID(),
		UserID:     userID,
		ActivityID: activityID,
		Status:     models.StatusActive,
		Snapshot:   json.RawMessage(`{"title":"Canal cleanup"}`),
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestPostgresRegistrationStore(t *testing.T) {
	pc := containers.NewPostgresContainer(t, "../../../migrations/0001_init.sql")
	s := NewPostgres(pc.DB)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	reset := func(t *testing.T) {
		t.Helper()
		require.NoError(t, pc.TruncateAll(ctx, "registrations"))
	}

	t.Run("pair uniqueness maps to conflict", func(t *testing.T) {
		reset(t)
		userID := id.NewUserID()
		activityID := id.NewActivityID()

		require.NoError(t, s.Create(ctx, newRegistration(userID, activityID, now)))

		err := s.Create(ctx, newRegistration(userID, activityID, now))
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		// A different activity for the same user is fine.
		assert.NoError(t, s.Create(ctx, newRegistration(userID, id.NewActivityID(), now)))
	})

	t.Run("lifecycle round trip preserves nullable fields", func(t *testing.T) {
		reset(t)
		r := newRegistration(id.NewUserID(), id.NewActivityID(), now)
		require.NoError(t, s.Create(ctx, r))

		r.BeginCancel(models.ReasonOther, "conflicting shift", now, 5*time.Minute)
		require.NoError(t, s.Update(ctx, r))

		got, err := s.FindByUserAndActivity(ctx, r.UserID, r.ActivityID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelPending, got.Status)
		assert.Equal(t, models.ReasonOther, got.CancelReason)
		assert.Equal(t, "conflicting shift", got.CancelReasonText)
		require.NotNil(t, got.CancelUndoUntil)
		assert.WithinDuration(t, now.Add(5*time.Minute), *got.CancelUndoUntil, time.Millisecond)
		assert.Nil(t, got.CooldownUntil)
		assert.JSONEq(t, `{"title":"Canal cleanup"}`, string(got.Snapshot))

		got.Finalize(now.Add(5*time.Minute), time.Hour)
		require.NoError(t, s.Update(ctx, got))

		final, err := s.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCanceled, final.Status)
		assert.Nil(t, final.CancelUndoUntil)
		require.NotNil(t, final.CooldownUntil)
		assert.WithinDuration(t, now.Add(5*time.Minute).Add(time.Hour), *final.CooldownUntil, time.Millisecond)
	})

	t.Run("update of a missing row reports not found", func(t *testing.T) {
		reset(t)
		r := newRegistration(id.NewUserID(), id.NewActivityID(), now)
		assert.ErrorIs(t, s.Update(ctx, r), sentinel.ErrNotFound)

		_, err := s.FindByID(ctx, id.NewRegistrationID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("count and listings see only active rows", func(t *testing.T) {
		reset(t)
		activityID := id.NewActivityID()
		userID := id.NewUserID()

		active := newRegistration(userID, activityID, now)
		require.NoError(t, s.Create(ctx, active))

		pending := newRegistration(id.NewUserID(), activityID, now)
		pending.BeginCancel(models.ReasonHealth, "", now, 5*time.Minute)
		require.NoError(t, s.Create(ctx, pending))

		count, err := s.CountActive(ctx, activityID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		users, err := s.ListActiveUsers(ctx, activityID)
		require.NoError(t, err)
		assert.Equal(t, []id.UserID{userID}, users)

		activities, err := s.ListActiveActivities(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []id.ActivityID{activityID}, activities)
	})

	t.Run("expired pending sweep ignores open windows", func(t *testing.T) {
		reset(t)

		expired := newRegistration(id.NewUserID(), id.NewActivityID(), now)
		expired.BeginCancel(models.ReasonNotAvailable, "", now.Add(-time.Hour), 5*time.Minute)
		require.NoError(t, s.Create(ctx, expired))

		open := newRegistration(id.NewUserID(), id.NewActivityID(), now)
		open.BeginCancel(models.ReasonNotAvailable, "", now, 5*time.Minute)
		require.NoError(t, s.Create(ctx, open))

		rows, err := s.ListExpiredPending(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, expired.ID, rows[0].ID)
	})
}
