package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitymodels "volunteerhub/internal/activity/models"
	activitystore "volunteerhub/internal/activity/store"
	"volunteerhub/internal/notification/models"
	"volunteerhub/internal/notification/rules"
	notificationstore "volunteerhub/internal/notification/store"
	registrationmodels "volunteerhub/internal/registration/models"
	registrationstore "volunteerhub/internal/registration/store"
	socialstore "volunteerhub/internal/social/store"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/testutil"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *notificationstore.InMemoryStore, *activitystore.InMemoryStore, *registrationstore.InMemoryStore) {
	t.Helper()
	obligations := notificationstore.NewInMemoryStore()
	activities := activitystore.NewInMemoryStore()
	registrations := registrationstore.NewInMemoryStore()
	relations := socialstore.NewInMemoryRelations()

	engine, err := rules.New(obligations, registrations, relations, relations, relations, activities, time.UTC)
	require.NoError(t, err)
	svc, err := New(obligations, engine)
	require.NoError(t, err)
	return svc, obligations, activities, registrations
}

func TestListSynthesizesRemindersLazily(t *testing.T) {
	svc, _, activities, registrations := newService(t)
	userID := id.NewUserID()

	// Starts tomorrow: the day-before reminder is due today, but nothing
	// ever materialized it on the write path.
	activity := &activitymodels.Activity{
		ID:                     id.NewActivityID(),
		OrganizerID:            id.NewUserID(),
		Title:                  "Food drive",
		StartAt:                now.Add(24 * time.Hour),
		AcceptingRegistrations: true,
		Approval:               activitymodels.ApprovalApproved,
	}
	require.NoError(t, activities.Create(context.Background(), activity))
	require.NoError(t, registrations.Create(context.Background(), &registrationmodels.Registration{
		ID:         id.NewRegistrationID(),
		UserID:     userID,
		ActivityID: activity.ID,
		Status:     registrationmodels.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	feed, err := svc.List(testutil.CtxAt(now), userID, 0)
	require.NoError(t, err)
	require.Len(t, feed.Obligations, 1)
	assert.Equal(t, models.KindRegisterReminder, feed.Obligations[0].Kind)
	assert.Equal(t, 1, feed.UnreadCount)
}

func TestMarkReadLowersUnreadCount(t *testing.T) {
	svc, obligations, _, _ := newService(t)
	userID := id.NewUserID()

	o := &models.Obligation{
		ID:          id.NewObligationID(),
		RecipientID: userID,
		Kind:        models.KindSystem,
		Title:       "t",
		Message:     "m",
		CreatedAt:   now,
	}
	_, err := obligations.Upsert(context.Background(), o)
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(testutil.CtxAt(now), o.ID, userID))

	count, err := svc.UnreadCount(testutil.CtxAt(now), userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
