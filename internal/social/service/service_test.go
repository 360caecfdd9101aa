package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitymodels "volunteerhub/internal/activity/models"
	activitystore "volunteerhub/internal/activity/store"
	socialstore "volunteerhub/internal/social/store"
	id "volunteerhub/pkg/domain"
	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/testutil"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	bookmarked int
	chats      int
}

func (n *recordingNotifier) OnBookmarked(context.Context, *activitymodels.Activity, id.UserID, time.Time) error {
	n.bookmarked++
	return nil
}

func (n *recordingNotifier) OnChatMessage(context.Context, id.ActivityID, id.UserID, string, time.Time) error {
	n.chats++
	return nil
}

func newService(t *testing.T) (*Service, *socialstore.InMemoryRelations, *activitystore.InMemoryStore, *recordingNotifier) {
	t.Helper()
	relations := socialstore.NewInMemoryRelations()
	activities := activitystore.NewInMemoryStore()
	notifier := &recordingNotifier{}
	svc, err := New(relations, relations, relations, activities, notifier, nil)
	require.NoError(t, err)
	return svc, relations, activities, notifier
}

func addActivity(t *testing.T, activities *activitystore.InMemoryStore) *activitymodels.Activity {
	t.Helper()
	activity := &activitymodels.Activity{
		ID:          id.NewActivityID(),
		OrganizerID: id.NewUserID(),
		Title:       "River cleanup",
		StartAt:     now.Add(96 * time.Hour),
		Approval:    activitymodels.ApprovalApproved,
	}
	require.NoError(t, activities.Create(context.Background(), activity))
	return activity
}

func TestFollowRejectsSelf(t *testing.T) {
	svc, relations, _, _ := newService(t)
	userID := id.NewUserID()

	err := svc.Follow(testutil.CtxAt(now), userID, userID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	organizer := id.NewUserID()
	require.NoError(t, svc.Follow(testutil.CtxAt(now), userID, organizer))
	followers, err := relations.ListFollowers(context.Background(), organizer)
	require.NoError(t, err)
	assert.Equal(t, []id.UserID{userID}, followers)

	require.NoError(t, svc.Unfollow(testutil.CtxAt(now), userID, organizer))
	followers, err = relations.ListFollowers(context.Background(), organizer)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestBookmarkDerivesReminders(t *testing.T) {
	svc, relations, activities, notifier := newService(t)
	activity := addActivity(t, activities)
	userID := id.NewUserID()

	require.NoError(t, svc.Bookmark(testutil.CtxAt(now), userID, activity.ID))
	assert.Equal(t, 1, notifier.bookmarked)

	saved, err := relations.ListBookmarkedActivities(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []id.ActivityID{activity.ID}, saved)

	// Removing the bookmark leaves derived reminders alone; only the
	// relation goes.
	require.NoError(t, svc.Unbookmark(testutil.CtxAt(now), userID, activity.ID))
	saved, err = relations.ListBookmarkedActivities(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestBookmarkUnknownActivity(t *testing.T) {
	svc, _, _, notifier := newService(t)

	err := svc.Bookmark(testutil.CtxAt(now), id.NewUserID(), id.NewActivityID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Zero(t, notifier.bookmarked)
}

func TestChatNotifyRequiresMembership(t *testing.T) {
	svc, relations, activities, notifier := newService(t)
	activity := addActivity(t, activities)
	member := id.NewUserID()
	require.NoError(t, relations.Join(context.Background(), activity.ID, member))

	err := svc.NotifyChatMessage(testutil.CtxAt(now), activity.ID, id.NewUserID(), "hi")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Zero(t, notifier.chats)

	require.NoError(t, svc.NotifyChatMessage(testutil.CtxAt(now), activity.ID, member, "hi"))
	assert.Equal(t, 1, notifier.chats)
}
