// Package store persists the relationship edges the notification rule
// engine fans out over: who follows an organizer, who bookmarked an
// activity, and who belongs to an activity's chat room.
//
// The rule engine never walks relations implicitly; it composes these
// explicit id-set queries.
package store

import (
	"context"

	id "volunteerhub/pkg/domain"
)

// FollowerStore answers "who follows this organizer".
type FollowerStore interface {
	Follow(ctx context.Context, followerID, organizerID id.UserID) error
	Unfollow(ctx context.Context, followerID, organizerID id.UserID) error
	ListFollowers(ctx context.Context, organizerID id.UserID) ([]id.UserID, error)
}

// BookmarkStore answers "who bookmarked this activity" and its inverse.
type BookmarkStore interface {
	Bookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error
	Unbookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error
	ListBookmarkers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error)
	ListBookmarkedActivities(ctx context.Context, userID id.UserID) ([]id.ActivityID, error)
}

// MembershipStore tracks chat room membership per activity. The chat
// transport itself is external; registration only joins members so the
// CHAT_MESSAGE rule can resolve recipients.
type MembershipStore interface {
	Join(ctx context.Context, activityID id.ActivityID, userID id.UserID) error
	ListMembers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error)
}
