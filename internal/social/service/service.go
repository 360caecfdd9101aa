// Package service orchestrates the social relations feeding notification
// fan-out: follows, bookmarks and chat room membership.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	activitymodels "volunteerhub/internal/activity/models"
	socialstore "volunteerhub/internal/social/store"
	id "volunteerhub/pkg/domain"
	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/platform/sentinel"
	"volunteerhub/pkg/requestcontext"
)

// ActivitySource loads activities for bookmark validation.
type ActivitySource interface {
	FindByID(ctx context.Context, activityID id.ActivityID) (*activitymodels.Activity, error)
}

// Notifier receives the social events the notification rules react to.
type Notifier interface {
	OnBookmarked(ctx context.Context, activity *activitymodels.Activity, userID id.UserID, now time.Time) error
	OnChatMessage(ctx context.Context, activityID id.ActivityID, senderID id.UserID, preview string, now time.Time) error
}

// Service manages follow/bookmark relations and the chat notification
// hook. Chat message persistence and delivery live outside this system;
// only the notification obligation is derived here.
type Service struct {
	followers  socialstore.FollowerStore
	bookmarks  socialstore.BookmarkStore
	members    socialstore.MembershipStore
	activities ActivitySource
	notifier   Notifier
	logger     *slog.Logger
}

func New(followers socialstore.FollowerStore, bookmarks socialstore.BookmarkStore, members socialstore.MembershipStore, activities ActivitySource, notifier Notifier, logger *slog.Logger) (*Service, error) {
	if followers == nil || bookmarks == nil || members == nil {
		return nil, fmt.Errorf("relation stores are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		followers:  followers,
		bookmarks:  bookmarks,
		members:    members,
		activities: activities,
		notifier:   notifier,
		logger:     logger,
	}, nil
}

// Follow records that follower follows organizer. Idempotent.
func (s *Service) Follow(ctx context.Context, followerID, organizerID id.UserID) error {
	if followerID == organizerID {
		return dErrors.New(dErrors.CodeValidation, "cannot follow yourself")
	}
	return s.followers.Follow(ctx, followerID, organizerID)
}

// Unfollow removes the relation. Idempotent.
func (s *Service) Unfollow(ctx context.Context, followerID, organizerID id.UserID) error {
	return s.followers.Unfollow(ctx, followerID, organizerID)
}

// Bookmark saves the activity for the user and materializes their saved
// reminders.
func (s *Service) Bookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error {
	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if err := s.bookmarks.Bookmark(ctx, userID, activityID); err != nil {
		return fmt.Errorf("bookmark: %w", err)
	}
	if s.notifier != nil {
		if err := s.notifier.OnBookmarked(ctx, activity, userID, requestcontext.Now(ctx)); err != nil {
			s.logger.WarnContext(ctx, "saved reminder derivation failed",
				"activity_id", activityID, "user_id", userID, "error", err)
		}
	}
	return nil
}

// Unbookmark removes the bookmark. Already-materialized reminders stay;
// they were true when derived.
func (s *Service) Unbookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error {
	return s.bookmarks.Unbookmark(ctx, userID, activityID)
}

// NotifyChatMessage derives CHAT_MESSAGE obligations for the sender's
// room. The sender must be a member.
func (s *Service) NotifyChatMessage(ctx context.Context, activityID id.ActivityID, senderID id.UserID, preview string) error {
	members, err := s.members.ListMembers(ctx, activityID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	isMember := false
	for _, member := range members {
		if member == senderID {
			isMember = true
			break
		}
	}
	if !isMember {
		return dErrors.New(dErrors.CodeForbidden, "not a member of this room")
	}
	if s.notifier == nil {
		return nil
	}
	return s.notifier.OnChatMessage(ctx, activityID, senderID, preview, requestcontext.Now(ctx))
}

func (s *Service) loadActivity(ctx context.Context, activityID id.ActivityID) (*activitymodels.Activity, error) {
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "activity not found")
		}
		return nil, fmt.Errorf("load activity: %w", err)
	}
	if activity.Deleted {
		return nil, dErrors.New(dErrors.CodeNotFound, "activity not found")
	}
	return activity, nil
}
