package store

import (
	"context"
	"sync"

	id "volunteerhub/pkg/domain"
)

// InMemoryRelations implements all three relation stores over maps of sets.
// Join/Follow/Bookmark are idempotent, mirroring the database ON CONFLICT
// DO NOTHING behavior.
type InMemoryRelations struct {
	mu        sync.RWMutex
	followers map[id.UserID]map[id.UserID]struct{}       // organizer -> followers
	bookmarks map[id.ActivityID]map[id.UserID]struct{}   // activity -> bookmarkers
	byUser    map[id.UserID]map[id.ActivityID]struct{}   // user -> bookmarked activities
	members   map[id.ActivityID]map[id.UserID]struct{}   // activity -> room members
}

func NewInMemoryRelations() *InMemoryRelations {
	return &InMemoryRelations{
		followers: make(map[id.UserID]map[id.UserID]struct{}),
		bookmarks: make(map[id.ActivityID]map[id.UserID]struct{}),
		byUser:    make(map[id.UserID]map[id.ActivityID]struct{}),
		members:   make(map[id.ActivityID]map[id.UserID]struct{}),
	}
}

func (s *InMemoryRelations) Follow(_ context.Context, followerID, organizerID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.followers[organizerID] == nil {
		s.followers[organizerID] = make(map[id.UserID]struct{})
	}
	s.followers[organizerID][followerID] = struct{}{}
	return nil
}

func (s *InMemoryRelations) Unfollow(_ context.Context, followerID, organizerID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.followers[organizerID], followerID)
	return nil
}

func (s *InMemoryRelations) ListFollowers(_ context.Context, organizerID id.UserID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userSet(s.followers[organizerID]), nil
}

func (s *InMemoryRelations) Bookmark(_ context.Context, userID id.UserID, activityID id.ActivityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookmarks[activityID] == nil {
		s.bookmarks[activityID] = make(map[id.UserID]struct{})
	}
	s.bookmarks[activityID][userID] = struct{}{}
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[id.ActivityID]struct{})
	}
	s.byUser[userID][activityID] = struct{}{}
	return nil
}

func (s *InMemoryRelations) Unbookmark(_ context.Context, userID id.UserID, activityID id.ActivityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bookmarks[activityID], userID)
	delete(s.byUser[userID], activityID)
	return nil
}

func (s *InMemoryRelations) ListBookmarkers(_ context.Context, activityID id.ActivityID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userSet(s.bookmarks[activityID]), nil
}

func (s *InMemoryRelations) ListBookmarkedActivities(_ context.Context, userID id.UserID) ([]id.ActivityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byUser[userID]
	out := make([]id.ActivityID, 0, len(set))
	for activityID := range set {
		out = append(out, activityID)
	}
	return out, nil
}

func (s *InMemoryRelations) Join(_ context.Context, activityID id.ActivityID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[activityID] == nil {
		s.members[activityID] = make(map[id.UserID]struct{})
	}
	s.members[activityID][userID] = struct{}{}
	return nil
}

func (s *InMemoryRelations) ListMembers(_ context.Context, activityID id.ActivityID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userSet(s.members[activityID]), nil
}

func userSet(set map[id.UserID]struct{}) []id.UserID {
	out := make([]id.UserID, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}
