package store

import (
	"context"
	"sync"

	"volunteerhub/internal/activity/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
)

// InMemoryStore keeps activities in a map. Default when no DATABASE_URL is
// configured, and the test double everywhere.
type InMemoryStore struct {
	mu         sync.RWMutex
	activities map[id.ActivityID]*models.Activity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{activities: make(map[id.ActivityID]*models.Activity)}
}

func (s *InMemoryStore) Create(_ context.Context, activity *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activities[activity.ID]; exists {
		return sentinel.ErrConflict
	}
	s.activities[activity.ID] = clone(activity)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, activity *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activities[activity.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.activities[activity.ID] = clone(activity)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, activityID id.ActivityID) (*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	activity, exists := s.activities[activityID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return clone(activity), nil
}

func (s *InMemoryStore) FindByIDs(_ context.Context, activityIDs []id.ActivityID) ([]*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Activity, 0, len(activityIDs))
	for _, activityID := range activityIDs {
		if activity, exists := s.activities[activityID]; exists {
			out = append(out, clone(activity))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByOrganizer(_ context.Context, organizerID id.UserID) ([]*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Activity
	for _, activity := range s.activities {
		if activity.OrganizerID == organizerID {
			out = append(out, clone(activity))
		}
	}
	return out, nil
}

// clone guards callers against aliasing the map's values.
func clone(a *models.Activity) *models.Activity {
	c := *a
	return &c
}
