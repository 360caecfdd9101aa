package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"volunteerhub/internal/registration/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
)

type pairKey struct {
	user     id.UserID
	activity id.ActivityID
}

// InMemoryStore keeps registrations in memory. The pair index enforces
// (user, activity) uniqueness the way the database unique constraint does.
type InMemoryStore struct {
	mu     sync.RWMutex
	rows   map[id.RegistrationID]*models.Registration
	byPair map[pairKey]id.RegistrationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rows:   make(map[id.RegistrationID]*models.Registration),
		byPair: make(map[pairKey]id.RegistrationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, registration *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{user: registration.UserID, activity: registration.ActivityID}
	if _, exists := s.byPair[key]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.rows[registration.ID]; exists {
		return sentinel.ErrConflict
	}
	s.rows[registration.ID] = clone(registration)
	s.byPair[key] = registration.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, registration *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[registration.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.rows[registration.ID] = clone(registration)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, registrationID id.RegistrationID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, exists := s.rows[registrationID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return clone(row), nil
}

func (s *InMemoryStore) FindByUserAndActivity(_ context.Context, userID id.UserID, activityID id.ActivityID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	registrationID, exists := s.byPair[pairKey{user: userID, activity: activityID}]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.rows[registrationID]), nil
}

func (s *InMemoryStore) CountActive(_ context.Context, activityID id.ActivityID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, row := range s.rows {
		if row.ActivityID == activityID && row.Active() {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) ListActiveUsers(_ context.Context, activityID id.ActivityID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []id.UserID
	for _, row := range s.rows {
		if row.ActivityID == activityID && row.Active() {
			out = append(out, row.UserID)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListActiveActivities(_ context.Context, userID id.UserID) ([]id.ActivityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []id.ActivityID
	for _, row := range s.rows {
		if row.UserID == userID && row.Active() {
			out = append(out, row.ActivityID)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListActiveByUser(_ context.Context, userID id.UserID) ([]*models.Registration, error) {
	return s.listByUser(userID, models.StatusActive), nil
}

func (s *InMemoryStore) ListPendingByUser(_ context.Context, userID id.UserID) ([]*models.Registration, error) {
	return s.listByUser(userID, models.StatusCancelPending), nil
}

func (s *InMemoryStore) ListExpiredPending(_ context.Context, before time.Time, limit int) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Registration
	for _, row := range s.rows {
		if row.Status != models.StatusCancelPending {
			continue
		}
		if row.CancelUndoUntil == nil || !row.CancelUndoUntil.Before(before) {
			continue
		}
		out = append(out, clone(row))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CancelUndoUntil.Before(*out[j].CancelUndoUntil)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) listByUser(userID id.UserID, status models.Status) []*models.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Registration
	for _, row := range s.rows {
		if row.UserID == userID && row.Status == status {
			out = append(out, clone(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func clone(r *models.Registration) *models.Registration {
	c := *r
	if r.CancelUndoUntil != nil {
		t := *r.CancelUndoUntil
		c.CancelUndoUntil = &t
	}
	if r.CanceledAt != nil {
		t := *r.CanceledAt
		c.CanceledAt = &t
	}
	if r.CooldownUntil != nil {
		t := *r.CooldownUntil
		c.CooldownUntil = &t
	}
	if r.Snapshot != nil {
		c.Snapshot = append([]byte(nil), r.Snapshot...)
	}
	return &c
}
