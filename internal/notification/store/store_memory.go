package store

import (
	"context"
	"sort"
	"sync"

	"volunteerhub/internal/notification/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
)

// dedupKey mirrors the unique index on the obligations table.
type dedupKey struct {
	recipient   id.UserID
	kind        models.Kind
	activity    id.ActivityID
	triggerDate models.Date
}

// InMemoryStore keeps obligations in memory. The dedup map is maintained
// under the same mutex as the insert, so concurrent duplicate derivations
// collapse to one row, the in-memory equivalent of the unique constraint.
type InMemoryStore struct {
	mu          sync.RWMutex
	obligations map[id.ObligationID]*models.Obligation
	dedup       map[dedupKey]id.ObligationID
	order       []id.ObligationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		obligations: make(map[id.ObligationID]*models.Obligation),
		dedup:       make(map[dedupKey]id.ObligationID),
	}
}

func (s *InMemoryStore) Upsert(_ context.Context, obligation *models.Obligation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obligation.Kind.Deduplicated() {
		key := dedupKey{
			recipient:   obligation.RecipientID,
			kind:        obligation.Kind,
			activity:    obligation.ActivityID,
			triggerDate: obligation.TriggerDate,
		}
		if _, exists := s.dedup[key]; exists {
			return false, nil
		}
		s.dedup[key] = obligation.ID
	}

	c := *obligation
	s.obligations[obligation.ID] = &c
	s.order = append(s.order, obligation.ID)
	return true, nil
}

func (s *InMemoryStore) ListDue(_ context.Context, recipientID id.UserID, today models.Date, limit int) ([]*models.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Obligation
	for _, obligationID := range s.order {
		o := s.obligations[obligationID]
		if o == nil || o.RecipientID != recipientID {
			continue
		}
		if o.TriggerDate.After(today) {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountUnreadDue(_ context.Context, recipientID id.UserID, today models.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, o := range s.obligations {
		if o.RecipientID == recipientID && !o.Read && !o.TriggerDate.After(today) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) MarkRead(_ context.Context, obligationID id.ObligationID, recipientID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, exists := s.obligations[obligationID]
	if !exists || o.RecipientID != recipientID {
		return sentinel.ErrNotFound
	}
	o.Read = true
	return nil
}

func (s *InMemoryStore) DeleteFutureByActivity(ctx context.Context, activityID id.ActivityID, kinds []models.Kind, today models.Date) error {
	return s.deleteFuture(activityID, kinds, today, nil)
}

func (s *InMemoryStore) DeleteFutureForRecipient(ctx context.Context, recipientID id.UserID, activityID id.ActivityID, kinds []models.Kind, today models.Date) error {
	return s.deleteFuture(activityID, kinds, today, &recipientID)
}

func (s *InMemoryStore) deleteFuture(activityID id.ActivityID, kinds []models.Kind, today models.Date, recipientID *id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kindSet := make(map[models.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		kindSet[k] = struct{}{}
	}

	for obligationID, o := range s.obligations {
		if o.ActivityID != activityID {
			continue
		}
		if recipientID != nil && o.RecipientID != *recipientID {
			continue
		}
		if _, ok := kindSet[o.Kind]; !ok {
			continue
		}
		if !o.TriggerDate.After(today) {
			continue
		}
		delete(s.obligations, obligationID)
		if o.Kind.Deduplicated() {
			delete(s.dedup, dedupKey{
				recipient:   o.RecipientID,
				kind:        o.Kind,
				activity:    o.ActivityID,
				triggerDate: o.TriggerDate,
			})
		}
	}
	return nil
}
