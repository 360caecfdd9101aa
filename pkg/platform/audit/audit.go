// Package audit captures lifecycle events emitted by the registration and
// notification engine. Events are append-only and transport-agnostic; sinks
// (memory for tests, Kafka for production) fan out behind the Store
// interface.
package audit

import (
	"context"
	"time"

	id "volunteerhub/pkg/domain"
)

// LifecycleEvent names a fact the engine emits. Consumers treat these as an
// append-only activity log, not as commands.
type LifecycleEvent string

const (
	EventRegistrationCreated     LifecycleEvent = "registration_created"
	EventRegistrationReactivated LifecycleEvent = "registration_reactivated"
	EventCancelStarted           LifecycleEvent = "cancel_started"
	EventCancelUndone            LifecycleEvent = "cancel_undone"
	EventCancelFinalized         LifecycleEvent = "cancel_finalized"
	EventActivityFull            LifecycleEvent = "activity_full"
	EventActivityPublished       LifecycleEvent = "activity_published"
	EventActivityEdited          LifecycleEvent = "activity_edited"
	EventActivityHidden          LifecycleEvent = "activity_hidden"
	EventActivityDeleted         LifecycleEvent = "activity_deleted"
)

// Event is one emitted lifecycle fact.
type Event struct {
	Timestamp  time.Time
	Action     LifecycleEvent
	UserID     id.UserID
	ActivityID id.ActivityID
	RequestID  string
	Detail     string
}

// Store is an append-only sink for events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps and forwards events. It is deliberately best-effort at
// call sites: a failed append must never roll back the state transition
// that produced the event.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}
