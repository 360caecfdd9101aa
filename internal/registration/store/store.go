// Package store persists registrations. One row per (user, activity) pair;
// the pair is unique for the row's whole lifecycle.
package store

import (
	"context"
	"time"

	"volunteerhub/internal/registration/models"
	id "volunteerhub/pkg/domain"
)

// Store is the persistence port for registrations.
type Store interface {
	// Create inserts a new registration. Returns sentinel.ErrConflict when
	// a row for the (user, activity) pair already exists.
	Create(ctx context.Context, registration *models.Registration) error

	// Update persists lifecycle transitions on an existing row. Returns
	// sentinel.ErrNotFound when the row does not exist.
	Update(ctx context.Context, registration *models.Registration) error

	FindByID(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error)
	FindByUserAndActivity(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*models.Registration, error)

	// CountActive returns the number of ACTIVE registrations for an
	// activity. Capacity is derived from this count, never stored.
	CountActive(ctx context.Context, activityID id.ActivityID) (int, error)

	// ListActiveUsers returns the users holding an ACTIVE registration for
	// the activity.
	ListActiveUsers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error)

	// ListActiveActivities returns the activities the user holds an ACTIVE
	// registration for.
	ListActiveActivities(ctx context.Context, userID id.UserID) ([]id.ActivityID, error)

	// ListActiveByUser returns the user's ACTIVE registrations.
	ListActiveByUser(ctx context.Context, userID id.UserID) ([]*models.Registration, error)

	// ListPendingByUser returns the user's CANCEL_PENDING registrations.
	ListPendingByUser(ctx context.Context, userID id.UserID) ([]*models.Registration, error)

	// ListExpiredPending returns up to limit CANCEL_PENDING registrations
	// whose undo window ended strictly before the given instant. Feeds the
	// finalization sweep.
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*models.Registration, error)
}
