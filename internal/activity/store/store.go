// Package store persists activities. Memory and Postgres implementations
// satisfy the same interface; services depend only on the interface.
package store

import (
	"context"

	"volunteerhub/internal/activity/models"
	id "volunteerhub/pkg/domain"
)

// Store is the persistence port for activities.
//
// Implementations return sentinel.ErrNotFound when an activity does not
// exist.
type Store interface {
	Create(ctx context.Context, activity *models.Activity) error
	Update(ctx context.Context, activity *models.Activity) error
	FindByID(ctx context.Context, activityID id.ActivityID) (*models.Activity, error)
	FindByIDs(ctx context.Context, activityIDs []id.ActivityID) ([]*models.Activity, error)
	ListByOrganizer(ctx context.Context, organizerID id.UserID) ([]*models.Activity, error)
}
