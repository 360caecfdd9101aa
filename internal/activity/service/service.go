// Package service orchestrates activity lifecycle operations and the
// notification triggers hanging off them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"volunteerhub/internal/activity/models"
	"volunteerhub/internal/activity/store"
	id "volunteerhub/pkg/domain"
	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/platform/audit"
	"volunteerhub/pkg/platform/sentinel"
	"volunteerhub/pkg/requestcontext"
)

// Notifier receives activity lifecycle events the notification rules
// react to.
type Notifier interface {
	OnPublished(ctx context.Context, activity *models.Activity, now time.Time) error
	OnActivityEdited(ctx context.Context, old, new *models.Activity, now time.Time) (changed bool, err error)
	OnHidden(ctx context.Context, activity *models.Activity, now time.Time) error
	OnDeleted(ctx context.Context, activity *models.Activity, now time.Time) error
}

// RegistrationCounter derives the activity's active registration count.
type RegistrationCounter interface {
	CountActive(ctx context.Context, activityID id.ActivityID) (int, error)
}

// Service manages activities. Moderation operations (hide, delete) are
// gated on the caller's moderator flag; edits on ownership.
type Service struct {
	store         store.Store
	registrations RegistrationCounter
	notifier      Notifier
	audit         *audit.Publisher
	logger        *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAudit(publisher *audit.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func New(activities store.Store, registrations RegistrationCounter, notifier Notifier, opts ...Option) (*Service, error) {
	if activities == nil {
		return nil, fmt.Errorf("activity store is required")
	}
	s := &Service{
		store:         activities,
		registrations: registrations,
		notifier:      notifier,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateInput carries the organizer-provided activity fields.
type CreateInput struct {
	Title       string
	Location    string
	Description string
	Category    string
	Slots       int
	Fee         int
	StartAt     time.Time
}

// Create publishes a new activity and fans the new-post notice out to the
// organizer's followers.
func (s *Service) Create(ctx context.Context, organizerID id.UserID, input CreateInput) (*models.Activity, error) {
	if input.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if input.Slots < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "slots must be zero or positive")
	}
	if input.Fee < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "fee must be zero or positive")
	}

	now := requestcontext.Now(ctx)
	activity := &models.Activity{
		ID:                     id.NewActivityID(),
		OrganizerID:            organizerID,
		Title:                  input.Title,
		Location:               input.Location,
		Description:            input.Description,
		Category:               input.Category,
		Slots:                  input.Slots,
		Fee:                    input.Fee,
		StartAt:                input.StartAt,
		AcceptingRegistrations: true,
		Approval:               models.ApprovalApproved,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.store.Create(ctx, activity); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.OnPublished(ctx, activity, now); err != nil {
			s.logger.WarnContext(ctx, "publish fan-out failed",
				"activity_id", activity.ID, "error", err)
		}
	}
	s.emit(ctx, audit.EventActivityPublished, organizerID, activity.ID)
	return activity, nil
}

// EditInput carries the editable fields. Nil pointers leave the field
// unchanged.
type EditInput struct {
	Title       *string
	Location    *string
	Description *string
	Category    *string
	Slots       *int
	Fee         *int
	StartAt     *time.Time
	Accepting   *bool
}

// Edit applies an organizer's changes. Significant changes notify the
// audience; a moved start retargets pending reminders.
func (s *Service) Edit(ctx context.Context, callerID id.UserID, activityID id.ActivityID, input EditInput) (*models.Activity, error) {
	now := requestcontext.Now(ctx)

	activity, err := s.load(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.OrganizerID != callerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the organizer can edit this activity")
	}

	old := *activity
	applyEdit(activity, input)
	activity.UpdatedAt = now

	if err := s.store.Update(ctx, activity); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}

	if s.notifier != nil {
		if _, err := s.notifier.OnActivityEdited(ctx, &old, activity, now); err != nil {
			s.logger.WarnContext(ctx, "edit fan-out failed",
				"activity_id", activity.ID, "error", err)
		}
	}
	s.emit(ctx, audit.EventActivityEdited, callerID, activity.ID)
	return activity, nil
}

// Hide marks the activity hidden (moderator only) and notifies its active
// registrants.
func (s *Service) Hide(ctx context.Context, activityID id.ActivityID) (*models.Activity, error) {
	now := requestcontext.Now(ctx)

	activity, err := s.load(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.Hidden {
		return activity, nil
	}

	if s.notifier != nil {
		// Audience is computed before the flag flips; afterwards the
		// activity is no longer visible to the rules.
		if err := s.notifier.OnHidden(ctx, activity, now); err != nil {
			s.logger.WarnContext(ctx, "hide fan-out failed",
				"activity_id", activity.ID, "error", err)
		}
	}

	activity.Hidden = true
	activity.UpdatedAt = now
	if err := s.store.Update(ctx, activity); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	s.emit(ctx, audit.EventActivityHidden, id.UserID{}, activity.ID)
	return activity, nil
}

// Delete soft-deletes the activity (moderator only) and notifies active
// registrants plus the organizer.
func (s *Service) Delete(ctx context.Context, activityID id.ActivityID) error {
	now := requestcontext.Now(ctx)

	activity, err := s.load(ctx, activityID)
	if err != nil {
		return err
	}
	if activity.Deleted {
		return nil
	}

	if s.notifier != nil {
		if err := s.notifier.OnDeleted(ctx, activity, now); err != nil {
			s.logger.WarnContext(ctx, "delete fan-out failed",
				"activity_id", activity.ID, "error", err)
		}
	}

	activity.Deleted = true
	activity.UpdatedAt = now
	if err := s.store.Update(ctx, activity); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	s.emit(ctx, audit.EventActivityDeleted, id.UserID{}, activity.ID)
	return nil
}

// View is an activity read joined with its derived capacity state.
type View struct {
	Activity    *models.Activity
	ActiveCount int
	IsFull      bool
	// Remaining is slots minus active count; -1 when unlimited.
	Remaining int
}

// Get returns the activity with derived capacity. Capacity is always
// computed from registration rows, never read from a stored counter.
func (s *Service) Get(ctx context.Context, activityID id.ActivityID) (*View, error) {
	activity, err := s.load(ctx, activityID)
	if err != nil {
		return nil, err
	}

	count := 0
	if s.registrations != nil {
		count, err = s.registrations.CountActive(ctx, activityID)
		if err != nil {
			return nil, fmt.Errorf("count active: %w", err)
		}
	}

	view := &View{Activity: activity, ActiveCount: count, Remaining: -1}
	if !activity.Unlimited() {
		view.Remaining = activity.Slots - count
		if view.Remaining < 0 {
			view.Remaining = 0
		}
		view.IsFull = count >= activity.Slots
	}
	return view, nil
}

func (s *Service) load(ctx context.Context, activityID id.ActivityID) (*models.Activity, error) {
	activity, err := s.store.FindByID(ctx, activityID)
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

func applyEdit(activity *models.Activity, input EditInput) {
	if input.Title != nil {
		activity.Title = *input.Title
	}
	if input.Location != nil {
		activity.Location = *input.Location
	}
	if input.Description != nil {
		activity.Description = *input.Description
	}
	if input.Category != nil {
		activity.Category = *input.Category
	}
	if input.Slots != nil && *input.Slots >= 0 {
		activity.Slots = *input.Slots
	}
	if input.Fee != nil && *input.Fee >= 0 {
		activity.Fee = *input.Fee
	}
	if input.StartAt != nil {
		activity.StartAt = *input.StartAt
	}
	if input.Accepting != nil {
		activity.AcceptingRegistrations = *input.Accepting
	}
}

func (s *Service) emit(ctx context.Context, action audit.LifecycleEvent, userID id.UserID, activityID id.ActivityID) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Action:     action,
		UserID:     userID,
		ActivityID: activityID,
		RequestID:  requestcontext.RequestID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}
