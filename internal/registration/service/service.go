// Package service orchestrates the registration lifecycle: registering,
// two-phase cancellation with an undo window, lazy finalization, derived
// capacity accounting and schedule-conflict detection.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	activitymodels "volunteerhub/internal/activity/models"
	"volunteerhub/internal/platform/metrics"
	"volunteerhub/internal/registration/models"
	"volunteerhub/internal/registration/store"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/audit"
	"volunteerhub/pkg/platform/sentinel"
	"volunteerhub/pkg/requestcontext"
)

const lockStripes = 64

// ActivitySource loads and updates activities for lifecycle checks.
type ActivitySource interface {
	FindByID(ctx context.Context, activityID id.ActivityID) (*activitymodels.Activity, error)
	FindByIDs(ctx context.Context, activityIDs []id.ActivityID) ([]*activitymodels.Activity, error)
	Update(ctx context.Context, activity *activitymodels.Activity) error
}

// Notifier receives lifecycle events the notification rules react to.
type Notifier interface {
	OnRegistered(ctx context.Context, activity *activitymodels.Activity, userID id.UserID, now time.Time) error
	OnCapacityFull(ctx context.Context, activity *activitymodels.Activity, activeCount int, now time.Time) error
	OnCancelFinalized(ctx context.Context, activity *activitymodels.Activity, userID id.UserID, reason string, now time.Time) error
}

// Membership joins registrants to the activity chat room.
type Membership interface {
	Join(ctx context.Context, activityID id.ActivityID, userID id.UserID) error
}

// DistributedLocker serializes per-activity mutations across processes.
// Optional; single-node deployments rely on the in-process stripes alone.
type DistributedLocker interface {
	Acquire(ctx context.Context, activityID string) (token string, err error)
	Release(ctx context.Context, activityID, token string) error
}

// Config carries the lifecycle timing rules.
type Config struct {
	// UndoWindow is how long a cancellation stays undoable.
	UndoWindow time.Duration
	// Cooldown blocks re-registration after a finalized cancellation.
	Cooldown time.Duration
	// CancelCutoff is the minimum lead time before the activity start at
	// which cancellation is still allowed.
	CancelCutoff time.Duration
	// Timezone is the calendar zone for same-day conflict detection.
	Timezone *time.Location
}

// Service is the registration lifecycle orchestrator. All mutations for
// one activity run under that activity's lock, so the capacity check and
// the write it guards are atomic.
type Service struct {
	registrations store.Store
	activities    ActivitySource
	notifier      Notifier
	membership    Membership
	cfg           Config

	locker  DistributedLocker
	stripes [lockStripes]sync.Mutex

	audit   *audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(publisher *audit.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithDistributedLocker(locker DistributedLocker) Option {
	return func(s *Service) { s.locker = locker }
}

func New(registrations store.Store, activities ActivitySource, notifier Notifier, membership Membership, cfg Config, opts ...Option) (*Service, error) {
	if registrations == nil {
		return nil, fmt.Errorf("registration store is required")
	}
	if activities == nil {
		return nil, fmt.Errorf("activity source is required")
	}
	if cfg.UndoWindow <= 0 || cfg.Cooldown <= 0 || cfg.CancelCutoff <= 0 {
		return nil, fmt.Errorf("lifecycle durations must be positive")
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	s := &Service{
		registrations: registrations,
		activities:    activities,
		notifier:      notifier,
		membership:    membership,
		cfg:           cfg,
		logger:        slog.Default(),
		tracer:        otel.Tracer("registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Result is the outcome of a successful lifecycle operation.
type Result struct {
	Registration *models.Registration
	// ActiveCount and IsFull reflect capacity after the operation.
	ActiveCount int
	IsFull      bool
	// SameDayWith lists the caller's other active activities on the same
	// civil day (soft conflicts, informational).
	SameDayWith []id.ActivityID
	// Reactivated is true when the operation revived an existing canceled
	// row rather than creating one.
	Reactivated bool
}

// Register registers the user for the activity, or reactivates their
// canceled registration. snapshot is the applicant's opaque registration
// payload, stored as submitted. A hard schedule conflict (identical start
// instant with another active registration) denies; a same-day overlap is
// reported but allowed.
func (s *Service) Register(ctx context.Context, userID id.UserID, activityID id.ActivityID, snapshot json.RawMessage) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Register",
		trace.WithAttributes(
			attribute.String("activity_id", activityID.String()),
			attribute.String("user_id", userID.String()),
		))
	defer span.End()

	result, err := s.withActivityLock(ctx, activityID, func(ctx context.Context) (*Result, error) {
		return s.register(ctx, userID, activityID, snapshot)
	})
	if err != nil {
		s.recordDenied(err)
		return nil, err
	}
	return result, nil
}

func (s *Service) register(ctx context.Context, userID id.UserID, activityID id.ActivityID, snapshot json.RawMessage) (*Result, error) {
	now := requestcontext.Now(ctx)

	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	if !activity.Visible() || !activity.AcceptingRegistrations {
		return nil, models.Deny(models.DenyActivityClosed)
	}
	if activity.Scheduled() && !now.Before(activity.StartAt) {
		return nil, models.Deny(models.DenyActivityClosed)
	}

	existing, err := s.registrations.FindByUserAndActivity(ctx, userID, activityID)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		existing = nil
	default:
		return nil, fmt.Errorf("load registration: %w", err)
	}

	// Observation finalizes: a pending row past its window counts as
	// canceled from here on.
	if existing != nil && existing.PendingExpired(now) {
		if err := s.finalize(ctx, existing, activity, now); err != nil {
			return nil, err
		}
	}

	// Capacity is checked before the caller's own record: a full activity
	// denies full even for an already-registered or cooling-down caller.
	activeCount, err := s.registrations.CountActive(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}
	if !activity.Unlimited() && activeCount >= activity.Slots {
		return nil, models.Deny(models.DenyActivityFull)
	}

	if existing != nil {
		switch existing.Status {
		case models.StatusActive:
			return nil, models.Deny(models.DenyAlreadyActive)
		case models.StatusCancelPending:
			return nil, models.Deny(models.DenyAlreadyPending)
		case models.StatusCanceled:
			if existing.InCooldown(now) {
				return nil, models.DenyCooldown(existing.CooldownUntil.Sub(now))
			}
		}
	}

	sameDay, err := s.detectConflicts(ctx, userID, activity)
	if err != nil {
		return nil, err
	}

	reactivated := existing != nil
	var registration *models.Registration
	if reactivated {
		registration = existing
		registration.Reactivate(snapshot, now)
		if err := s.registrations.Update(ctx, registration); err != nil {
			return nil, fmt.Errorf("reactivate registration: %w", err)
		}
	} else {
		registration = &models.Registration{
			ID:         id.NewRegistrationID(),
			UserID:     userID,
			ActivityID: activityID,
			Status:     models.StatusActive,
			Snapshot:   snapshot,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.registrations.Create(ctx, registration); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// Lost a race outside the lock scope (another node without
				// the distributed locker). Surface as already registered.
				return nil, models.Deny(models.DenyAlreadyActive)
			}
			return nil, fmt.Errorf("create registration: %w", err)
		}
	}

	activeCount++
	isFull := !activity.Unlimited() && activeCount >= activity.Slots

	s.afterRegister(ctx, activity, registration, activeCount, isFull, reactivated, now)

	return &Result{
		Registration: registration,
		ActiveCount:  activeCount,
		IsFull:       isFull,
		SameDayWith:  sameDay,
		Reactivated:  reactivated,
	}, nil
}

// afterRegister runs the post-commit side effects. None of them can undo
// the registration; failures are logged and absorbed.
func (s *Service) afterRegister(ctx context.Context, activity *activitymodels.Activity, registration *models.Registration, activeCount int, isFull, reactivated bool, now time.Time) {
	if s.membership != nil {
		if err := s.membership.Join(ctx, activity.ID, registration.UserID); err != nil {
			s.logger.WarnContext(ctx, "chat room join failed",
				"activity_id", activity.ID, "user_id", registration.UserID, "error", err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.OnRegistered(ctx, activity, registration.UserID, now); err != nil {
			s.logger.WarnContext(ctx, "register reminder derivation failed",
				"activity_id", activity.ID, "error", err)
		}
	}

	if isFull {
		s.closeRegistrations(ctx, activity, activeCount, now)
	}

	if s.metrics != nil {
		if reactivated {
			s.metrics.RegistrationsReactivated.Inc()
		} else {
			s.metrics.RegistrationsCreated.Inc()
		}
	}
	s.emit(ctx, eventForRegister(reactivated), registration.UserID, activity.ID, "")
}

// closeRegistrations flips the activity to not accepting when the last
// slot fills, and raises the owner's full notice.
func (s *Service) closeRegistrations(ctx context.Context, activity *activitymodels.Activity, activeCount int, now time.Time) {
	if activity.AcceptingRegistrations {
		activity.AcceptingRegistrations = false
		activity.UpdatedAt = now
		if err := s.activities.Update(ctx, activity); err != nil {
			s.logger.WarnContext(ctx, "auto-close registrations failed",
				"activity_id", activity.ID, "error", err)
		} else if s.metrics != nil {
			s.metrics.CapacityClosed.Inc()
		}
	}
	if s.notifier != nil {
		if err := s.notifier.OnCapacityFull(ctx, activity, activeCount, now); err != nil {
			s.logger.WarnContext(ctx, "capacity-full notice failed",
				"activity_id", activity.ID, "error", err)
		}
	}
	s.emit(ctx, audit.EventActivityFull, id.UserID{}, activity.ID, "")
}

// BeginCancel moves the caller's ACTIVE registration to CANCEL_PENDING.
// The slot frees immediately; the undo window runs from now. Denied past
// the cancellation cutoff before the activity start.
func (s *Service) BeginCancel(ctx context.Context, userID id.UserID, activityID id.ActivityID, reason models.CancelReason, reasonText string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "registration.BeginCancel",
		trace.WithAttributes(attribute.String("activity_id", activityID.String())))
	defer span.End()

	result, err := s.withActivityLock(ctx, activityID, func(ctx context.Context) (*Result, error) {
		return s.beginCancel(ctx, userID, activityID, reason, reasonText)
	})
	if err != nil {
		s.recordDenied(err)
		return nil, err
	}
	return result, nil
}

func (s *Service) beginCancel(ctx context.Context, userID id.UserID, activityID id.ActivityID, reason models.CancelReason, reasonText string) (*Result, error) {
	now := requestcontext.Now(ctx)

	if !reason.Valid() {
		return nil, models.Deny(models.DenyInvalidReason)
	}
	if reason == models.ReasonOther && reasonText == "" {
		return nil, models.Deny(models.DenyMissingOtherText)
	}

	registration, activity, err := s.loadPair(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if registration.PendingExpired(now) {
		if err := s.finalize(ctx, registration, activity, now); err != nil {
			return nil, err
		}
	}
	if !registration.Active() {
		return nil, models.Deny(models.DenyNotActive)
	}
	if activity.Scheduled() && now.After(activity.StartAt.Add(-s.cfg.CancelCutoff)) {
		return nil, models.Deny(models.DenyPastCutoff)
	}

	registration.BeginCancel(reason, reasonText, now, s.cfg.UndoWindow)
	if err := s.registrations.Update(ctx, registration); err != nil {
		return nil, fmt.Errorf("update registration: %w", err)
	}

	if s.metrics != nil {
		s.metrics.CancellationsStarted.Inc()
	}
	s.emit(ctx, audit.EventCancelStarted, userID, activityID, string(reason))

	activeCount, err := s.registrations.CountActive(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}
	return &Result{
		Registration: registration,
		ActiveCount:  activeCount,
		IsFull:       !activity.Unlimited() && activeCount >= activity.Slots,
	}, nil
}

// UndoCancel returns a CANCEL_PENDING registration to ACTIVE. The deadline
// is inclusive. Because the slot freed when cancellation began, undo
// re-validates capacity and is denied if the slot was retaken.
func (s *Service) UndoCancel(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "registration.UndoCancel",
		trace.WithAttributes(attribute.String("activity_id", activityID.String())))
	defer span.End()

	result, err := s.withActivityLock(ctx, activityID, func(ctx context.Context) (*Result, error) {
		return s.undoCancel(ctx, userID, activityID)
	})
	if err != nil {
		s.recordDenied(err)
		return nil, err
	}
	return result, nil
}

func (s *Service) undoCancel(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*Result, error) {
	now := requestcontext.Now(ctx)

	registration, activity, err := s.loadPair(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if registration.PendingExpired(now) {
		if err := s.finalize(ctx, registration, activity, now); err != nil {
			return nil, err
		}
		return nil, models.Deny(models.DenyUndoWindowExpired)
	}
	if !registration.UndoOpen(now) {
		return nil, models.Deny(models.DenyNotPending)
	}

	activeCount, err := s.registrations.CountActive(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}
	if !activity.Unlimited() && activeCount >= activity.Slots {
		// The freed slot was retaken; the registration stays pending and
		// will finalize when the window lapses.
		return nil, models.Deny(models.DenyActivityFull)
	}

	registration.UndoCancel(now)
	if err := s.registrations.Update(ctx, registration); err != nil {
		return nil, fmt.Errorf("update registration: %w", err)
	}

	if s.metrics != nil {
		s.metrics.CancellationsUndone.Inc()
	}
	s.emit(ctx, audit.EventCancelUndone, userID, activityID, "")

	activeCount++
	isFull := !activity.Unlimited() && activeCount >= activity.Slots
	if isFull {
		s.closeRegistrations(ctx, activity, activeCount, now)
	}
	return &Result{
		Registration: registration,
		ActiveCount:  activeCount,
		IsFull:       isFull,
	}, nil
}

// Status returns the caller's registration for the activity, finalizing it
// first if its undo window has lapsed. Read-your-state for undo countdown
// polling.
func (s *Service) Status(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*models.Registration, error) {
	now := requestcontext.Now(ctx)

	registration, err := s.registrations.FindByUserAndActivity(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if registration.PendingExpired(now) {
		_, err := s.withActivityLock(ctx, activityID, func(ctx context.Context) (*Result, error) {
			fresh, err := s.registrations.FindByID(ctx, registration.ID)
			if err != nil {
				return nil, err
			}
			if fresh.PendingExpired(now) {
				activity, err := s.activities.FindByID(ctx, activityID)
				if err != nil {
					return nil, fmt.Errorf("load activity: %w", err)
				}
				if err := s.finalize(ctx, fresh, activity, now); err != nil {
					return nil, err
				}
			}
			registration = fresh
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return registration, nil
}

// Sweep finalizes CANCEL_PENDING registrations whose undo window has
// lapsed. The lazy finalize-on-observation path makes the sweep a
// tidiness measure, not a correctness requirement. The batch instant
// comes from the context clock like every other path.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	now := requestcontext.Now(ctx)
	expired, err := s.registrations.ListExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired pending: %w", err)
	}

	finalized := 0
	for _, registration := range expired {
		registration := registration
		_, err := s.withActivityLock(ctx, registration.ActivityID, func(ctx context.Context) (*Result, error) {
			fresh, err := s.registrations.FindByID(ctx, registration.ID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return nil, nil
				}
				return nil, err
			}
			if !fresh.PendingExpired(now) {
				return nil, nil
			}
			activity, err := s.activities.FindByID(ctx, fresh.ActivityID)
			if err != nil {
				return nil, fmt.Errorf("load activity: %w", err)
			}
			if err := s.finalize(ctx, fresh, activity, now); err != nil {
				return nil, err
			}
			finalized++
			return nil, nil
		})
		if err != nil {
			s.logger.WarnContext(ctx, "sweep finalize failed",
				"registration_id", registration.ID, "error", err)
		}
	}
	return finalized, nil
}

// finalize commits CANCEL_PENDING -> CANCELED. Idempotent: callers check
// PendingExpired under the activity lock before calling. The cooldown runs
// from the finalization instant, i.e. from whenever the lapsed window is
// first observed.
func (s *Service) finalize(ctx context.Context, registration *models.Registration, activity *activitymodels.Activity, now time.Time) error {
	reason := string(registration.CancelReason)
	registration.Finalize(now, s.cfg.Cooldown)
	if err := s.registrations.Update(ctx, registration); err != nil {
		return fmt.Errorf("finalize registration: %w", err)
	}

	if s.metrics != nil {
		s.metrics.CancellationsFinalized.Inc()
	}
	s.emit(ctx, audit.EventCancelFinalized, registration.UserID, registration.ActivityID, reason)

	if s.notifier != nil {
		if err := s.notifier.OnCancelFinalized(ctx, activity, registration.UserID, reason, now); err != nil {
			s.logger.WarnContext(ctx, "cancel-finalized notice failed",
				"activity_id", activity.ID, "error", err)
		}
	}
	return nil
}

// detectConflicts compares the activity's start against the caller's other
// active registrations. Identical instants are hard conflicts and deny;
// same civil day in the configured zone is soft and only reported.
func (s *Service) detectConflicts(ctx context.Context, userID id.UserID, activity *activitymodels.Activity) ([]id.ActivityID, error) {
	if !activity.Scheduled() {
		return nil, nil
	}

	activeIDs, err := s.registrations.ListActiveActivities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active activities: %w", err)
	}
	others, err := s.activities.FindByIDs(ctx, activeIDs)
	if err != nil {
		return nil, fmt.Errorf("load active activities: %w", err)
	}

	day := activity.StartAt.In(s.cfg.Timezone).Format("2006-01-02")
	var sameDay []id.ActivityID
	for _, other := range others {
		if other.ID == activity.ID || !other.Scheduled() {
			continue
		}
		if other.StartAt.Equal(activity.StartAt) {
			return nil, models.DenyConflict(other.ID)
		}
		if other.StartAt.In(s.cfg.Timezone).Format("2006-01-02") == day {
			sameDay = append(sameDay, other.ID)
		}
	}
	return sameDay, nil
}

func (s *Service) loadPair(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*models.Registration, *activitymodels.Activity, error) {
	registration, err := s.registrations.FindByUserAndActivity(ctx, userID, activityID)
	if err != nil {
		return nil, nil, err
	}
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		return nil, nil, fmt.Errorf("load activity: %w", err)
	}
	return registration, activity, nil
}

// withActivityLock runs fn holding the activity's in-process stripe and,
// when configured, the distributed lease.
func (s *Service) withActivityLock(ctx context.Context, activityID id.ActivityID, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	stripe := &s.stripes[stripeFor(activityID)]
	stripe.Lock()
	defer stripe.Unlock()

	if s.locker != nil {
		token, err := s.locker.Acquire(ctx, activityID.String())
		if err != nil {
			return nil, fmt.Errorf("acquire activity lock: %w", err)
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), activityID.String(), token); err != nil {
				s.logger.WarnContext(ctx, "activity lock release failed",
					"activity_id", activityID, "error", err)
			}
		}()
	}
	return fn(ctx)
}

func stripeFor(activityID id.ActivityID) uint32 {
	h := fnv.New32a()
	h.Write([]byte(activityID.String()))
	return h.Sum32() % lockStripes
}

func (s *Service) recordDenied(err error) {
	if s.metrics == nil {
		return
	}
	var denial *models.Denial
	if errors.As(err, &denial) {
		s.metrics.RegistrationsDenied.WithLabelValues(string(denial.Reason)).Inc()
	}
}

func (s *Service) emit(ctx context.Context, action audit.LifecycleEvent, userID id.UserID, activityID id.ActivityID, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Action:     action,
		UserID:     userID,
		ActivityID: activityID,
		RequestID:  requestcontext.RequestID(ctx),
		Detail:     detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}

func eventForRegister(reactivated bool) audit.LifecycleEvent {
	if reactivated {
		return audit.EventRegistrationReactivated
	}
	return audit.EventRegistrationCreated
}
