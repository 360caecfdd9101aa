// Package rules derives notification obligations from activity state and
// registration events.
//
// The rule table below is the single source of truth; trigger logic lives
// here and nowhere else.
//
//	Kind                   Trigger                          Recipients                        Trigger-date
//	OWNER_FULL             active count reaches capacity    organizer                         today
//	REGISTER_REMINDER      1 day before start               each ACTIVE registrant            start - 1
//	SAVED_REMINDER         3 and 1 days before start        each bookmarker                   start - 3, - 1
//	OWNER_STATUS_REMINDER  2 days before start              organizer                         start - 2
//	POST_UPDATED           significant edit                 ACTIVE registrants + bookmarkers  today
//	POST_HIDDEN            moderator hides                  ACTIVE registrants + organizer    today
//	POST_DELETED           moderator deletes                ACTIVE registrants + organizer    today
//	FOLLOWER_NEW_POST      organizer publishes              each follower                     today
//	CHAT_MESSAGE           new chat message                 every other room member           immediate, no dedup
//	SYSTEM                 cancellation finalized           organizer                         today
//
// Obligation creation is an idempotent upsert keyed by (recipient, kind,
// activity, trigger-date) for every kind except CHAT_MESSAGE. Reminders are
// materialized eagerly when the triggering write happens and synthesized
// lazily on read as a backstop; both paths land on the same dedup key.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	activitymodels "volunteerhub/internal/activity/models"
	"volunteerhub/internal/notification/models"
	"volunteerhub/internal/notification/store"
	"volunteerhub/internal/platform/metrics"
	id "volunteerhub/pkg/domain"
)

// fanOutLimit bounds concurrent per-recipient upserts.
const fanOutLimit = 8

// reminderKinds are the date-based kinds retargeted when a start time moves.
var reminderKinds = []models.Kind{
	models.KindRegisterReminder,
	models.KindSavedReminder,
	models.KindOwnerStatusReminder,
}

// RegistrantSource answers registrant id-set queries. Satisfied by the
// registration store.
type RegistrantSource interface {
	ListActiveUsers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error)
	ListActiveActivities(ctx context.Context, userID id.UserID) ([]id.ActivityID, error)
	CountActive(ctx context.Context, activityID id.ActivityID) (int, error)
}

// BookmarkSource answers bookmark id-set queries. Satisfied by the social
// relations store.
type BookmarkSource interface {
	ListBookmarkers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error)
	ListBookmarkedActivities(ctx context.Context, userID id.UserID) ([]id.ActivityID, error)
}

// FollowerSource answers follower id-set queries.
type FollowerSource interface {
	ListFollowers(ctx context.Context, organizerID id.UserID) ([]id.UserID, error)
}

// MemberSource answers chat room membership queries.
type MemberSource interface {
	ListMembers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error)
}

// ActivitySource loads activities for lazy reminder synthesis.
type ActivitySource interface {
	FindByIDs(ctx context.Context, activityIDs []id.ActivityID) ([]*activitymodels.Activity, error)
	ListByOrganizer(ctx context.Context, organizerID id.UserID) ([]*activitymodels.Activity, error)
}

// Engine derives obligations and commits them through the obligation store.
// Every public method is safe to call redundantly: the dedup key absorbs
// duplicate derivations.
type Engine struct {
	obligations store.Store
	registrants RegistrantSource
	bookmarks   BookmarkSource
	followers   FollowerSource
	members     MemberSource
	activities  ActivitySource
	loc         *time.Location

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds a rule engine. loc is the calendar zone trigger dates are
// computed in.
func New(
	obligations store.Store,
	registrants RegistrantSource,
	bookmarks BookmarkSource,
	followers FollowerSource,
	members MemberSource,
	activities ActivitySource,
	loc *time.Location,
	opts ...Option,
) (*Engine, error) {
	if obligations == nil {
		return nil, fmt.Errorf("obligation store is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		obligations: obligations,
		registrants: registrants,
		bookmarks:   bookmarks,
		followers:   followers,
		members:     members,
		activities:  activities,
		loc:         loc,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Location returns the calendar zone the engine computes trigger dates in.
func (e *Engine) Location() *time.Location { return e.loc }

// Today returns the current civil date for the given instant.
func (e *Engine) Today(now time.Time) models.Date { return models.DateOf(now, e.loc) }

// OnCapacityFull raises OWNER_FULL to the organizer. Idempotent per day.
func (e *Engine) OnCapacityFull(ctx context.Context, activity *activitymodels.Activity, activeCount int, now time.Time) error {
	if !activity.Visible() || activity.Unlimited() {
		return nil
	}
	return e.upsert(ctx, &models.Obligation{
		RecipientID: activity.OrganizerID,
		Kind:        models.KindOwnerFull,
		ActivityID:  activity.ID,
		TriggerDate: e.Today(now),
		Title:       activity.Title,
		Message:     "Your activity is full.\n" + e.capacityStatusText(activity, activeCount),
		LinkURL:     activityLink(activity.ID),
	}, now)
}

// OnRegistered materializes the registrant's REGISTER_REMINDER for the
// activity (trigger start - 1) when that date has not already passed.
func (e *Engine) OnRegistered(ctx context.Context, activity *activitymodels.Activity, userID id.UserID, now time.Time) error {
	if !activity.Visible() || !activity.Scheduled() {
		return nil
	}
	trigger := e.Today(activity.StartAt).AddDays(-1)
	if e.Today(now).After(trigger) {
		return nil
	}
	count, err := e.activeCount(ctx, activity.ID)
	if err != nil {
		return err
	}
	return e.upsert(ctx, &models.Obligation{
		RecipientID: userID,
		Kind:        models.KindRegisterReminder,
		ActivityID:  activity.ID,
		TriggerDate: trigger,
		Title:       activity.Title,
		Message:     "An activity you registered for starts in 1 day.\n" + e.capacityStatusText(activity, count),
		LinkURL:     activityLink(activity.ID),
	}, now)
}

// OnBookmarked materializes the bookmarker's SAVED_REMINDER pair
// (start - 3 and start - 1), skipping dates already passed.
func (e *Engine) OnBookmarked(ctx context.Context, activity *activitymodels.Activity, userID id.UserID, now time.Time) error {
	if !activity.Visible() || !activity.Scheduled() {
		return nil
	}
	count, err := e.activeCount(ctx, activity.ID)
	if err != nil {
		return err
	}
	today := e.Today(now)
	startDate := e.Today(activity.StartAt)
	for _, spec := range []struct {
		daysBefore int
		message    string
	}{
		{3, "An activity you bookmarked starts in 3 days.\n"},
		{1, "An activity you bookmarked starts in 1 day.\n"},
	} {
		trigger := startDate.AddDays(-spec.daysBefore)
		if today.After(trigger) {
			continue
		}
		if err := e.upsert(ctx, &models.Obligation{
			RecipientID: userID,
			Kind:        models.KindSavedReminder,
			ActivityID:  activity.ID,
			TriggerDate: trigger,
			Title:       activity.Title,
			Message:     spec.message + e.capacityStatusText(activity, count),
			LinkURL:     activityLink(activity.ID),
		}, now); err != nil {
			return err
		}
	}
	return nil
}

// OnPublished fans FOLLOWER_NEW_POST out to the organizer's followers and
// materializes the organizer's OWNER_STATUS_REMINDER (start - 2).
func (e *Engine) OnPublished(ctx context.Context, activity *activitymodels.Activity, now time.Time) error {
	followers, err := e.followers.ListFollowers(ctx, activity.OrganizerID)
	if err != nil {
		return fmt.Errorf("list followers: %w", err)
	}
	e.fanOut(ctx, followers, activity.OrganizerID, func(recipient id.UserID) *models.Obligation {
		return &models.Obligation{
			RecipientID: recipient,
			Kind:        models.KindFollowerNewPost,
			ActivityID:  activity.ID,
			TriggerDate: e.Today(now),
			Title:       activity.Title,
			Message:     "An organizer you follow published a new activity.",
			LinkURL:     activityLink(activity.ID),
		}
	}, now)

	return e.ensureOwnerStatusReminder(ctx, activity, now)
}

// OnActivityEdited compares the two snapshots; if the edit is significant
// it raises POST_UPDATED to every ACTIVE registrant and bookmarker
// (excluding the organizer), and when the start instant moved it deletes
// all future-dated reminder obligations for the activity and recomputes
// them from the new start. Returns whether the edit was significant.
func (e *Engine) OnActivityEdited(ctx context.Context, old, new *activitymodels.Activity, now time.Time) (bool, error) {
	changed := activitymodels.DiffSignificantFields(old, new)
	if len(changed) == 0 {
		return false, nil
	}

	recipients, err := e.updateAudience(ctx, new.ID)
	if err != nil {
		return false, err
	}
	message := "The organizer edited this activity: " + describeChanges(changed, old, new, e.loc) +
		"\nPlease review the details again."
	e.fanOut(ctx, recipients, new.OrganizerID, func(recipient id.UserID) *models.Obligation {
		return &models.Obligation{
			RecipientID: recipient,
			Kind:        models.KindPostUpdated,
			ActivityID:  new.ID,
			TriggerDate: e.Today(now),
			Title:       new.Title,
			Message:     message,
			LinkURL:     activityLink(new.ID),
		}
	}, now)

	if activitymodels.StartChanged(changed) {
		if err := e.Reschedule(ctx, new, now); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Reschedule deletes every future-dated reminder obligation for the
// activity and rematerializes the set from the current start time. Past
// (already due) obligations stay untouched.
func (e *Engine) Reschedule(ctx context.Context, activity *activitymodels.Activity, now time.Time) error {
	today := e.Today(now)
	if err := e.obligations.DeleteFutureByActivity(ctx, activity.ID, reminderKinds, today); err != nil {
		return fmt.Errorf("delete future reminders: %w", err)
	}
	if !activity.Scheduled() {
		return nil
	}

	registrants, err := e.registrants.ListActiveUsers(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("list active registrants: %w", err)
	}
	for _, userID := range registrants {
		if err := e.OnRegistered(ctx, activity, userID, now); err != nil {
			e.warn(ctx, "reschedule register reminder failed", userID, err)
		}
	}

	bookmarkers, err := e.bookmarks.ListBookmarkers(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("list bookmarkers: %w", err)
	}
	for _, userID := range bookmarkers {
		if err := e.OnBookmarked(ctx, activity, userID, now); err != nil {
			e.warn(ctx, "reschedule saved reminder failed", userID, err)
		}
	}

	return e.ensureOwnerStatusReminder(ctx, activity, now)
}

// OnHidden raises POST_HIDDEN to every ACTIVE registrant and the
// organizer.
func (e *Engine) OnHidden(ctx context.Context, activity *activitymodels.Activity, now time.Time) error {
	registrants, err := e.registrants.ListActiveUsers(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("list active registrants: %w", err)
	}
	recipients := append(registrants, activity.OrganizerID)
	e.fanOut(ctx, recipients, id.UserID{}, func(recipient id.UserID) *models.Obligation {
		message := "An activity you registered for was hidden by a moderator."
		if recipient == activity.OrganizerID {
			message = "Your activity was hidden by a moderator."
		}
		return &models.Obligation{
			RecipientID: recipient,
			Kind:        models.KindPostHidden,
			ActivityID:  activity.ID,
			TriggerDate: e.Today(now),
			Title:       activity.Title,
			Message:     message,
			LinkURL:     activityLink(activity.ID),
		}
	}, now)
	return nil
}

// OnDeleted raises POST_DELETED to every ACTIVE registrant and the
// organizer.
func (e *Engine) OnDeleted(ctx context.Context, activity *activitymodels.Activity, now time.Time) error {
	registrants, err := e.registrants.ListActiveUsers(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("list active registrants: %w", err)
	}
	recipients := append(registrants, activity.OrganizerID)
	e.fanOut(ctx, recipients, id.UserID{}, func(recipient id.UserID) *models.Obligation {
		message := "An activity you registered for was removed by a moderator."
		if recipient == activity.OrganizerID {
			message = "Your activity was removed by a moderator."
		}
		return &models.Obligation{
			RecipientID: recipient,
			Kind:        models.KindPostDeleted,
			ActivityID:  activity.ID,
			TriggerDate: e.Today(now),
			Title:       activity.Title,
			Message:     message,
			LinkURL:     activityLink(activity.ID),
		}
	}, now)
	return nil
}

// OnChatMessage delivers CHAT_MESSAGE to every room member except the
// sender. Explicitly exempt from date-based dedup: every occurrence lands.
func (e *Engine) OnChatMessage(ctx context.Context, activityID id.ActivityID, senderID id.UserID, preview string, now time.Time) error {
	members, err := e.members.ListMembers(ctx, activityID)
	if err != nil {
		return fmt.Errorf("list room members: %w", err)
	}
	e.fanOut(ctx, members, senderID, func(recipient id.UserID) *models.Obligation {
		return &models.Obligation{
			RecipientID: recipient,
			Kind:        models.KindChatMessage,
			ActivityID:  activityID,
			Title:       "New chat message",
			Message:     preview,
			LinkURL:     activityLink(activityID) + "/chat",
		}
	}, now)
	return nil
}

// OnCancelFinalized notifies the organizer that a registrant's
// cancellation became final, and drops the registrant's not-yet-due
// reminders for the activity.
func (e *Engine) OnCancelFinalized(ctx context.Context, activity *activitymodels.Activity, userID id.UserID, reason string, now time.Time) error {
	today := e.Today(now)
	if err := e.obligations.DeleteFutureForRecipient(ctx, userID, activity.ID,
		[]models.Kind{models.KindRegisterReminder}, today); err != nil {
		e.warn(ctx, "drop future register reminders failed", userID, err)
	}
	return e.upsert(ctx, &models.Obligation{
		RecipientID: activity.OrganizerID,
		Kind:        models.KindSystem,
		ActivityID:  activity.ID,
		TriggerDate: today,
		Title:       activity.Title,
		Message:     "A registrant canceled their registration (" + reason + ").",
		LinkURL:     activityLink(activity.ID),
	}, now)
}

// EnsureReminders lazily synthesizes the recipient's date-based reminders
// before a read, so a read with no prior write still observes them:
// REGISTER_REMINDER for ACTIVE registrations, SAVED_REMINDER for
// bookmarks, OWNER_STATUS_REMINDER for owned activities.
func (e *Engine) EnsureReminders(ctx context.Context, recipientID id.UserID, now time.Time) error {
	activeIDs, err := e.registrants.ListActiveActivities(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("list active registrations: %w", err)
	}
	active, err := e.activities.FindByIDs(ctx, activeIDs)
	if err != nil {
		return fmt.Errorf("load registered activities: %w", err)
	}
	for _, activity := range active {
		if err := e.OnRegistered(ctx, activity, recipientID, now); err != nil {
			e.warn(ctx, "ensure register reminder failed", recipientID, err)
		}
	}

	bookmarkedIDs, err := e.bookmarks.ListBookmarkedActivities(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("list bookmarks: %w", err)
	}
	bookmarked, err := e.activities.FindByIDs(ctx, bookmarkedIDs)
	if err != nil {
		return fmt.Errorf("load bookmarked activities: %w", err)
	}
	for _, activity := range bookmarked {
		if err := e.OnBookmarked(ctx, activity, recipientID, now); err != nil {
			e.warn(ctx, "ensure saved reminder failed", recipientID, err)
		}
	}

	owned, err := e.activities.ListByOrganizer(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("list owned activities: %w", err)
	}
	for _, activity := range owned {
		if err := e.ensureOwnerStatusReminder(ctx, activity, now); err != nil {
			e.warn(ctx, "ensure owner reminder failed", recipientID, err)
		}
	}
	return nil
}

// ensureOwnerStatusReminder materializes OWNER_STATUS_REMINDER
// (trigger start - 2) for the organizer.
func (e *Engine) ensureOwnerStatusReminder(ctx context.Context, activity *activitymodels.Activity, now time.Time) error {
	if !activity.Visible() || !activity.Scheduled() {
		return nil
	}
	trigger := e.Today(activity.StartAt).AddDays(-2)
	if e.Today(now).After(trigger) {
		return nil
	}
	count, err := e.activeCount(ctx, activity.ID)
	if err != nil {
		return err
	}
	return e.upsert(ctx, &models.Obligation{
		RecipientID: activity.OrganizerID,
		Kind:        models.KindOwnerStatusReminder,
		ActivityID:  activity.ID,
		TriggerDate: trigger,
		Title:       activity.Title,
		Message:     "Your activity starts in 2 days.\nCurrent status: " + e.capacityStatusText(activity, count),
		LinkURL:     activityLink(activity.ID),
	}, now)
}

// updateAudience is ACTIVE registrants plus bookmarkers, deduplicated.
func (e *Engine) updateAudience(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error) {
	registrants, err := e.registrants.ListActiveUsers(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("list active registrants: %w", err)
	}
	bookmarkers, err := e.bookmarks.ListBookmarkers(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarkers: %w", err)
	}

	seen := make(map[id.UserID]struct{}, len(registrants)+len(bookmarkers))
	var out []id.UserID
	for _, userID := range append(registrants, bookmarkers...) {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		out = append(out, userID)
	}
	return out, nil
}

// fanOut upserts one obligation per recipient with bounded parallelism.
/// Each recipient is independent: a failure for one is logged and never
// blocks the others.
func (e *Engine) fanOut(ctx context.Context, recipients []id.UserID, exclude id.UserID, build func(id.UserID) *models.Obligation, now time.Time) {
	var g errgroup.Group
	g.SetLimit(fanOutLimit)

	for _, recipient := range recipients {
		if recipient == exclude || recipient.IsNil() {
			continue
		}
		recipient := recipient
		g.Go(func() error {
			if err := e.upsert(ctx, build(recipient), now); err != nil {
				e.warn(ctx, "obligation fan-out failed for recipient", recipient, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// upsert commits one obligation, stamping identity and creation time.
func (e *Engine) upsert(ctx context.Context, o *models.Obligation, now time.Time) error {
	if o.ID.IsNil() {
		o.ID = id.NewObligationID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	created, err := e.obligations.Upsert(ctx, o)
	if err != nil {
		return err
	}
	if e.metrics != nil {
		if created {
			e.metrics.ObligationsUpserted.WithLabelValues(string(o.Kind)).Inc()
		} else {
			e.metrics.ObligationsDeduped.WithLabelValues(string(o.Kind)).Inc()
		}
	}
	return nil
}

func (e *Engine) activeCount(ctx context.Context, activityID id.ActivityID) (int, error) {
	count, err := e.registrants.CountActive(ctx, activityID)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// capacityStatusText renders the capacity line embedded in reminders.
func (e *Engine) capacityStatusText(activity *activitymodels.Activity, activeCount int) string {
	if activity.Unlimited() {
		return "This activity has no capacity limit."
	}
	remaining := activity.Slots - activeCount
	if remaining <= 0 {
		return fmt.Sprintf("Currently full (%d/%d registered).", activeCount, activity.Slots)
	}
	return fmt.Sprintf("%d/%d registered, %d left.", activeCount, activity.Slots, remaining)
}

func (e *Engine) warn(ctx context.Context, msg string, userID id.UserID, err error) {
	e.logger.WarnContext(ctx, msg, "user_id", userID.String(), "error", err.Error())
}

func activityLink(activityID id.ActivityID) string {
	return "/activities/" + activityID.String()
}

// describeChanges renders a human-readable change list, spelling out the
// old and new start when the schedule moved.
func describeChanges(changed []activitymodels.ChangedField, old, new *activitymodels.Activity, loc *time.Location) string {
	out := ""
	for i, field := range changed {
		if i > 0 {
			out += ", "
		}
		if field == activitymodels.FieldStartAt {
			out += fmt.Sprintf("start time (was %s, now %s)",
				formatStart(old.StartAt, loc), formatStart(new.StartAt, loc))
			continue
		}
		out += string(field)
	}
	return out
}

func formatStart(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "unscheduled"
	}
	return t.In(loc).Format("02/01/2006 15:04")
}
