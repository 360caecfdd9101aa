package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	activitymodels "volunteerhub/internal/activity/models"
	activitystore "volunteerhub/internal/activity/store"
	"volunteerhub/internal/registration/models"
	registrationstore "volunteerhub/internal/registration/store"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/testutil"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var applicantForm = json.RawMessage(`{"name":"Ada","phone":"089-000-0000","consent":true}`)

type LifecycleSuite struct {
	suite.Suite

	activities    *activitystore.InMemoryStore
	registrations *registrationstore.InMemoryStore
	service       *Service
	notifier      *stubNotifier

	organizer id.UserID
}

type stubNotifier struct {
	mu            sync.Mutex
	registered    []id.UserID
	capacityFull  int
	cancelsByUser map[id.UserID]int
}

func (n *stubNotifier) OnRegistered(_ context.Context, _ *activitymodels.Activity, userID id.UserID, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = append(n.registered, userID)
	return nil
}

func (n *stubNotifier) OnCapacityFull(_ context.Context, _ *activitymodels.Activity, _ int, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.capacityFull++
	return nil
}

func (n *stubNotifier) OnCancelFinalized(_ context.Context, _ *activitymodels.Activity, userID id.UserID, _ string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancelsByUser == nil {
		n.cancelsByUser = make(map[id.UserID]int)
	}
	n.cancelsByUser[userID]++
	return nil
}

func (s *LifecycleSuite) SetupTest() {
	s.activities = activitystore.NewInMemoryStore()
	s.registrations = registrationstore.NewInMemoryStore()
	s.notifier = &stubNotifier{}
	s.organizer = id.NewUserID()

	svc, err := New(s.registrations, s.activities, s.notifier, nil, Config{
		UndoWindow:   5 * time.Minute,
		Cooldown:     time.Hour,
		CancelCutoff: 24 * time.Hour,
		Timezone:     time.UTC,
	})
	s.Require().NoError(err)
	s.service = svc
}

func (s *LifecycleSuite) newActivity(slots int, startAt time.Time) *activitymodels.Activity {
	activity := &activitymodels.Activity{
		ID:                     id.NewActivityID(),
		OrganizerID:            s.organizer,
		Title:                  "Beach cleanup",
		Slots:                  slots,
		StartAt:                startAt,
		AcceptingRegistrations: true,
		Approval:               activitymodels.ApprovalApproved,
		CreatedAt:              baseTime,
		UpdatedAt:              baseTime,
	}
	s.Require().NoError(s.activities.Create(context.Background(), activity))
	return activity
}

func (s *LifecycleSuite) ctxAt(userID id.UserID, at time.Time) context.Context {
	return testutil.CtxAsAt(userID, at)
}

func (s *LifecycleSuite) reopen(activityID id.ActivityID) {
	stored, err := s.activities.FindByID(context.Background(), activityID)
	s.Require().NoError(err)
	stored.AcceptingRegistrations = true
	s.Require().NoError(s.activities.Update(context.Background(), stored))
}

func (s *LifecycleSuite) TestRegisterStoresApplicantSnapshot() {
	activity := s.newActivity(3, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	result, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, applicantForm)
	s.Require().NoError(err)

	s.Equal(models.StatusActive, result.Registration.Status)
	s.Equal(1, result.ActiveCount)
	s.False(result.IsFull)
	s.False(result.Reactivated)
	s.JSONEq(string(applicantForm), string(result.Registration.Snapshot))
	s.Equal([]id.UserID{userID}, s.notifier.registered)
}

func (s *LifecycleSuite) TestRegisterDeniedWhenFull() {
	activity := s.newActivity(1, baseTime.Add(72*time.Hour))
	first := id.NewUserID()
	second := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(first, baseTime), first, activity.ID, nil)
	s.Require().NoError(err)

	_, err = s.service.Register(s.ctxAt(second, baseTime), second, activity.ID, nil)
	s.requireDenied(err, models.DenyActivityFull)
}

func (s *LifecycleSuite) TestFullCheckedBeforeOwnRecord() {
	activity := s.newActivity(1, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)

	// Filling auto-closed the activity; the organizer reopened it. A full
	// activity denies full before the caller's own record is consulted,
	// even for the registrant occupying the slot.
	s.reopen(activity.ID)
	_, err = s.service.Register(s.ctxAt(userID, baseTime.Add(time.Minute)), userID, activity.ID, nil)
	s.requireDenied(err, models.DenyActivityFull)
}

func (s *LifecycleSuite) TestLastSlotClosesRegistrations() {
	activity := s.newActivity(1, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	result, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)
	s.True(result.IsFull)

	stored, err := s.activities.FindByID(context.Background(), activity.ID)
	s.Require().NoError(err)
	s.False(stored.AcceptingRegistrations)
	s.Equal(1, s.notifier.capacityFull)
}

func (s *LifecycleSuite) TestRegisterDeniedWhenAlreadyActive() {
	activity := s.newActivity(5, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)

	_, err = s.service.Register(s.ctxAt(userID, baseTime.Add(time.Minute)), userID, activity.ID, nil)
	s.requireDenied(err, models.DenyAlreadyActive)
}

func (s *LifecycleSuite) TestRegisterDeniedWhenClosed() {
	activity := s.newActivity(5, baseTime.Add(72*time.Hour))
	activity.AcceptingRegistrations = false
	s.Require().NoError(s.activities.Update(context.Background(), activity))

	userID := id.NewUserID()
	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.requireDenied(err, models.DenyActivityClosed)
}

func (s *LifecycleSuite) TestHardConflictDenied() {
	start := baseTime.Add(72 * time.Hour)
	first := s.newActivity(5, start)
	second := s.newActivity(5, start)
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, first.ID, nil)
	s.Require().NoError(err)

	_, err = s.service.Register(s.ctxAt(userID, baseTime), userID, second.ID, nil)
	s.requireDenied(err, models.DenyHardConflict)

	var denial *models.Denial
	s.Require().ErrorAs(err, &denial)
	s.Equal(first.ID, denial.ConflictWith)
}

func (s *LifecycleSuite) TestSameDayConflictIsSoft() {
	day := baseTime.Add(72 * time.Hour)
	morning := s.newActivity(5, day)
	afternoon := s.newActivity(5, day.Add(6*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, morning.ID, nil)
	s.Require().NoError(err)

	result, err := s.service.Register(s.ctxAt(userID, baseTime), userID, afternoon.ID, nil)
	s.Require().NoError(err)
	s.Equal([]id.ActivityID{morning.ID}, result.SameDayWith)
}

func (s *LifecycleSuite) TestCancelOpensUndoWindowAndFreesSlot() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)

	cancelAt := baseTime.Add(10 * time.Minute)
	result, err := s.service.BeginCancel(s.ctxAt(userID, cancelAt), userID, activity.ID, models.ReasonHealth, "")
	s.Require().NoError(err)

	s.Equal(models.StatusCancelPending, result.Registration.Status)
	s.Require().NotNil(result.Registration.CancelUndoUntil)
	s.Equal(cancelAt.Add(5*time.Minute), *result.Registration.CancelUndoUntil)
	s.Equal(0, result.ActiveCount)
}

func (s *LifecycleSuite) TestCancelOtherRequiresText() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)

	_, err = s.service.BeginCancel(s.ctxAt(userID, baseTime), userID, activity.ID, models.ReasonOther, "")
	s.requireDenied(err, models.DenyMissingOtherText)

	_, err = s.service.BeginCancel(s.ctxAt(userID, baseTime), userID, activity.ID, "WEATHER", "")
	s.requireDenied(err, models.DenyInvalidReason)
}

func (s *LifecycleSuite) TestCancelDeniedPastCutoff() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)

	tooLate := activity.StartAt.Add(-23 * time.Hour)
	_, err = s.service.BeginCancel(s.ctxAt(userID, tooLate), userID, activity.ID, models.ReasonHealth, "")
	s.requireDenied(err, models.DenyPastCutoff)
}

func (s *LifecycleSuite) TestUndoAtExactDeadlineSucceeds() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)
	_, err = s.service.BeginCancel(s.ctxAt(userID, baseTime), userID, activity.ID, models.ReasonHealth, "")
	s.Require().NoError(err)

	// Deadline is inclusive.
	deadline := baseTime.Add(5 * time.Minute)
	result, err := s.service.UndoCancel(s.ctxAt(userID, deadline), userID, activity.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, result.Registration.Status)
	s.Nil(result.Registration.CancelUndoUntil)
}

func (s *LifecycleSuite) TestUndoAfterDeadlineFinalizes() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)
	_, err = s.service.BeginCancel(s.ctxAt(userID, baseTime), userID, activity.ID, models.ReasonHealth, "")
	s.Require().NoError(err)

	late := baseTime.Add(5*time.Minute + time.Second)
	_, err = s.service.UndoCancel(s.ctxAt(userID, late), userID, activity.ID)
	s.requireDenied(err, models.DenyUndoWindowExpired)

	stored, err := s.registrations.FindByUserAndActivity(context.Background(), userID, activity.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCanceled, stored.Status)
	s.Require().NotNil(stored.CooldownUntil)
	// Cooldown runs from the finalizing observation.
	s.Equal(late.Add(time.Hour), *stored.CooldownUntil)
	s.Equal(1, s.notifier.cancelsByUser[userID])
}

func (s *LifecycleSuite) TestUndoDeniedWhenSlotRetaken() {
	activity := s.newActivity(1, baseTime.Add(72*time.Hour))
	first := id.NewUserID()
	second := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(first, baseTime), first, activity.ID, nil)
	s.Require().NoError(err)
	_, err = s.service.BeginCancel(s.ctxAt(first, baseTime.Add(time.Minute)), first, activity.ID, models.ReasonNotAvailable, "")
	s.Require().NoError(err)

	// Auto-close cleared accepting; reopen so the freed slot can be taken.
	s.reopen(activity.ID)

	_, err = s.service.Register(s.ctxAt(second, baseTime.Add(2*time.Minute)), second, activity.ID, nil)
	s.Require().NoError(err)

	_, err = s.service.UndoCancel(s.ctxAt(first, baseTime.Add(3*time.Minute)), first, activity.ID)
	s.requireDenied(err, models.DenyActivityFull)

	pending, err := s.registrations.FindByUserAndActivity(context.Background(), first, activity.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelPending, pending.Status)
}

func (s *LifecycleSuite) TestCooldownRunsFromFinalizingObservation() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)
	_, err = s.service.BeginCancel(s.ctxAt(userID, baseTime), userID, activity.ID, models.ReasonHealth, "")
	s.Require().NoError(err)

	// First touch after the window lapsed, long after the deadline. The
	// touch itself finalizes, and the cooldown counts a full hour from it.
	lateObservation := baseTime.Add(65 * time.Minute)
	_, err = s.service.Register(s.ctxAt(userID, lateObservation), userID, activity.ID, nil)
	s.requireDenied(err, models.DenyCooldownActive)

	var denial *models.Denial
	s.Require().ErrorAs(err, &denial)
	s.Equal(time.Hour, denial.Remaining)

	stored, err := s.registrations.FindByUserAndActivity(context.Background(), userID, activity.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.CooldownUntil)
	s.Equal(lateObservation.Add(time.Hour), *stored.CooldownUntil)
}

func (s *LifecycleSuite) TestReregisterReactivatesSameRow() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	first, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, applicantForm)
	s.Require().NoError(err)
	_, err = s.service.BeginCancel(s.ctxAt(userID, baseTime), userID, activity.ID, models.ReasonHealth, "")
	s.Require().NoError(err)

	// Finalize by observation at +6m; the cooldown runs from there.
	_, err = s.service.Status(s.ctxAt(userID, baseTime.Add(6*time.Minute)), userID, activity.ID)
	s.Require().NoError(err)

	newForm := json.RawMessage(`{"name":"Ada","phone":"089-111-1111","consent":true}`)
	afterCooldown := baseTime.Add(6*time.Minute + time.Hour + time.Second)
	result, err := s.service.Register(s.ctxAt(userID, afterCooldown), userID, activity.ID, newForm)
	s.Require().NoError(err)

	s.True(result.Reactivated)
	s.Equal(first.Registration.ID, result.Registration.ID)
	s.Equal(models.StatusActive, result.Registration.Status)
	s.Nil(result.Registration.CooldownUntil)
	// Re-registration replaces the applicant payload wholesale.
	s.JSONEq(string(newForm), string(result.Registration.Snapshot))
}

func (s *LifecycleSuite) TestStatusFinalizesLazily() {
	activity := s.newActivity(2, baseTime.Add(72*time.Hour))
	userID := id.NewUserID()

	_, err := s.service.Register(s.ctxAt(userID, baseTime), userID, activity.ID, nil)
	s.Require().NoError(err)
	_, err = s.service.BeginCancel(s.ctxAt(userID, baseTime), userID, activity.ID, models.ReasonHealth, "")
	s.Require().NoError(err)

	registration, err := s.service.Status(s.ctxAt(userID, baseTime.Add(10*time.Minute)), userID, activity.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCanceled, registration.Status)
}

func (s *LifecycleSuite) TestSweepFinalizesExpiredPending() {
	activity := s.newActivity(5, time.Now().Add(72*time.Hour))
	users := []id.UserID{id.NewUserID(), id.NewUserID(), id.NewUserID()}
	registerAt := time.Now().Add(-time.Hour)

	for _, userID := range users {
		_, err := s.service.Register(s.ctxAt(userID, registerAt), userID, activity.ID, nil)
		s.Require().NoError(err)
	}
	for _, userID := range users[:2] {
		_, err := s.service.BeginCancel(s.ctxAt(userID, registerAt), userID, activity.ID, models.ReasonHealth, "")
		s.Require().NoError(err)
	}

	finalized, err := s.service.Sweep(context.Background(), 100)
	s.Require().NoError(err)
	s.Equal(2, finalized)

	count, err := s.registrations.CountActive(context.Background(), activity.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *LifecycleSuite) requireDenied(err error, reason models.DenyReason) {
	s.Require().Error(err)
	var denial *models.Denial
	s.Require().ErrorAs(err, &denial)
	s.Equal(reason, denial.Reason)
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

// Capacity holds under concurrent registration pressure: with k slots and
// n > k contenders, exactly k succeed and the rest are denied full.
func TestConcurrentRegistrationNeverOversells(t *testing.T) {
	activities := activitystore.NewInMemoryStore()
	registrations := registrationstore.NewInMemoryStore()

	svc, err := New(registrations, activities, nil, nil, Config{
		UndoWindow:   5 * time.Minute,
		Cooldown:     time.Hour,
		CancelCutoff: 24 * time.Hour,
		Timezone:     time.UTC,
	})
	require.NoError(t, err)

	const slots = 5
	const contenders = 40

	activity := &activitymodels.Activity{
		ID:                     id.NewActivityID(),
		OrganizerID:            id.NewUserID(),
		Title:                  "Tree planting",
		Slots:                  slots,
		StartAt:                baseTime.Add(72 * time.Hour),
		AcceptingRegistrations: true,
		Approval:               activitymodels.ApprovalApproved,
	}
	require.NoError(t, activities.Create(context.Background(), activity))

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := id.NewUserID()
			_, err := svc.Register(testutil.CtxAsAt(userID, baseTime), userID, activity.ID, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var denial *models.Denial
		require.ErrorAs(t, err, &denial)
		require.Contains(t, []models.DenyReason{models.DenyActivityFull, models.DenyActivityClosed}, denial.Reason)
	}
	require.Equal(t, slots, succeeded)

	count, err := registrations.CountActive(context.Background(), activity.ID)
	require.NoError(t, err)
	require.Equal(t, slots, count)
}
