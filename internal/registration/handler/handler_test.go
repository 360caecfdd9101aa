package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitymodels "volunteerhub/internal/activity/models"
	activitystore "volunteerhub/internal/activity/store"
	"volunteerhub/internal/registration/service"
	registrationstore "volunteerhub/internal/registration/store"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/testutil"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type env struct {
	router        chi.Router
	activities    *activitystore.InMemoryStore
	registrations *registrationstore.InMemoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	activities := activitystore.NewInMemoryStore()
	registrations := registrationstore.NewInMemoryStore()

	svc, err := service.New(registrations, activities, nil, nil, service.Config{
		UndoWindow:   5 * time.Minute,
		Cooldown:     time.Hour,
		CancelCutoff: 24 * time.Hour,
		Timezone:     time.UTC,
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	New(svc, slog.Default()).Register(router)
	return &env{router: router, activities: activities, registrations: registrations}
}

func (e *env) addActivity(t *testing.T, slots int) *activitymodels.Activity {
	t.Helper()
	activity := &activitymodels.Activity{
		ID:                     id.NewActivityID(),
		OrganizerID:            id.NewUserID(),
		Title:                  "Blood donation",
		Slots:                  slots,
		StartAt:                baseTime.Add(72 * time.Hour),
		AcceptingRegistrations: true,
		Approval:               activitymodels.ApprovalApproved,
	}
	require.NoError(t, e.activities.Create(context.Background(), activity))
	return activity
}

func TestRegisterEndpoint(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 3)
	userID := id.NewUserID()

	req := testutil.NewJSONRequest(t, http.MethodPost, "/activities/"+activity.ID.String()+"/register", nil)
	rr := testutil.DoRequest(e.router, testutil.AsUser(req, userID, baseTime))

	require.Equal(t, http.StatusCreated, rr.Code)
	body := testutil.UnmarshalResponse[map[string]any](t, rr)
	registration := (*body)["registration"].(map[string]any)
	assert.Equal(t, "ACTIVE", registration["status"])
	assert.Equal(t, float64(1), (*body)["active_count"])
}

func TestRegisterStoresSubmittedForm(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 3)
	userID := id.NewUserID()
	form := map[string]any{"name": "Ada", "phone": "089-000-0000", "consent": true}

	req := testutil.NewJSONRequest(t, http.MethodPost, "/activities/"+activity.ID.String()+"/register", form)
	rr := testutil.DoRequest(e.router, testutil.AsUser(req, userID, baseTime))
	require.Equal(t, http.StatusCreated, rr.Code)

	stored, err := e.registrations.FindByUserAndActivity(context.Background(), userID, activity.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada","phone":"089-000-0000","consent":true}`, string(stored.Snapshot))
}

func TestRegisterRejectsMalformedForm(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 3)

	req := httptest.NewRequest(http.MethodPost, "/activities/"+activity.ID.String()+"/register", strings.NewReader("{not json"))
	rr := testutil.DoRequest(e.router, testutil.AsUser(req, id.NewUserID(), baseTime))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	testutil.AssertErrorCode(t, rr, "bad_request")
}

func TestRegisterRequiresAuth(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 3)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/activities/"+activity.ID.String()+"/register", nil)
	rr := testutil.DoRequest(e.router, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	testutil.AssertErrorCode(t, rr, "unauthorized")
}

func TestRegisterFullReturnsStructuredDenial(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 1)
	path := "/activities/" + activity.ID.String() + "/register"

	first := testutil.NewJSONRequest(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusCreated, testutil.DoRequest(e.router, testutil.AsUser(first, id.NewUserID(), baseTime)).Code)

	// Reaching capacity auto-closed the activity.
	second := testutil.NewJSONRequest(t, http.MethodPost, path, nil)
	rr := testutil.DoRequest(e.router, testutil.AsUser(second, id.NewUserID(), baseTime))

	require.Equal(t, http.StatusConflict, rr.Code)
	testutil.AssertErrorCode(t, rr, "registration_denied")
	body := testutil.UnmarshalResponse[map[string]any](t, rr)
	details := (*body)["details"].(map[string]any)
	assert.Equal(t, "activity_closed", details["reason"])
}

func TestCancelValidatesReason(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 3)
	userID := id.NewUserID()
	base := "/activities/" + activity.ID.String()

	register := testutil.NewJSONRequest(t, http.MethodPost, base+"/register", nil)
	require.Equal(t, http.StatusCreated, testutil.DoRequest(e.router, testutil.AsUser(register, userID, baseTime)).Code)

	cancel := testutil.NewJSONRequest(t, http.MethodPost, base+"/cancel", map[string]string{"reason": "OTHER"})
	rr := testutil.DoRequest(e.router, testutil.AsUser(cancel, userID, baseTime))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := testutil.UnmarshalResponse[map[string]any](t, rr)
	details := (*body)["details"].(map[string]any)
	assert.Equal(t, "missing_other_text", details["reason"])
}

func TestCancelUndoRoundTrip(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 3)
	userID := id.NewUserID()
	base := "/activities/" + activity.ID.String()

	register := testutil.NewJSONRequest(t, http.MethodPost, base+"/register", nil)
	require.Equal(t, http.StatusCreated, testutil.DoRequest(e.router, testutil.AsUser(register, userID, baseTime)).Code)

	cancel := testutil.NewJSONRequest(t, http.MethodPost, base+"/cancel", map[string]string{"reason": "HEALTH"})
	rr := testutil.DoRequest(e.router, testutil.AsUser(cancel, userID, baseTime))
	require.Equal(t, http.StatusOK, rr.Code)

	// Poll shows the countdown.
	poll := testutil.NewJSONRequest(t, http.MethodGet, base+"/registration", nil)
	rr = testutil.DoRequest(e.router, testutil.AsUser(poll, userID, baseTime.Add(time.Minute)))
	require.Equal(t, http.StatusOK, rr.Code)
	body := testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, float64(4*60), (*body)["undo_remaining_seconds"])

	undo := testutil.NewJSONRequest(t, http.MethodPost, base+"/cancel/undo", nil)
	rr = testutil.DoRequest(e.router, testutil.AsUser(undo, userID, baseTime.Add(2*time.Minute)))
	require.Equal(t, http.StatusOK, rr.Code)
	result := testutil.UnmarshalResponse[map[string]any](t, rr)
	registration := (*result)["registration"].(map[string]any)
	assert.Equal(t, "ACTIVE", registration["status"])
}

func TestPollFinalizesExpiredPending(t *testing.T) {
	e := newEnv(t)
	activity := e.addActivity(t, 3)
	userID := id.NewUserID()
	base := "/activities/" + activity.ID.String()

	register := testutil.NewJSONRequest(t, http.MethodPost, base+"/register", nil)
	require.Equal(t, http.StatusCreated, testutil.DoRequest(e.router, testutil.AsUser(register, userID, baseTime)).Code)
	cancel := testutil.NewJSONRequest(t, http.MethodPost, base+"/cancel", map[string]string{"reason": "NOT_AVAILABLE"})
	require.Equal(t, http.StatusOK, testutil.DoRequest(e.router, testutil.AsUser(cancel, userID, baseTime)).Code)

	poll := testutil.NewJSONRequest(t, http.MethodGet, base+"/registration", nil)
	rr := testutil.DoRequest(e.router, testutil.AsUser(poll, userID, baseTime.Add(time.Hour)))
	require.Equal(t, http.StatusOK, rr.Code)

	body := testutil.UnmarshalResponse[map[string]any](t, rr)
	registration := (*body)["registration"].(map[string]any)
	assert.Equal(t, "CANCELED", registration["status"])
	assert.NotEmpty(t, registration["cooldown_until"])
	assert.Nil(t, (*body)["undo_remaining_seconds"])
}
