// Package handler exposes activity lifecycle endpoints. Hide and delete
// are moderation hooks gated on the caller's moderator flag.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"volunteerhub/internal/activity/models"
	"volunteerhub/internal/activity/service"
	id "volunteerhub/pkg/domain"
	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/platform/httputil"
	"volunteerhub/pkg/requestcontext"
)

// Service defines the activity operations the handler depends on.
type Service interface {
	Create(ctx context.Context, organizerID id.UserID, input service.CreateInput) (*models.Activity, error)
	Edit(ctx context.Context, callerID id.UserID, activityID id.ActivityID, input service.EditInput) (*models.Activity, error)
	Hide(ctx context.Context, activityID id.ActivityID) (*models.Activity, error)
	Delete(ctx context.Context, activityID id.ActivityID) error
	Get(ctx context.Context, activityID id.ActivityID) (*service.View, error)
}

// Handler wires activity endpoints to the activity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts activity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/activities", h.HandleCreate)
	r.Get("/activities/{activityID}", h.HandleGet)
	r.Patch("/activities/{activityID}", h.HandleEdit)
	r.Post("/activities/{activityID}/hide", h.HandleHide)
	r.Delete("/activities/{activityID}", h.HandleDelete)
}

// createRequest is the wire shape for POST /activities.
type createRequest struct {
	Title       string `json:"title"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Slots       int    `json:"slots"`
	Fee         int    `json:"fee"`
	StartAt     string `json:"start_at"`
}

// editRequest is the wire shape for PATCH /activities/{activityID}.
// Absent fields are left unchanged.
type editRequest struct {
	Title       *string `json:"title"`
	Location    *string `json:"location"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Slots       *int    `json:"slots"`
	Fee         *int    `json:"fee"`
	StartAt     *string `json:"start_at"`
	Accepting   *bool   `json:"accepting_registrations"`
}

// activityResponse is the wire shape for one activity.
type activityResponse struct {
	ID                     string `json:"id"`
	OrganizerID            string `json:"organizer_id"`
	Title                  string `json:"title"`
	Location               string `json:"location,omitempty"`
	Description            string `json:"description,omitempty"`
	Category               string `json:"category,omitempty"`
	Slots                  int    `json:"slots"`
	Fee                    int    `json:"fee"`
	StartAt                string `json:"start_at,omitempty"`
	AcceptingRegistrations bool   `json:"accepting_registrations"`
	Hidden                 bool   `json:"hidden,omitempty"`
}

type viewResponse struct {
	activityResponse
	ActiveCount int  `json:"active_count"`
	IsFull      bool `json:"is_full"`
	// Remaining is -1 for unlimited activities.
	Remaining int `json:"remaining"`
}

// HandleCreate handles POST /activities.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	startAt, ok := parseStartAt(w, req.StartAt)
	if !ok {
		return
	}

	activity, err := h.service.Create(ctx, userID, service.CreateInput{
		Title:       req.Title,
		Location:    req.Location,
		Description: req.Description,
		Category:    req.Category,
		Slots:       req.Slots,
		Fee:         req.Fee,
		StartAt:     startAt,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "activity created",
		"request_id", requestcontext.RequestID(ctx),
		"activity_id", activity.ID,
		"organizer_id", userID,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromActivity(activity))
}

// HandleGet handles GET /activities/{activityID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	activityID, ok := h.parseActivityID(w, r)
	if !ok {
		return
	}

	view, err := h.service.Get(ctx, activityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewResponse{
		activityResponse: fromActivity(view.Activity),
		ActiveCount:      view.ActiveCount,
		IsFull:           view.IsFull,
		Remaining:        view.Remaining,
	})
}

// HandleEdit handles PATCH /activities/{activityID}.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	activityID, ok := h.parseActivityID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[editRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	input := service.EditInput{
		Title:       req.Title,
		Location:    req.Location,
		Description: req.Description,
		Category:    req.Category,
		Slots:       req.Slots,
		Fee:         req.Fee,
		Accepting:   req.Accepting,
	}
	if req.StartAt != nil {
		startAt, ok := parseStartAt(w, *req.StartAt)
		if !ok {
			return
		}
		input.StartAt = &startAt
	}

	activity, err := h.service.Edit(ctx, userID, activityID, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "activity edited",
		"request_id", requestcontext.RequestID(ctx),
		"activity_id", activity.ID,
		"user_id", userID,
	)
	httputil.WriteJSON(w, http.StatusOK, fromActivity(activity))
}

// HandleHide handles POST /activities/{activityID}/hide.
func (h *Handler) HandleHide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireModerator(w, ctx) {
		return
	}
	activityID, ok := h.parseActivityID(w, r)
	if !ok {
		return
	}

	activity, err := h.service.Hide(ctx, activityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromActivity(activity))
}

// HandleDelete handles DELETE /activities/{activityID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireModerator(w, ctx) {
		return
	}
	activityID, ok := h.parseActivityID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, activityID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) requireModerator(w http.ResponseWriter, ctx context.Context) bool {
	if !requestcontext.Moderator(ctx) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "moderator access required"))
		return false
	}
	return true
}

func (h *Handler) parseActivityID(w http.ResponseWriter, r *http.Request) (id.ActivityID, bool) {
	activityID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ActivityID{}, false
	}
	return activityID, true
}

func parseStartAt(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	startAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "start_at must be RFC 3339"))
		return time.Time{}, false
	}
	return startAt, true
}

func fromActivity(activity *models.Activity) activityResponse {
	out := activityResponse{
		ID:                     activity.ID.String(),
		OrganizerID:            activity.OrganizerID.String(),
		Title:                  activity.Title,
		Location:               activity.Location,
		Description:            activity.Description,
		Category:               activity.Category,
		Slots:                  activity.Slots,
		Fee:                    activity.Fee,
		AcceptingRegistrations: activity.AcceptingRegistrations,
		Hidden:                 activity.Hidden,
	}
	if activity.Scheduled() {
		out.StartAt = activity.StartAt.UTC().Format(time.RFC3339)
	}
	return out
}
