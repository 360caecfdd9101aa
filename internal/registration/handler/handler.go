// Package handler exposes the registration lifecycle over HTTP.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"volunteerhub/internal/registration/models"
	"volunteerhub/internal/registration/service"
	id "volunteerhub/pkg/domain"
	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/platform/httputil"
	"volunteerhub/pkg/requestcontext"
)

// Service defines the lifecycle operations the handler depends on.
type Service interface {
	Register(ctx context.Context, userID id.UserID, activityID id.ActivityID, snapshot json.RawMessage) (*service.Result, error)
	BeginCancel(ctx context.Context, userID id.UserID, activityID id.ActivityID, reason models.CancelReason, reasonText string) (*service.Result, error)
	UndoCancel(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*service.Result, error)
	Status(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*models.Registration, error)
}

// Handler wires registration endpoints to the lifecycle service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/activities/{activityID}/register", h.HandleRegister)
	r.Post("/activities/{activityID}/cancel", h.HandleCancel)
	r.Post("/activities/{activityID}/cancel/undo", h.HandleUndoCancel)
	r.Get("/activities/{activityID}/registration", h.HandleStatus)
}

// registrationResponse is the wire shape for one registration.
type registrationResponse struct {
	ID              string `json:"id"`
	ActivityID      string `json:"activity_id"`
	Status          string `json:"status"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CancelUndoUntil string `json:"cancel_undo_until,omitempty"`
	CooldownUntil   string `json:"cooldown_until,omitempty"`
}

type resultResponse struct {
	Registration registrationResponse `json:"registration"`
	ActiveCount  int                  `json:"active_count"`
	IsFull       bool                 `json:"is_full"`
	SameDayWith  []string             `json:"same_day_with,omitempty"`
	Reactivated  bool                 `json:"reactivated,omitempty"`
}

// HandleRegister handles POST /activities/{activityID}/register. The
// request body is the applicant's registration form (contact details,
// medical flags, consents), stored opaquely on the registration. An empty
// body registers without a payload.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, activityID, ok := h.requireUserAndActivity(w, r)
	if !ok {
		return
	}
	snapshot, ok := h.readSnapshot(w, r)
	if !ok {
		return
	}

	result, err := h.service.Register(ctx, userID, activityID, snapshot)
	if err != nil {
		h.writeLifecycleError(w, ctx, "register", userID, activityID, err)
		return
	}

	h.logger.InfoContext(ctx, "registration accepted",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"activity_id", activityID,
		"reactivated", result.Reactivated,
		"active_count", result.ActiveCount,
	)
	status := http.StatusCreated
	if result.Reactivated {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, fromResult(result))
}

// cancelRequest is the wire shape for POST .../cancel.
type cancelRequest struct {
	Reason     string `json:"reason"`
	ReasonText string `json:"reason_text"`
}

// HandleCancel handles POST /activities/{activityID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, activityID, ok := h.requireUserAndActivity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[cancelRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.service.BeginCancel(ctx, userID, activityID, models.CancelReason(req.Reason), req.ReasonText)
	if err != nil {
		h.writeLifecycleError(w, ctx, "cancel", userID, activityID, err)
		return
	}

	h.logger.InfoContext(ctx, "cancellation started",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"activity_id", activityID,
		"undo_until", result.Registration.CancelUndoUntil,
	)
	httputil.WriteJSON(w, http.StatusOK, fromResult(result))
}

// HandleUndoCancel handles POST /activities/{activityID}/cancel/undo.
func (h *Handler) HandleUndoCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, activityID, ok := h.requireUserAndActivity(w, r)
	if !ok {
		return
	}

	result, err := h.service.UndoCancel(ctx, userID, activityID)
	if err != nil {
		h.writeLifecycleError(w, ctx, "undo", userID, activityID, err)
		return
	}

	h.logger.InfoContext(ctx, "cancellation undone",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"activity_id", activityID,
	)
	httputil.WriteJSON(w, http.StatusOK, fromResult(result))
}

// HandleStatus handles GET /activities/{activityID}/registration. Clients
// poll this for the undo countdown; a lapsed window finalizes before the
// response is built.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, activityID, ok := h.requireUserAndActivity(w, r)
	if !ok {
		return
	}

	registration, err := h.service.Status(ctx, userID, activityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := fromRegistration(registration)
	out := struct {
		Registration  registrationResponse `json:"registration"`
		UndoRemaining int                  `json:"undo_remaining_seconds,omitempty"`
	}{Registration: resp}
	if registration.Status == models.StatusCancelPending && registration.CancelUndoUntil != nil {
		if remaining := registration.CancelUndoUntil.Sub(requestcontext.Now(ctx)); remaining > 0 {
			out.UndoRemaining = int(remaining / time.Second)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// denialDetails is the machine-readable payload on lifecycle denials.
type denialDetails struct {
	Reason           string `json:"reason"`
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
	ConflictWith     string `json:"conflict_with,omitempty"`
}

func (h *Handler) writeLifecycleError(w http.ResponseWriter, ctx context.Context, op string, userID id.UserID, activityID id.ActivityID, err error) {
	var denial *models.Denial
	if errors.As(err, &denial) {
		details := denialDetails{Reason: string(denial.Reason)}
		if denial.Remaining > 0 {
			details.RemainingSeconds = int((denial.Remaining + time.Second - 1) / time.Second)
		}
		if !denial.ConflictWith.IsNil() {
			details.ConflictWith = denial.ConflictWith.String()
		}
		httputil.WriteErrorWithDetails(w, denialStatus(denial.Reason), "registration_denied", denial.Error(), details)
		return
	}

	h.logger.ErrorContext(ctx, "registration operation failed",
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"user_id", userID,
		"activity_id", activityID,
		"error", err,
	)
	httputil.WriteError(w, err)
}

func denialStatus(reason models.DenyReason) int {
	switch reason {
	case models.DenyInvalidReason, models.DenyMissingOtherText:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

// readSnapshot reads the applicant payload from the request body. The
// payload is opaque: anything that parses as JSON is accepted verbatim.
func (h *Handler) readSnapshot(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
		return nil, false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, true
	}
	if !json.Valid(trimmed) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "registration payload must be valid JSON"))
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

func (h *Handler) requireUserAndActivity(w http.ResponseWriter, r *http.Request) (id.UserID, id.ActivityID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, id.ActivityID{}, false
	}
	activityID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.UserID{}, id.ActivityID{}, false
	}
	return userID, activityID, true
}

func fromRegistration(registration *models.Registration) registrationResponse {
	out := registrationResponse{
		ID:           registration.ID.String(),
		ActivityID:   registration.ActivityID.String(),
		Status:       string(registration.Status),
		CancelReason: string(registration.CancelReason),
	}
	if registration.CancelUndoUntil != nil {
		out.CancelUndoUntil = registration.CancelUndoUntil.UTC().Format(time.RFC3339)
	}
	if registration.CooldownUntil != nil {
		out.CooldownUntil = registration.CooldownUntil.UTC().Format(time.RFC3339)
	}
	return out
}

func fromResult(result *service.Result) resultResponse {
	out := resultResponse{
		Registration: fromRegistration(result.Registration),
		ActiveCount:  result.ActiveCount,
		IsFull:       result.IsFull,
		Reactivated:  result.Reactivated,
	}
	for _, activityID := range result.SameDayWith {
		out.SameDayWith = append(out.SameDayWith, activityID.String())
	}
	return out
}
