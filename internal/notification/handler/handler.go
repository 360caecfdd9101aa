// Package handler exposes the notification feed over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"volunteerhub/internal/notification/models"
	"volunteerhub/internal/notification/service"
	id "volunteerhub/pkg/domain"
	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/platform/httputil"
	"volunteerhub/pkg/requestcontext"
)

// Service defines the notification operations the handler depends on.
type Service interface {
	List(ctx context.Context, recipientID id.UserID, limit int) (*service.Feed, error)
	UnreadCount(ctx context.Context, recipientID id.UserID) (int, error)
	MarkRead(ctx context.Context, obligationID id.ObligationID, recipientID id.UserID) error
}

// Handler wires notification endpoints to the notification service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts notification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.HandleList)
	r.Get("/notifications/unread-count", h.HandleUnreadCount)
	r.Post("/notifications/{obligationID}/read", h.HandleMarkRead)
}

// notificationResponse is the wire shape for one obligation.
type notificationResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	ActivityID  string `json:"activity_id,omitempty"`
	TriggerDate string `json:"trigger_date,omitempty"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	LinkURL     string `json:"link_url,omitempty"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at"`
}

type feedResponse struct {
	Notifications []notificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
}

// HandleList handles GET /notifications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	feed, err := h.service.List(ctx, userID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "notification list failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	out := feedResponse{
		Notifications: make([]notificationResponse, 0, len(feed.Obligations)),
		UnreadCount:   feed.UnreadCount,
	}
	for _, o := range feed.Obligations {
		out.Notifications = append(out.Notifications, fromObligation(o))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleUnreadCount handles GET /notifications/unread-count. Cheap badge
// poll; skips the lazy reminder synthesis a full list performs.
func (h *Handler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "unread count failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

// HandleMarkRead handles POST /notifications/{obligationID}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	obligationID, err := id.ParseObligationID(chi.URLParam(r, "obligationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.MarkRead(ctx, obligationID, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

func fromObligation(o *models.Obligation) notificationResponse {
	out := notificationResponse{
		ID:          o.ID.String(),
		Kind:        string(o.Kind),
		TriggerDate: string(o.TriggerDate),
		Title:       o.Title,
		Message:     o.Message,
		LinkURL:     o.LinkURL,
		Read:        o.Read,
		CreatedAt:   o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if !o.ActivityID.IsNil() {
		out.ActivityID = o.ActivityID.String()
	}
	return out
}
