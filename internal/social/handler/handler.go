// Package handler exposes follow, bookmark and chat-notify endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "volunteerhub/pkg/domain"
	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/platform/httputil"
	"volunteerhub/pkg/requestcontext"
)

// Service defines the social operations the handler depends on.
type Service interface {
	Follow(ctx context.Context, followerID, organizerID id.UserID) error
	Unfollow(ctx context.Context, followerID, organizerID id.UserID) error
	Bookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error
	Unbookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error
	NotifyChatMessage(ctx context.Context, activityID id.ActivityID, senderID id.UserID, preview string) error
}

// Handler wires social endpoints to the social service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts social endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/organizers/{organizerID}/follow", h.HandleFollow)
	r.Delete("/organizers/{organizerID}/follow", h.HandleUnfollow)
	r.Post("/activities/{activityID}/bookmark", h.HandleBookmark)
	r.Delete("/activities/{activityID}/bookmark", h.HandleUnbookmark)
	r.Post("/activities/{activityID}/chat/notify", h.HandleChatNotify)
}

// HandleFollow handles POST /organizers/{organizerID}/follow.
func (h *Handler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	h.followOp(w, r, h.service.Follow)
}

// HandleUnfollow handles DELETE /organizers/{organizerID}/follow.
func (h *Handler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	h.followOp(w, r, h.service.Unfollow)
}

func (h *Handler) followOp(w http.ResponseWriter, r *http.Request, op func(context.Context, id.UserID, id.UserID) error) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	organizerID, err := id.ParseUserID(chi.URLParam(r, "organizerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := op(ctx, userID, organizerID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBookmark handles POST /activities/{activityID}/bookmark.
func (h *Handler) HandleBookmark(w http.ResponseWriter, r *http.Request) {
	h.bookmarkOp(w, r, h.service.Bookmark)
}

// HandleUnbookmark handles DELETE /activities/{activityID}/bookmark.
func (h *Handler) HandleUnbookmark(w http.ResponseWriter, r *http.Request) {
	h.bookmarkOp(w, r, h.service.Unbookmark)
}

func (h *Handler) bookmarkOp(w http.ResponseWriter, r *http.Request, op func(context.Context, id.UserID, id.ActivityID) error) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	activityID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := op(ctx, userID, activityID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// chatNotifyRequest is the wire shape for POST .../chat/notify.
type chatNotifyRequest struct {
	Preview string `json:"preview"`
}

// HandleChatNotify handles POST /activities/{activityID}/chat/notify.
// Called by the chat transport after a message is delivered to the room.
func (h *Handler) HandleChatNotify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	activityID, err := id.ParseActivityID(chi.URLParam(r, "activityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[chatNotifyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.NotifyChatMessage(ctx, activityID, userID, req.Preview); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}
