// Package service exposes the notification read surface: listing due
// obligations, the unread badge count, and marking delivered.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"volunteerhub/internal/notification/models"
	"volunteerhub/internal/notification/rules"
	"volunteerhub/internal/notification/store"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/requestcontext"
)

const defaultPageSize = 30

// Service serves a recipient's obligation feed. Reads run the lazy
// reminder synthesis first, so a feed read never misses a reminder whose
// triggering write predates the reminder rules.
type Service struct {
	store  store.Store
	engine *rules.Engine
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(obligations store.Store, engine *rules.Engine, opts ...Option) (*Service, error) {
	if obligations == nil {
		return nil, fmt.Errorf("obligation store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("rule engine is required")
	}
	s := &Service{
		store:  obligations,
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Feed is one notification feed read.
type Feed struct {
	Obligations []*models.Obligation
	UnreadCount int
}

// List returns the recipient's due obligations, newest first, plus the
// unread count for the badge. Synthesis failures degrade the read rather
// than failing it.
func (s *Service) List(ctx context.Context, recipientID id.UserID, limit int) (*Feed, error) {
	now := requestcontext.Now(ctx)
	if limit <= 0 {
		limit = defaultPageSize
	}

	if err := s.engine.EnsureReminders(ctx, recipientID, now); err != nil {
		s.logger.WarnContext(ctx, "lazy reminder synthesis failed",
			"user_id", recipientID.String(), "error", err.Error())
	}

	today := s.engine.Today(now)
	obligations, err := s.store.ListDue(ctx, recipientID, today, limit)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	unread, err := s.store.CountUnreadDue(ctx, recipientID, today)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return &Feed{Obligations: obligations, UnreadCount: unread}, nil
}

// UnreadCount returns the recipient's unread due obligation count.
func (s *Service) UnreadCount(ctx context.Context, recipientID id.UserID) (int, error) {
	now := requestcontext.Now(ctx)
	count, err := s.store.CountUnreadDue(ctx, recipientID, s.engine.Today(now))
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the recipient's obligations read. Passes through
// sentinel.ErrNotFound when the obligation is missing or not theirs.
func (s *Service) MarkRead(ctx context.Context, obligationID id.ObligationID, recipientID id.UserID) error {
	return s.store.MarkRead(ctx, obligationID, recipientID)
}

// OnChatMessage forwards a chat message to the rule engine. Exposed on the
// service so the chat surface never touches the engine directly.
func (s *Service) OnChatMessage(ctx context.Context, activityID id.ActivityID, senderID id.UserID, preview string) error {
	return s.engine.OnChatMessage(ctx, activityID, senderID, preview, requestcontext.Now(ctx))
}
