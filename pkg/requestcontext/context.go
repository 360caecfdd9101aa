// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free
// of net/http lets domain code import only what it needs.
//
// The request time is the engine's clock: every deadline comparison in the
// registration lifecycle goes through Now(ctx), so tests pin the instant
// with WithTime and the middleware stamps each request exactly once.
package requestcontext

import (
	"context"
	"time"

	id "volunteerhub/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	userIDKey      struct{}
	moderatorKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyModerator   = moderatorKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// UserID retrieves the authenticated user ID from the context.
// Returns the zero value (nil UUID) if not set.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// Moderator reports whether the caller holds the moderator role.
func Moderator(ctx context.Context) bool {
	if m, ok := ctx.Value(ContextKeyModerator).(bool); ok {
		return m
	}
	return false
}

// WithModerator marks the context as belonging to a moderator.
func WithModerator(ctx context.Context, moderator bool) context.Context {
	return context.WithValue(ctx, ContextKeyModerator, moderator)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (sweeper, CLI, tests that
// don't care about the instant).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific instant into a context. Used by the request
// time middleware, the sweeper (one instant per batch), and tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
