package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "volunteerhub/pkg/domain"
)

// PostgresRelations implements the relation stores over the follows,
// bookmarks and chat_memberships tables. All inserts are idempotent via
// ON CONFLICT DO NOTHING on the natural keys.
type PostgresRelations struct {
	db *sql.DB
}

func NewPostgresRelations(db *sql.DB) *PostgresRelations {
	return &PostgresRelations{db: db}
}

func (s *PostgresRelations) Follow(ctx context.Context, followerID, organizerID id.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follows (follower_id, organizer_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		uuid.UUID(followerID), uuid.UUID(organizerID))
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

func (s *PostgresRelations) Unfollow(ctx context.Context, followerID, organizerID id.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND organizer_id = $2`,
		uuid.UUID(followerID), uuid.UUID(organizerID))
	if err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

func (s *PostgresRelations) ListFollowers(ctx context.Context, organizerID id.UserID) ([]id.UserID, error) {
	return s.listUsers(ctx,
		`SELECT follower_id FROM follows WHERE organizer_id = $1`,
		uuid.UUID(organizerID))
}

func (s *PostgresRelations) Bookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (user_id, activity_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		uuid.UUID(userID), uuid.UUID(activityID))
	if err != nil {
		return fmt.Errorf("bookmark: %w", err)
	}
	return nil
}

func (s *PostgresRelations) Unbookmark(ctx context.Context, userID id.UserID, activityID id.ActivityID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = $1 AND activity_id = $2`,
		uuid.UUID(userID), uuid.UUID(activityID))
	if err != nil {
		return fmt.Errorf("unbookmark: %w", err)
	}
	return nil
}

func (s *PostgresRelations) ListBookmarkers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error) {
	return s.listUsers(ctx,
		`SELECT user_id FROM bookmarks WHERE activity_id = $1`,
		uuid.UUID(activityID))
}

func (s *PostgresRelations) ListBookmarkedActivities(ctx context.Context, userID id.UserID) ([]id.ActivityID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT activity_id FROM bookmarks WHERE user_id = $1`,
		uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list bookmarked activities: %w", err)
	}
	defer rows.Close()

	var out []id.ActivityID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan activity id: %w", err)
		}
		out = append(out, id.ActivityID(raw))
	}
	return out, rows.Err()
}

func (s *PostgresRelations) Join(ctx context.Context, activityID id.ActivityID, userID id.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_memberships (activity_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		uuid.UUID(activityID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("join chat membership: %w", err)
	}
	return nil
}

func (s *PostgresRelations) ListMembers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error) {
	return s.listUsers(ctx,
		`SELECT user_id FROM chat_memberships WHERE activity_id = $1`,
		uuid.UUID(activityID))
}

func (s *PostgresRelations) listUsers(ctx context.Context, query string, arg any) ([]id.UserID, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []id.UserID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id.UserID(raw))
	}
	return out, rows.Err()
}
