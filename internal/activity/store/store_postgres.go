package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"volunteerhub/internal/activity/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
)

// PostgresStore persists activities in the activities table
// (migrations/0001_init.sql).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const activityColumns = `id, organizer_id, title, location, description, category,
	slots, fee, start_at, accepting_registrations, approval, hidden, deleted,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, activity *models.Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.UUID(activity.ID), uuid.UUID(activity.OrganizerID),
		activity.Title, activity.Location, activity.Description, activity.Category,
		activity.Slots, activity.Fee, nullTime(activity.StartAt),
		activity.AcceptingRegistrations, string(activity.Approval),
		activity.Hidden, activity.Deleted, activity.CreatedAt, activity.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, activity *models.Activity) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE activities SET
			title = $2, location = $3, description = $4, category = $5,
			slots = $6, fee = $7, start_at = $8, accepting_registrations = $9,
			approval = $10, hidden = $11, deleted = $12, updated_at = $13
		WHERE id = $1`,
		uuid.UUID(activity.ID),
		activity.Title, activity.Location, activity.Description, activity.Category,
		activity.Slots, activity.Fee, nullTime(activity.StartAt),
		activity.AcceptingRegistrations, string(activity.Approval),
		activity.Hidden, activity.Deleted, activity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, activityID id.ActivityID) (*models.Activity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = $1`,
		uuid.UUID(activityID),
	)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find activity: %w", err)
	}
	return activity, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, activityIDs []id.ActivityID) ([]*models.Activity, error) {
	if len(activityIDs) == 0 {
		return nil, nil
	}
	raw := make([]uuid.UUID, len(activityIDs))
	for i, activityID := range activityIDs {
		raw[i] = uuid.UUID(activityID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = ANY($1)`,
		pq.Array(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("find activities: %w", err)
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (s *PostgresStore) ListByOrganizer(ctx context.Context, organizerID id.UserID) ([]*models.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE organizer_id = $1`,
		uuid.UUID(organizerID),
	)
	if err != nil {
		return nil, fmt.Errorf("list activities by organizer: %w", err)
	}
	defer rows.Close()
	return collectActivities(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(row scanner) (*models.Activity, error) {
	var (
		a          models.Activity
		activityID uuid.UUID
		organizer  uuid.UUID
		approval   string
		startAt    sql.NullTime
	)
	err := row.Scan(&activityID, &organizer, &a.Title, &a.Location, &a.Description,
		&a.Category, &a.Slots, &a.Fee, &startAt, &a.AcceptingRegistrations,
		&approval, &a.Hidden, &a.Deleted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ID = id.ActivityID(activityID)
	a.OrganizerID = id.UserID(organizer)
	a.Approval = models.ApprovalStatus(approval)
	if startAt.Valid {
		a.StartAt = startAt.Time
	}
	return &a, nil
}

func collectActivities(rows *sql.Rows) ([]*models.Activity, error) {
	var out []*models.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, activity)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
