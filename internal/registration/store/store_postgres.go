package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"volunteerhub/internal/registration/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

const registrationColumns = `
	id, user_id, activity_id, status, snapshot,
	cancel_reason, cancel_reason_text, cancel_undo_until, canceled_at, cooldown_until,
	created_at, updated_at`

// PostgresStore persists registrations. The unique constraint on
// (user_id, activity_id) enforces the one-row-per-pair invariant under
// concurrent inserts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Registration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registrations
			(id, user_id, activity_id, status, snapshot,
			 cancel_reason, cancel_reason_text, cancel_undo_until, canceled_at, cooldown_until,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(r.ID), uuid.UUID(r.UserID), uuid.UUID(r.ActivityID),
		string(r.Status), snapshotValue(r.Snapshot),
		nullString(string(r.CancelReason)), nullString(r.CancelReasonText),
		nullTimePtr(r.CancelUndoUntil), nullTimePtr(r.CanceledAt), nullTimePtr(r.CooldownUntil),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Registration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registrations SET
			status = $2, snapshot = $3,
			cancel_reason = $4, cancel_reason_text = $5,
			cancel_undo_until = $6, canceled_at = $7, cooldown_until = $8,
			updated_at = $9
		WHERE id = $1`,
		uuid.UUID(r.ID), string(r.Status), snapshotValue(r.Snapshot),
		nullString(string(r.CancelReason)), nullString(r.CancelReasonText),
		nullTimePtr(r.CancelUndoUntil), nullTimePtr(r.CanceledAt), nullTimePtr(r.CooldownUntil),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`,
		uuid.UUID(registrationID),
	)
	return scanRegistration(row)
}

func (s *PostgresStore) FindByUserAndActivity(ctx context.Context, userID id.UserID, activityID id.ActivityID) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE user_id = $1 AND activity_id = $2`,
		uuid.UUID(userID), uuid.UUID(activityID),
	)
	return scanRegistration(row)
}

func (s *PostgresStore) CountActive(ctx context.Context, activityID id.ActivityID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM registrations WHERE activity_id = $1 AND status = 'ACTIVE'`,
		uuid.UUID(activityID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListActiveUsers(ctx context.Context, activityID id.ActivityID) ([]id.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM registrations WHERE activity_id = $1 AND status = 'ACTIVE'`,
		uuid.UUID(activityID),
	)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
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

func (s *PostgresStore) ListActiveActivities(ctx context.Context, userID id.UserID) ([]id.ActivityID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT activity_id FROM registrations WHERE user_id = $1 AND status = 'ACTIVE'`,
		uuid.UUID(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("list active activities: %w", err)
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

func (s *PostgresStore) ListActiveByUser(ctx context.Context, userID id.UserID) ([]*models.Registration, error) {
	return s.listByUserStatus(ctx, userID, models.StatusActive)
}

func (s *PostgresStore) ListPendingByUser(ctx context.Context, userID id.UserID) ([]*models.Registration, error) {
	return s.listByUserStatus(ctx, userID, models.StatusCancelPending)
}

func (s *PostgresStore) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*models.Registration, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE status = 'CANCEL_PENDING' AND cancel_undo_until < $1
		 ORDER BY cancel_undo_until
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired pending: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

func (s *PostgresStore) listByUserStatus(ctx context.Context, userID id.UserID, status models.Status) ([]*models.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE user_id = $1 AND status = $2
		 ORDER BY created_at`,
		uuid.UUID(userID), string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row scanner) (*models.Registration, error) {
	var (
		r              models.Registration
		registrationID uuid.UUID
		userID         uuid.UUID
		activityID     uuid.UUID
		status         string
		snapshot       []byte
		reason         sql.NullString
		reasonText     sql.NullString
		undoUntil      sql.NullTime
		canceledAt     sql.NullTime
		cooldownUntil  sql.NullTime
	)
	err := row.Scan(
		&registrationID, &userID, &activityID, &status, &snapshot,
		&reason, &reasonText, &undoUntil, &canceledAt, &cooldownUntil,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", err)
	}

	r.ID = id.RegistrationID(registrationID)
	r.UserID = id.UserID(userID)
	r.ActivityID = id.ActivityID(activityID)
	r.Status = models.Status(status)
	r.Snapshot = json.RawMessage(snapshot)
	if reason.Valid {
		r.CancelReason = models.CancelReason(reason.String)
	}
	if reasonText.Valid {
		r.CancelReasonText = reasonText.String
	}
	if undoUntil.Valid {
		t := undoUntil.Time
		r.CancelUndoUntil = &t
	}
	if canceledAt.Valid {
		t := canceledAt.Time
		r.CanceledAt = &t
	}
	if cooldownUntil.Valid {
		t := cooldownUntil.Time
		r.CooldownUntil = &t
	}
	return &r, nil
}

func collectRegistrations(rows *sql.Rows) ([]*models.Registration, error) {
	var out []*models.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func snapshotValue(snapshot json.RawMessage) []byte {
	if len(snapshot) == 0 {
		return []byte("{}")
	}
	return []byte(snapshot)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
