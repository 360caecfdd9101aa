package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"volunteerhub/internal/notification/models"
	id "volunteerhub/pkg/domain"
	"volunteerhub/pkg/platform/sentinel"
)

// PostgresStore persists obligations in the obligations table. The unique
// index uniq_obligation_dedup (recipient_id, kind, activity_id,
// trigger_date, NULLS NOT DISTINCT) WHERE kind <> 'CHAT_MESSAGE' enforces
// the dedup invariant structurally; ON CONFLICT DO NOTHING makes concurrent
// duplicate derivations collapse without resetting read state.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, o *models.Obligation) (bool, error) {
	query := `
		INSERT INTO obligations
			(id, recipient_id, kind, activity_id, trigger_date, title, message, link_url, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)`
	if o.Kind.Deduplicated() {
		query += `
		ON CONFLICT (recipient_id, kind, activity_id, trigger_date)
			WHERE kind <> 'CHAT_MESSAGE'
		DO NOTHING`
	}

	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(o.ID), uuid.UUID(o.RecipientID), string(o.Kind),
		nullUUID(uuid.UUID(o.ActivityID)), nullDate(o.TriggerDate),
		o.Title, o.Message, o.LinkURL, o.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert obligation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert obligation rows: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListDue(ctx context.Context, recipientID id.UserID, today models.Date, limit int) ([]*models.Obligation, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, kind, activity_id, trigger_date, title, message, link_url, read, created_at
		FROM obligations
		WHERE recipient_id = $1 AND (trigger_date IS NULL OR trigger_date <= $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		uuid.UUID(recipientID), string(today), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due obligations: %w", err)
	}
	defer rows.Close()

	var out []*models.Obligation
	for rows.Next() {
		var (
			o           models.Obligation
			obligation  uuid.UUID
			recipient   uuid.UUID
			kind        string
			activity    sql.NullString
			triggerDate sql.NullTime
		)
		if err := rows.Scan(&obligation, &recipient, &kind, &activity, &triggerDate,
			&o.Title, &o.Message, &o.LinkURL, &o.Read, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		o.ID = id.ObligationID(obligation)
		o.RecipientID = id.UserID(recipient)
		o.Kind = models.Kind(kind)
		if activity.Valid {
			if raw, err := uuid.Parse(activity.String); err == nil {
				o.ActivityID = id.ActivityID(raw)
			}
		}
		if triggerDate.Valid {
			o.TriggerDate = models.Date(triggerDate.Time.Format("2006-01-02"))
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountUnreadDue(ctx context.Context, recipientID id.UserID, today models.Date) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM obligations
		WHERE recipient_id = $1 AND read = false
		  AND (trigger_date IS NULL OR trigger_date <= $2)`,
		uuid.UUID(recipientID), string(today),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread obligations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, obligationID id.ObligationID, recipientID id.UserID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE obligations SET read = true WHERE id = $1 AND recipient_id = $2`,
		uuid.UUID(obligationID), uuid.UUID(recipientID),
	)
	if err != nil {
		return fmt.Errorf("mark obligation read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteFutureByActivity(ctx context.Context, activityID id.ActivityID, kinds []models.Kind, today models.Date) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM obligations
		WHERE activity_id = $1 AND kind = ANY($2) AND trigger_date > $3`,
		uuid.UUID(activityID), pq.Array(kindStrings(kinds)), string(today),
	)
	if err != nil {
		return fmt.Errorf("delete future obligations: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFutureForRecipient(ctx context.Context, recipientID id.UserID, activityID id.ActivityID, kinds []models.Kind, today models.Date) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM obligations
		WHERE recipient_id = $1 AND activity_id = $2 AND kind = ANY($3) AND trigger_date > $4`,
		uuid.UUID(recipientID), uuid.UUID(activityID), pq.Array(kindStrings(kinds)), string(today),
	)
	if err != nil {
		return fmt.Errorf("delete future obligations for recipient: %w", err)
	}
	return nil
}

func kindStrings(kinds []models.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func nullUUID(u uuid.UUID) sql.NullString {
	if u == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: u.String(), Valid: true}
}

func nullDate(d models.Date) sql.NullString {
	if d == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(d), Valid: true}
}
