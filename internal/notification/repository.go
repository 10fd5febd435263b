package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openhaus/realty-api/internal/appointment"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Store is the persistence surface the emitter writes through.
type Store interface {
	InsertNotification(ctx context.Context, n *Notification) error
	EnqueueEmail(ctx context.Context, m *EmailMessage) error
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) InsertNotification(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, title, message, type, data, read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, now())
	`, n.UserID, n.Title, n.Message, n.Type, data)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgRepository) EnqueueEmail(ctx context.Context, m *EmailMessage) error {
	contextJSON, err := json.Marshal(m.Context)
	if err != nil {
		return fmt.Errorf("marshal email context: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO email_outbox (recipient, subject, template, context, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', now())
	`, m.Recipient, m.Subject, m.Template, contextJSON)
	if err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

func (r *PgRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, message, type, data, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode notification data: %w", err)
			}
		}
		result = append(result, n)
	}

	return result, rows.Err()
}

// MarkRead flips the read flag. Ownership is part of the predicate so a
// user cannot touch another user's notification.
func (r *PgRepository) MarkRead(ctx context.Context, id, userID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read = true
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Outbox drain, called by the notify worker.

func (r *PgRepository) FetchPendingEmails(ctx context.Context, limit int) ([]EmailMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient, subject, template, context, status, created_at, sent_at
		FROM email_outbox
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending emails: %w", err)
	}
	defer rows.Close()

	var result []EmailMessage
	for rows.Next() {
		var m EmailMessage
		var contextJSON []byte
		if err := rows.Scan(&m.ID, &m.Recipient, &m.Subject, &m.Template, &contextJSON, &m.Status, &m.CreatedAt, &m.SentAt); err != nil {
			return nil, err
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &m.Context); err != nil {
				return nil, fmt.Errorf("decode email context: %w", err)
			}
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

func (r *PgRepository) MarkEmailStatus(ctx context.Context, id int64, status string) error {
	var sentAt *time.Time
	if status == EmailSent {
		now := time.Now()
		sentAt = &now
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE email_outbox
		SET status = $2, sent_at = $3
		WHERE id = $1
	`, id, status, sentAt)
	if err != nil {
		return fmt.Errorf("mark email %s: %w", status, err)
	}
	return nil
}

// Event log drain, called by the notify worker's Kafka publisher.

func (r *PgRepository) FetchUnpublishedEvents(ctx context.Context, tx pgx.Tx, limit int) ([]appointment.EventLog, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, published, created_at
		FROM appointment_events
		WHERE published = false
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var result []appointment.EventLog
	for rows.Next() {
		var ev appointment.EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.Published, &ev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	return result, rows.Err()
}

func (r *PgRepository) MarkEventsPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointment_events
		SET published = true
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func (r *PgRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
