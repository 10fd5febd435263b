package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `
	id, user_id, listing_id, scheduled_at, status,
	notes, agent_notes, internal_notes, cancellation_reason,
	cancelled_at, cancelled_by_id, completed_at, completed_by_id,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var phone *string

	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&phone,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Phone = phone
	return &u, nil
}

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing

	err := row.Scan(
		&l.ID,
		&l.Title,
		&l.Address,
		&l.Price,
		&l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	return &l, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.ListingID,
		&a.ScheduledAt,
		&a.Status,
		&a.Notes,
		&a.AgentNotes,
		&a.InternalNotes,
		&a.CancellationReason,
		&a.CancelledAt,
		&a.CancelledByID,
		&a.CompletedAt,
		&a.CompletedByID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, role, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetListingByID(ctx context.Context, id int64) (*Listing, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, address, price, created_at
		FROM listings
		WHERE id = $1
	`, id)
	return scanListing(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasActiveAppointment(ctx context.Context, listingID int64, at time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE listing_id = $1
			  AND scheduled_at = $2
			  AND status <> 'CANCELLED'
		)
	`, listingID, at).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active appointment: %w", err)
	}
	return exists, nil
}

// CreateAppointment performs the conflict check and the insert in one
// transaction so two concurrent creates for the same slot cannot both
// commit.
func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create appointment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE listing_id = $1
			  AND scheduled_at = $2
			  AND status <> 'CANCELLED'
		)
	`, a.ListingID, a.ScheduledAt).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	if exists {
		return nil, ErrSlotTaken
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (user_id, listing_id, scheduled_at, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.UserID, a.ListingID, a.ScheduledAt, a.Status, a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create appointment: %w", err)
	}

	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = $3,
		    agent_notes = $4,
		    internal_notes = $5,
		    cancellation_reason = $6,
		    cancelled_at = $7,
		    cancelled_by_id = $8,
		    completed_at = $9,
		    completed_by_id = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, a.ID, a.Status, a.Notes, a.AgentNotes, a.InternalNotes, a.CancellationReason,
		a.CancelledAt, a.CancelledByID, a.CompletedAt, a.CompletedByID)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id int64) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, appt)
}

func (r *PgRepository) hydrate(ctx context.Context, a *Appointment) (*AppointmentDetail, error) {
	detail := &AppointmentDetail{Appointment: *a}

	requester, err := r.GetUserByID(ctx, a.UserID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	detail.Requester = requester

	listing, err := r.GetListingByID(ctx, a.ListingID)
	if err != nil && !errors.Is(err, ErrListingNotFound) {
		return nil, err
	}
	detail.Listing = listing

	return detail, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int64, error) {
	conds := []string{"1=1"}
	args := []any{}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != nil {
		add("a.status = $%d", *f.Status)
	}
	if f.UserID != nil {
		add("a.user_id = $%d", *f.UserID)
	}
	if f.ListingID != nil {
		add("a.listing_id = $%d", *f.ListingID)
	}
	if f.StartDate != nil {
		add("a.scheduled_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("a.scheduled_at <= $%d", *f.EndDate)
	}

	where := strings.Join(conds, " AND ")

	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.user_id, a.listing_id, a.scheduled_at, a.status,
		       a.notes, a.agent_notes, a.internal_notes, a.cancellation_reason,
		       a.cancelled_at, a.cancelled_by_id, a.completed_at, a.completed_by_id,
		       a.created_at, a.updated_at,
		       u.id, u.first_name, u.last_name, u.email, u.phone, u.role, u.created_at,
		       l.id, l.title, l.address, l.price, l.created_at
		FROM appointments a
		JOIN users u ON u.id = a.user_id
		JOIN listings l ON l.id = a.listing_id
		WHERE %s
		ORDER BY a.scheduled_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		var u User
		var l Listing

		err := rows.Scan(
			&d.ID, &d.UserID, &d.ListingID, &d.ScheduledAt, &d.Status,
			&d.Notes, &d.AgentNotes, &d.InternalNotes, &d.CancellationReason,
			&d.CancelledAt, &d.CancelledByID, &d.CompletedAt, &d.CompletedByID,
			&d.CreatedAt, &d.UpdatedAt,
			&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.Role, &u.CreatedAt,
			&l.ID, &l.Title, &l.Address, &l.Price, &l.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}

		d.Requester = &u
		d.Listing = &l
		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM appointments
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	return collectStatusCounts(rows)
}

func (r *PgRepository) CountByStatusSince(ctx context.Context, since time.Time) (map[Status]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE created_at >= $1
		GROUP BY status
	`, since)
	if err != nil {
		return nil, fmt.Errorf("count by status since: %w", err)
	}
	defer rows.Close()

	return collectStatusCounts(rows)
}

func collectStatusCounts(rows pgx.Rows) (map[Status]int64, error) {
	counts := make(map[Status]int64)
	for rows.Next() {
		var s Status
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, published, created_at)
		VALUES ($1, $2, $3, false, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
