package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already has an active appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetListingByID(ctx context.Context, id int64) (*Listing, error)

	// Conflict validator: a non-cancelled appointment for the exact
	// (listing, instant) slot.
	HasActiveAppointment(ctx context.Context, listingID int64, at time.Time) (bool, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id int64) (*AppointmentDetail, error)

	// CreateAppointment re-checks the slot and inserts within one
	// transaction; returns ErrSlotTaken on collision.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// Query/filter layer
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int64, error)

	// Statistics aggregator
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	CountByStatusSince(ctx context.Context, since time.Time) (map[Status]int64, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
