package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redisclient "github.com/openhaus/realty-api/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
)

// Window over which Stats reports recent activity.
const recentStatsWindow = 30 * 24 * time.Hour

var (
	ErrSlotConflict      = errors.New("an active appointment already exists for that listing and time")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrAlreadyCancelled  = errors.New("appointment is already cancelled")
	ErrInvalidStatus     = errors.New("invalid appointment status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotOwner          = errors.New("appointment belongs to another user")
)

// Notifier receives appointment lifecycle events after the state mutation
// has committed. Implementations must not fail the parent operation;
// returned errors are logged only.
type Notifier interface {
	AppointmentCreated(ctx context.Context, d *AppointmentDetail) error
	AppointmentStatusChanged(ctx context.Context, d *AppointmentDetail, previous Status) error
	AppointmentCancelled(ctx context.Context, d *AppointmentDetail, reason string, actorID int64) error
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type CreateInput struct {
	UserID      int64
	ListingID   int64
	ScheduledAt time.Time
	Notes       string
	Status      Status // optional, defaults to SCHEDULED
}

// UpdateInput is a staff partial update; nil fields are left untouched.
type UpdateInput struct {
	Status        *string
	Notes         *string
	AgentNotes    *string
	InternalNotes *string
}

// Create books a viewing slot for a requester. The conflict check and the
// insert run under a per slot lock so concurrent requests for the same
// (listing, instant) cannot both succeed.
func (s *Service) Create(ctx context.Context, in CreateInput) (*AppointmentDetail, error) {
	if in.Status == "" {
		in.Status = StatusScheduled
	}
	if _, err := ParseStatus(string(in.Status)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}

	requester, err := s.repo.GetUserByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load requester: %w", err)
	}

	listing, err := s.repo.GetListingByID(ctx, in.ListingID)
	if err != nil {
		if errors.Is(err, ErrListingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, in.ListingID, in.ScheduledAt, func(lockCtx context.Context) error {
		// Inside the critical section re-check for an active appointment
		// holding this slot.
		taken, err := s.repo.HasActiveAppointment(lockCtx, in.ListingID, in.ScheduledAt)
		if err != nil {
			return fmt.Errorf("conflict check: %w", err)
		}
		if taken {
			return ErrSlotConflict
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			UserID:      in.UserID,
			ListingID:   in.ListingID,
			ScheduledAt: in.ScheduledAt,
			Status:      in.Status,
			Notes:       in.Notes,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotConflict
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"listing_id":   in.ListingID,
			"user_id":      in.UserID,
			"scheduled_at": in.ScheduledAt,
			"status":       in.Status,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	detail := &AppointmentDetail{
		Appointment: *created,
		Requester:   requester,
		Listing:     listing,
	}

	if err := s.notifier.AppointmentCreated(ctx, detail); err != nil {
		s.logger.Error("appointment confirmation notification failed",
			"appointment_id", created.ID, "err", err)
	}

	return detail, nil
}

// Update applies a staff partial update. Only supplied fields change; a
// status change is validated against the transition table and stamps the
// cancellation or completion metadata with the acting staff identity.
func (s *Service) Update(ctx context.Context, id, actorID int64, in UpdateInput) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := appt.Status
	statusChanged := false

	if in.Status != nil {
		next, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
		}
		if next != appt.Status {
			if !appt.Status.CanTransitionTo(next) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, next)
			}
			appt.Status = next
			statusChanged = true

			now := s.now()
			switch next {
			case StatusCancelled:
				appt.CancelledAt = &now
				appt.CancelledByID = &actorID
			case StatusCompleted:
				appt.CompletedAt = &now
				appt.CompletedByID = &actorID
			case StatusScheduled, StatusConfirmed, StatusNoShow:
			}
		}
	}

	if in.Notes != nil {
		appt.Notes = *in.Notes
	}
	if in.AgentNotes != nil {
		appt.AgentNotes = *in.AgentNotes
	}
	if in.InternalNotes != nil {
		appt.InternalNotes = *in.InternalNotes
	}

	updated, err := s.repo.UpdateAppointment(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	detail, err := s.hydrate(ctx, updated)
	if err != nil {
		return nil, err
	}

	if statusChanged {
		s.logEvent(ctx, updated.ID, EventAppointmentStatusChanged, map[string]any{
			"from":     previous,
			"to":       updated.Status,
			"actor_id": actorID,
		})

		if err := s.notifier.AppointmentStatusChanged(ctx, detail, previous); err != nil {
			s.logger.Error("status change notification failed",
				"appointment_id", updated.ID, "err", err)
		}
	}

	return detail, nil
}

// Cancel is the requester- or staff-initiated cancellation. Cancelling an
// already cancelled appointment is a business error, not a fault; the
// record is left unchanged.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, actorIsStaff bool, reason string) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actorIsStaff && appt.UserID != actorID {
		return nil, ErrNotOwner
	}

	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
	}

	now := s.now()
	appt.Status = StatusCancelled
	appt.CancellationReason = reason
	appt.CancelledAt = &now
	appt.CancelledByID = &actorID

	updated, err := s.repo.UpdateAppointment(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	detail, err := s.hydrate(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"actor_id": actorID,
		"reason":   reason,
	})

	if err := s.notifier.AppointmentCancelled(ctx, detail, reason, actorID); err != nil {
		s.logger.Error("cancellation notification failed",
			"appointment_id", updated.ID, "err", err)
	}

	return detail, nil
}

// Get retrieves a fully hydrated appointment by ID.
func (s *Service) Get(ctx context.Context, id int64) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns one page of appointments matching the filter, newest
// scheduled first.
func (s *Service) List(ctx context.Context, f ListFilter) (*Page, error) {
	f.Normalize()

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	totalPages := int((total + int64(f.Limit) - 1) / int64(f.Limit))

	return &Page{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: totalPages,
	}, nil
}

// GetStats aggregates appointment counts, overall and over the trailing
// 30 days. Every status key is present even at zero.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate by status: %w", err)
	}

	recent, err := s.repo.CountByStatusSince(ctx, s.now().Add(-recentStatsWindow))
	if err != nil {
		return nil, fmt.Errorf("aggregate recent: %w", err)
	}

	stats := &Stats{
		ByStatus: make(map[Status]int64, len(Statuses)),
		Recent:   make(map[Status]int64, len(Statuses)),
	}
	for _, st := range Statuses {
		stats.ByStatus[st] = byStatus[st]
		stats.Recent[st] = recent[st]
		stats.Total += byStatus[st]
	}

	return stats, nil
}

func (s *Service) hydrate(ctx context.Context, a *Appointment) (*AppointmentDetail, error) {
	detail := &AppointmentDetail{Appointment: *a}

	requester, err := s.repo.GetUserByID(ctx, a.UserID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("load requester: %w", err)
	}
	detail.Requester = requester

	listing, err := s.repo.GetListingByID(ctx, a.ListingID)
	if err != nil && !errors.Is(err, ErrListingNotFound) {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	detail.Listing = listing

	return detail, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event payload failed", "event_type", eventType, "err", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log failed",
			"event_type", eventType, "appointment_id", appointmentID, "err", err)
	}
}
