package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openhaus/realty-api/internal/appointment"
)

const (
	TypeAppointmentConfirmation = "appointment_confirmation"
	TypeAppointmentStatus       = "appointment_status"
	TypeAppointmentCancelled    = "appointment_cancelled"

	TemplateConfirmation = "appointment_confirmation"
	TemplateStatusChange = "appointment_status_change"
	TemplateCancellation = "appointment_cancellation"
)

// Emitter turns appointment transitions into notification records and
// queued emails. It runs after the appointment mutation has committed and
// never fails the parent operation; the caller logs returned errors.
type Emitter struct {
	store  Store
	logger *slog.Logger
}

func NewEmitter(store Store, logger *slog.Logger) *Emitter {
	return &Emitter{store: store, logger: logger}
}

var _ appointment.Notifier = (*Emitter)(nil)

func (e *Emitter) AppointmentCreated(ctx context.Context, d *appointment.AppointmentDetail) error {
	title := "Viewing scheduled"
	message := fmt.Sprintf("Your viewing of %s on %s has been received.",
		listingTitle(d), formatWhen(d.ScheduledAt))

	if err := e.store.InsertNotification(ctx, &Notification{
		UserID:  d.UserID,
		Title:   title,
		Message: message,
		Type:    TypeAppointmentConfirmation,
		Data:    e.payload(d),
	}); err != nil {
		return err
	}

	return e.enqueue(ctx, d, title, TemplateConfirmation, map[string]any{
		"listing":      listingTitle(d),
		"scheduled_at": formatWhen(d.ScheduledAt),
	})
}

func (e *Emitter) AppointmentStatusChanged(ctx context.Context, d *appointment.AppointmentDetail, previous appointment.Status) error {
	title := "Appointment updated"
	message := fmt.Sprintf("Your viewing of %s is now %s.", listingTitle(d), d.Status)

	data := e.payload(d)
	data["previous_status"] = string(previous)

	if err := e.store.InsertNotification(ctx, &Notification{
		UserID:  d.UserID,
		Title:   title,
		Message: message,
		Type:    TypeAppointmentStatus,
		Data:    data,
	}); err != nil {
		return err
	}

	return e.enqueue(ctx, d, title, TemplateStatusChange, map[string]any{
		"listing":      listingTitle(d),
		"scheduled_at": formatWhen(d.ScheduledAt),
		"status":       string(d.Status),
	})
}

func (e *Emitter) AppointmentCancelled(ctx context.Context, d *appointment.AppointmentDetail, reason string, actorID int64) error {
	title := "Appointment cancelled"
	message := fmt.Sprintf("Your viewing of %s on %s was cancelled.",
		listingTitle(d), formatWhen(d.ScheduledAt))
	if reason != "" {
		message += " Reason: " + reason
	}

	data := e.payload(d)
	data["reason"] = reason
	data["cancelled_by"] = actorID

	if err := e.store.InsertNotification(ctx, &Notification{
		UserID:  d.UserID,
		Title:   title,
		Message: message,
		Type:    TypeAppointmentCancelled,
		Data:    data,
	}); err != nil {
		return err
	}

	return e.enqueue(ctx, d, title, TemplateCancellation, map[string]any{
		"listing":      listingTitle(d),
		"scheduled_at": formatWhen(d.ScheduledAt),
		"reason":       reason,
	})
}

func (e *Emitter) enqueue(ctx context.Context, d *appointment.AppointmentDetail, subject, template string, emailCtx map[string]any) error {
	if d.Requester == nil || d.Requester.Email == "" {
		e.logger.Warn("no requester email, skipping outbound mail",
			"appointment_id", d.ID, "user_id", d.UserID)
		return nil
	}

	return e.store.EnqueueEmail(ctx, &EmailMessage{
		Recipient: d.Requester.Email,
		Subject:   subject,
		Template:  template,
		Context:   emailCtx,
	})
}

func (e *Emitter) payload(d *appointment.AppointmentDetail) map[string]any {
	return map[string]any{
		"appointment_id": d.ID,
		"listing_id":     d.ListingID,
		"scheduled_at":   d.ScheduledAt,
		"status":         string(d.Status),
	}
}

func listingTitle(d *appointment.AppointmentDetail) string {
	if d.Listing != nil && d.Listing.Title != "" {
		return d.Listing.Title
	}
	return fmt.Sprintf("listing %d", d.ListingID)
}

func formatWhen(t time.Time) string {
	return t.UTC().Format("Mon, 2 Jan 2006 15:04 MST")
}
