package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openhaus/realty-api/internal/mail"
)

// Dispatcher drains the email outbox. Delivery is best effort: a failed
// send is logged and the row marked failed, nothing is retried
// automatically and nothing upstream is rolled back.
type Dispatcher struct {
	repo      *PgRepository
	sender    mail.Sender
	logger    *slog.Logger
	batchSize int
}

func NewDispatcher(repo *PgRepository, sender mail.Sender, logger *slog.Logger, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		repo:      repo,
		sender:    sender,
		logger:    logger,
		batchSize: batchSize,
	}
}

// RunOnce processes one batch of pending emails.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	pending, err := d.repo.FetchPendingEmails(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, m := range pending {
		body := renderBody(m)

		if err := d.sender.Send(m.Recipient, m.Subject, body); err != nil {
			d.logger.Error("notification delivery failed",
				"email_id", m.ID, "recipient", m.Recipient, "template", m.Template, "err", err)
			if markErr := d.repo.MarkEmailStatus(ctx, m.ID, EmailFailed); markErr != nil {
				d.logger.Error("mark email failed errored", "email_id", m.ID, "err", markErr)
			}
			continue
		}

		if err := d.repo.MarkEmailStatus(ctx, m.ID, EmailSent); err != nil {
			d.logger.Error("mark email sent errored", "email_id", m.ID, "err", err)
		}
	}

	return nil
}

func renderBody(m EmailMessage) string {
	listing, _ := m.Context["listing"].(string)
	when, _ := m.Context["scheduled_at"].(string)

	switch m.Template {
	case TemplateConfirmation:
		return fmt.Sprintf(
			"Hello,\n\nYour viewing of %s on %s has been scheduled. We will let you know once an agent confirms it.\n\n— OpenHaus",
			listing, when)
	case TemplateStatusChange:
		status, _ := m.Context["status"].(string)
		return fmt.Sprintf(
			"Hello,\n\nYour viewing of %s on %s is now %s.\n\n— OpenHaus",
			listing, when, status)
	case TemplateCancellation:
		body := fmt.Sprintf(
			"Hello,\n\nYour viewing of %s on %s has been cancelled.",
			listing, when)
		if reason, _ := m.Context["reason"].(string); reason != "" {
			body += "\nReason: " + reason
		}
		return body + "\n\n— OpenHaus"
	default:
		return m.Subject
	}
}
