package notification

import "time"

// Notification is an in-app message owned by a user. It is created as a
// side effect of an appointment event and only ever mutated to flip Read.
type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Message   string
	Type      string
	Data      map[string]any
	Read      bool
	CreatedAt time.Time
}

const (
	EmailPending = "pending"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

// EmailMessage is one outbound email in the outbox. It is written in the
// same breath as the notification record and delivered later by the notify
// worker, so sending never holds an appointment transaction open.
type EmailMessage struct {
	ID        int64
	Recipient string
	Subject   string
	Template  string
	Context   map[string]any
	Status    string
	CreatedAt time.Time
	SentAt    *time.Time
}
