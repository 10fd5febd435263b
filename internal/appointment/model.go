package appointment

import (
	"time"
)

// Appointment is a viewing request for a listing at an exact instant.
// A (ListingID, ScheduledAt) slot is held by at most one non-cancelled
// appointment; cancellation is the deletion substitute.
type Appointment struct {
	ID                 int64
	UserID             int64
	ListingID          int64
	ScheduledAt        time.Time
	Status             Status
	Notes              string
	AgentNotes         string
	InternalNotes      string
	CancellationReason string
	CancelledAt        *time.Time
	CancelledByID      *int64
	CompletedAt        *time.Time
	CompletedByID      *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Phone     *string
	Role      string
	CreatedAt time.Time
}

type Listing struct {
	ID        int64
	Title     string
	Address   string
	Price     int64
	CreatedAt time.Time
}

// AppointmentDetail is an appointment hydrated with requester and listing
// summaries for API responses.
type AppointmentDetail struct {
	Appointment
	Requester *User
	Listing   *Listing
}

// Stats is a point-in-time view of appointment counts. ByStatus covers the
// entire record set, Recent covers the trailing 30 days; both carry every
// status key even at zero.
type Stats struct {
	Total    int64
	ByStatus map[Status]int64
	Recent   map[Status]int64
}

// ListFilter is the validated query for the paginated appointment listing.
// Nil fields are unset; all set predicates are conjunctive. StartDate and
// EndDate bound ScheduledAt inclusively and may be supplied independently.
type ListFilter struct {
	Page      int
	Limit     int
	Status    *Status
	UserID    *int64
	ListingID *int64
	StartDate *time.Time
	EndDate   *time.Time
}

// Normalize coerces pagination to positive values, falling back to the
// defaults of page 1 and limit 10.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
}

// Offset is the number of rows skipped for the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of appointment results plus pagination metadata.
type Page struct {
	Items      []AppointmentDetail
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// EventLog is an append-only record of an appointment transition, drained
// to the event bus by the notify worker.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	Published     bool
	CreatedAt     time.Time
}
