package appointment

import "fmt"

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// Statuses lists every status in a stable order, used to zero-fill stats.
var Statuses = []Status{
	StatusScheduled,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// ParseStatus maps a wire value onto the closed status set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
}

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	case StatusScheduled, StatusConfirmed:
		return false
	}
	return false
}

// CanTransitionTo encodes the one-directional lifecycle: SCHEDULED may move
// to any other status, CONFIRMED may move forward to a terminal status, and
// terminal statuses admit nothing. CANCELLED is reachable from every
// non-terminal status only.
func (s Status) CanTransitionTo(to Status) bool {
	if s == to {
		return false
	}
	switch s {
	case StatusScheduled:
		return to == StatusConfirmed || to == StatusCompleted || to == StatusCancelled || to == StatusNoShow
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled || to == StatusNoShow
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return false
	}
	return false
}
