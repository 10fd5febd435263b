package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openhaus/realty-api/internal/appointment"
	"github.com/openhaus/realty-api/internal/notification"
)

var validate = validator.New()

// validateStruct returns one message per failing field.
func validateStruct(v any) []string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return msgs
}

type CreateAppointmentRequest struct {
	UserID      int64     `json:"userId" validate:"required,gt=0"`
	ListingID   int64     `json:"listingId" validate:"required,gt=0"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	Notes       string    `json:"notes"`
	Status      string    `json:"status" validate:"omitempty,oneof=SCHEDULED CONFIRMED COMPLETED CANCELLED NO_SHOW"`
}

type UpdateAppointmentRequest struct {
	Status        *string `json:"status" validate:"omitempty,oneof=SCHEDULED CONFIRMED COMPLETED CANCELLED NO_SHOW"`
	Notes         *string `json:"notes"`
	AgentNotes    *string `json:"agentNotes"`
	InternalNotes *string `json:"internalNotes"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type UserResponse struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
}

type ListingResponse struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Address string `json:"address"`
	Price   int64  `json:"price"`
}

type AppointmentResponse struct {
	ID                 int64            `json:"id"`
	UserID             int64            `json:"userId"`
	ListingID          int64            `json:"listingId"`
	ScheduledAt        time.Time        `json:"scheduledAt"`
	Status             string           `json:"status"`
	Notes              string           `json:"notes,omitempty"`
	AgentNotes         string           `json:"agentNotes,omitempty"`
	InternalNotes      string           `json:"internalNotes,omitempty"`
	CancellationReason string           `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time       `json:"cancelledAt,omitempty"`
	CancelledByID      *int64           `json:"cancelledById,omitempty"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
	CompletedByID      *int64           `json:"completedById,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	Requester          *UserResponse    `json:"requester,omitempty"`
	Listing            *ListingResponse `json:"listing,omitempty"`
}

func toAppointmentResponse(d *appointment.AppointmentDetail) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 d.ID,
		UserID:             d.UserID,
		ListingID:          d.ListingID,
		ScheduledAt:        d.ScheduledAt,
		Status:             string(d.Status),
		Notes:              d.Notes,
		AgentNotes:         d.AgentNotes,
		InternalNotes:      d.InternalNotes,
		CancellationReason: d.CancellationReason,
		CancelledAt:        d.CancelledAt,
		CancelledByID:      d.CancelledByID,
		CompletedAt:        d.CompletedAt,
		CompletedByID:      d.CompletedByID,
		CreatedAt:          d.CreatedAt,
	}
	if d.Requester != nil {
		resp.Requester = &UserResponse{
			ID:        d.Requester.ID,
			FirstName: d.Requester.FirstName,
			LastName:  d.Requester.LastName,
			Email:     d.Requester.Email,
			Phone:     d.Requester.Phone,
		}
	}
	if d.Listing != nil {
		resp.Listing = &ListingResponse{
			ID:      d.Listing.ID,
			Title:   d.Listing.Title,
			Address: d.Listing.Address,
			Price:   d.Listing.Price,
		}
	}
	return resp
}

func toAppointmentResponses(items []appointment.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAppointmentResponse(&items[i]))
	}
	return out
}

type StatsResponse struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"byStatus"`
	RecentStats map[string]int64 `json:"recentStats"`
}

func toStatsResponse(s *appointment.Stats) StatsResponse {
	resp := StatsResponse{
		Total:       s.Total,
		ByStatus:    make(map[string]int64, len(s.ByStatus)),
		RecentStats: make(map[string]int64, len(s.Recent)),
	}
	for st, n := range s.ByStatus {
		resp.ByStatus[string(st)] = n
	}
	for st, n := range s.Recent {
		resp.RecentStats[string(st)] = n
	}
	return resp
}

type NotificationResponse struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"userId"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toNotificationResponses(items []notification.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			UserID:    n.UserID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			Data:      n.Data,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}
