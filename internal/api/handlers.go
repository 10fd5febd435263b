package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openhaus/realty-api/internal/appointment"
	"github.com/openhaus/realty-api/internal/auth"
	"github.com/openhaus/realty-api/internal/notification"
	redisclient "github.com/openhaus/realty-api/internal/redis"
)

func createAppointmentHandler(svc *appointment.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, KindValidation, "could not parse JSON body")
			return
		}

		if msgs := validateStruct(req); msgs != nil {
			writeError(w, http.StatusBadRequest, KindValidation, "invalid appointment request", msgs...)
			return
		}

		detail, err := svc.Create(r.Context(), appointment.CreateInput{
			UserID:      req.UserID,
			ListingID:   req.ListingID,
			ScheduledAt: req.ScheduledAt,
			Notes:       req.Notes,
			Status:      appointment.Status(req.Status),
		})
		if err != nil {
			handleAppointmentError(w, r, err, logger)
			return
		}

		writeData(w, http.StatusCreated, toAppointmentResponse(detail))
	}
}

func listAppointmentsHandler(svc *appointment.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := auth.IdentityFromContext(r.Context())

		filter, fieldErrs := parseListFilter(r)
		if fieldErrs != nil {
			writeError(w, http.StatusBadRequest, KindValidation, "invalid query parameters", fieldErrs...)
			return
		}

		// Non-staff callers only see their own appointments.
		if !ident.Staff() {
			filter.UserID = &ident.ID
		}

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			handleAppointmentError(w, r, err, logger)
			return
		}

		writePage(w, http.StatusOK, toAppointmentResponses(page.Items), Meta{
			Total:      page.Total,
			Page:       page.Page,
			Limit:      page.Limit,
			TotalPages: page.TotalPages,
		})
	}
}

func getAppointmentHandler(svc *appointment.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := auth.IdentityFromContext(r.Context())

		id, ok := parseID(w, r)
		if !ok {
			return
		}

		detail, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, r, err, logger)
			return
		}

		if !ident.Staff() && detail.UserID != ident.ID {
			writeError(w, http.StatusForbidden, KindForbidden, "appointment belongs to another user")
			return
		}

		writeData(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := auth.IdentityFromContext(r.Context())

		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, KindValidation, "could not parse JSON body")
				return
			}
		}

		detail, err := svc.Cancel(r.Context(), id, ident.ID, ident.Staff(), req.Reason)
		if err != nil {
			handleAppointmentError(w, r, err, logger)
			return
		}

		writeData(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func updateAppointmentHandler(svc *appointment.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := auth.IdentityFromContext(r.Context())

		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, KindValidation, "could not parse JSON body")
			return
		}

		if msgs := validateStruct(req); msgs != nil {
			writeError(w, http.StatusBadRequest, KindBadStatus, "invalid update request", msgs...)
			return
		}

		detail, err := svc.Update(r.Context(), id, ident.ID, appointment.UpdateInput{
			Status:        req.Status,
			Notes:         req.Notes,
			AgentNotes:    req.AgentNotes,
			InternalNotes: req.InternalNotes,
		})
		if err != nil {
			handleAppointmentError(w, r, err, logger)
			return
		}

		writeData(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func statsHandler(svc *appointment.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.GetStats(r.Context())
		if err != nil {
			handleAppointmentError(w, r, err, logger)
			return
		}

		writeData(w, http.StatusOK, toStatsResponse(stats))
	}
}

func listNotificationsHandler(repo *notification.PgRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := auth.IdentityFromContext(r.Context())

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		items, err := repo.ListByUser(r.Context(), ident.ID, limit)
		if err != nil {
			logger.Error("list notifications failed", "user_id", ident.ID, "err", err)
			writeError(w, http.StatusInternalServerError, KindInternal, "something went wrong")
			return
		}

		writeData(w, http.StatusOK, toNotificationResponses(items))
	}
}

func markNotificationReadHandler(repo *notification.PgRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := auth.IdentityFromContext(r.Context())

		id, ok := parseID(w, r)
		if !ok {
			return
		}

		if err := repo.MarkRead(r.Context(), id, ident.ID); err != nil {
			if errors.Is(err, notification.ErrNotificationNotFound) {
				writeError(w, http.StatusNotFound, KindNotFound, "notification not found")
				return
			}
			logger.Error("mark notification read failed", "id", id, "err", err)
			writeError(w, http.StatusInternalServerError, KindInternal, "something went wrong")
			return
		}

		writeData(w, http.StatusOK, map[string]any{"id": id, "read": true})
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, KindValidation, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseListFilter builds the appointment query from URL parameters.
// Missing or non-numeric page/limit fall back to defaults rather than
// failing the request.
func parseListFilter(r *http.Request) (appointment.ListFilter, []string) {
	q := r.URL.Query()
	var f appointment.ListFilter
	var fieldErrs []string

	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	if raw := q.Get("status"); raw != "" {
		st, err := appointment.ParseStatus(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, "status must be a known appointment status")
		} else {
			f.Status = &st
		}
	}

	if raw := q.Get("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fieldErrs = append(fieldErrs, "userId must be an integer")
		} else {
			f.UserID = &id
		}
	}

	if raw := q.Get("listingId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fieldErrs = append(fieldErrs, "listingId must be an integer")
		} else {
			f.ListingID = &id
		}
	}

	if raw := q.Get("startDate"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, "startDate must be an RFC3339 timestamp or YYYY-MM-DD")
		} else {
			f.StartDate = &t
		}
	}

	if raw := q.Get("endDate"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, "endDate must be an RFC3339 timestamp or YYYY-MM-DD")
		} else {
			// A bare date bounds the whole day inclusively.
			if len(raw) == len("2006-01-02") {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			f.EndDate = &t
		}
	}

	return f, fieldErrs
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func handleAppointmentError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, appointment.ErrUserNotFound),
		errors.Is(err, appointment.ErrListingNotFound),
		errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, KindNotFound, err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, KindConflict, err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, KindConflict, "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, KindAlreadyDone, err.Error())
	case errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, KindBadStatus, err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, KindBadTransit, err.Error())
	case errors.Is(err, appointment.ErrNotOwner):
		writeError(w, http.StatusForbidden, KindForbidden, err.Error())
	default:
		logger.Error("unexpected error",
			"method", r.Method, "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, KindInternal, "something went wrong")
	}
}
