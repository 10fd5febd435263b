package api

import (
	"encoding/json"
	"net/http"
)

// Error kinds surfaced in the response envelope.
const (
	KindValidation   = "ValidationError"
	KindConflict     = "AppointmentConflict"
	KindNotFound     = "NotFound"
	KindAlreadyDone  = "AlreadyCancelled"
	KindBadStatus    = "InvalidStatus"
	KindBadTransit   = "InvalidTransition"
	KindUnauthorized = "Unauthorized"
	KindForbidden    = "Forbidden"
	KindInternal     = "InternalError"
)

type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type successEnvelope struct {
	Success bool  `json:"success"`
	Data    any   `json:"data"`
	Meta    *Meta `json:"meta,omitempty"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, status int, data any, meta Meta) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data, Meta: &meta})
}

func writeError(w http.ResponseWriter, status int, kind, message string, fieldErrors ...string) {
	writeJSON(w, status, errorEnvelope{
		Success: false,
		Error:   kind,
		Message: message,
		Errors:  fieldErrors,
	})
}
