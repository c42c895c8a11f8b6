package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/ledgerio"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrAlreadyExists),
		errors.Is(err, registry.ErrDuplicateName),
		errors.Is(err, registry.ErrNameChange):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidStudent),
		errors.Is(err, registry.ErrDimensionMismatch),
		errors.Is(err, registry.ErrNoFace),
		errors.Is(err, registry.ErrMultipleFaces),
		errors.Is(err, attendance.ErrInvalidSubject),
		errors.Is(err, attendance.ErrInvalidDate),
		errors.Is(err, attendance.ErrNotEnrolled),
		errors.Is(err, attendance.ErrNameMismatch),
		errors.Is(err, ledgerio.ErrInvalidSheet):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with the status it maps to. Internal errors
// are logged and replaced by the generic message.
func respondServiceError(w http.ResponseWriter, err error, message string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", message, sanitizeForLog(err.Error()))
		respondError(w, status, message)
		return
	}
	respondError(w, status, err.Error())
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
