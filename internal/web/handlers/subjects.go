package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

// SubjectsHandler handles subject listing endpoints.
type SubjectsHandler struct {
	registry *registry.Registry
}

// NewSubjectsHandler creates a new subjects handler.
func NewSubjectsHandler(reg *registry.Registry) *SubjectsHandler {
	return &SubjectsHandler{registry: reg}
}

// SubjectResponse represents a subject with its enrolled students
type SubjectResponse struct {
	Name     string              `json:"name"`
	Students []registry.Enrollee `json:"students"`
}

// List returns every subject any student is enrolled in, sorted by name
func (h *SubjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.registry.AllSubjects(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to list subjects")
		return
	}
	respondJSON(w, http.StatusOK, subjects)
}

// Get returns the students enrolled in a subject
func (h *SubjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	enrolled, err := h.registry.Enrolled(r.Context(), subject)
	if err != nil {
		respondServiceError(w, err, "failed to list enrolled students")
		return
	}
	if len(enrolled) == 0 {
		respondError(w, http.StatusNotFound, "subject not found")
		return
	}
	respondJSON(w, http.StatusOK, SubjectResponse{Name: subject, Students: enrolled})
}
