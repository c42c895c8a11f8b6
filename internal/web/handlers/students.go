package handlers

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

// FaceDetector finds and encodes faces, both in raw uploads and decoded frames.
type FaceDetector interface {
	Detect(ctx context.Context, frame image.Image) ([]facematch.Face, error)
	DetectImage(ctx context.Context, imageData []byte) ([]facematch.Face, error)
}

// StudentsHandler handles student registration endpoints.
type StudentsHandler struct {
	registry *registry.Registry
	detector FaceDetector
	facesDir string
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(reg *registry.Registry, det FaceDetector, facesDir string) *StudentsHandler {
	return &StudentsHandler{
		registry: reg,
		detector: det,
		facesDir: facesDir,
	}
}

// StudentResponse represents a student in API responses. The embedding is
// only reported by its dimension.
type StudentResponse struct {
	RollNo       string   `json:"roll_no"`
	Name         string   `json:"name"`
	Semester     string   `json:"semester"`
	Year         string   `json:"year"`
	Subjects     []string `json:"subjects"`
	HasPhoto     bool     `json:"has_photo"`
	EmbeddingDim int      `json:"embedding_dim"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

func studentToResponse(s *database.Student) StudentResponse {
	resp := StudentResponse{
		RollNo:       s.RollNo,
		Name:         s.Name,
		Semester:     s.Semester,
		Year:         s.Year,
		Subjects:     s.Subjects,
		HasPhoto:     s.ImagePath != "",
		EmbeddingDim: len(s.Embedding),
	}
	if resp.Subjects == nil {
		resp.Subjects = []string{}
	}
	if !s.CreatedAt.IsZero() {
		resp.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

// CreateStudentRequest is the JSON body for registering a student with a
// precomputed embedding.
type CreateStudentRequest struct {
	RollNo    string    `json:"roll_no"`
	Name      string    `json:"name"`
	Semester  string    `json:"semester"`
	Year      string    `json:"year"`
	Subjects  []string  `json:"subjects"`
	Embedding []float32 `json:"embedding"`
	Overwrite bool      `json:"overwrite"`
}

// List returns all students in enrollment order.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.registry.List(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to list students")
		return
	}

	response := make([]StudentResponse, len(students))
	for i := range students {
		response[i] = studentToResponse(&students[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// Get returns one student by roll number.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rollNo := chi.URLParam(r, "rollNo")
	student, err := h.registry.Get(r.Context(), rollNo)
	if err != nil {
		respondServiceError(w, err, "failed to get student")
		return
	}
	respondJSON(w, http.StatusOK, studentToResponse(&student))
}

// Create registers a student. A multipart request carries a photo that is
// sent to the face detector; a JSON request carries the embedding directly.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.createFromPhoto(w, r)
		return
	}

	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	rec := registry.Record{
		Name:     req.Name,
		Semester: req.Semester,
		Year:     req.Year,
		Subjects: req.Subjects,
	}
	student, err := h.registry.Add(r.Context(), req.RollNo, rec, req.Embedding, req.Overwrite)
	if err != nil {
		respondServiceError(w, err, "failed to register student")
		return
	}
	respondJSON(w, http.StatusCreated, studentToResponse(&student))
}

func (h *StudentsHandler) createFromPhoto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	faces, err := h.detector.DetectImage(r.Context(), data)
	if err != nil {
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}

	photo, err := detector.ResizeImage(data, constants.MaxImageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image")
		return
	}

	rec := registry.Record{
		Name:     r.FormValue("name"),
		Semester: r.FormValue("semester"),
		Year:     r.FormValue("year"),
		Subjects: formSubjects(r),
	}
	overwrite := r.FormValue("overwrite") == "true"

	student, err := h.registry.AddWithPhoto(r.Context(), r.FormValue("roll_no"), rec, faces, photo, h.facesDir, overwrite)
	if err != nil {
		respondServiceError(w, err, "failed to register student")
		return
	}
	respondJSON(w, http.StatusCreated, studentToResponse(&student))
}

// formSubjects accepts repeated subjects fields as well as comma separated lists.
func formSubjects(r *http.Request) []string {
	var subjects []string
	for _, v := range r.MultipartForm.Value["subjects"] {
		for s := range strings.SplitSeq(v, ",") {
			subjects = append(subjects, s)
		}
	}
	return subjects
}

// Delete removes a student and their reference photo.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rollNo := chi.URLParam(r, "rollNo")
	student, err := h.registry.Remove(r.Context(), rollNo)
	if err != nil {
		respondServiceError(w, err, "failed to delete student")
		return
	}
	respondJSON(w, http.StatusOK, studentToResponse(&student))
}
