package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/registry"
	"github.com/kozaktomas/class-attendance/internal/session"
)

// RecognizeHandler marks attendance from uploaded classroom photos.
type RecognizeHandler struct {
	registry *registry.Registry
	ledger   *attendance.Ledger
	matcher  facematch.Matcher
	detector FaceDetector
	logger   *slog.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(reg *registry.Registry, ledger *attendance.Ledger, matcher facematch.Matcher,
	det FaceDetector, logger *slog.Logger) *RecognizeHandler {
	return &RecognizeHandler{
		registry: reg,
		ledger:   ledger,
		matcher:  matcher,
		detector: det,
		logger:   logger,
	}
}

// FaceResult describes one face found in an uploaded photo.
type FaceResult struct {
	Top      int     `json:"top"`
	Right    int     `json:"right"`
	Bottom   int     `json:"bottom"`
	Left     int     `json:"left"`
	Name     string  `json:"name"`
	RollNo   string  `json:"roll_no,omitempty"`
	Status   string  `json:"status"`
	Distance float64 `json:"distance"`
}

// RecognizeResponse is the result of processing one photo.
type RecognizeResponse struct {
	Subject string       `json:"subject"`
	Date    string       `json:"date"`
	Faces   []FaceResult `json:"faces"`
}

// Recognize runs one uploaded photo through the session pipeline for the
// given subject. With annotated=true the annotated frame is returned as JPEG.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	date, err := attendance.ParseDate(r.FormValue("date"))
	if err != nil {
		respondServiceError(w, err, "invalid date")
		return
	}

	file, header, err := r.FormFile("file")
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
	img, err := detector.DecodeImage(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image")
		return
	}

	cfg := session.Config{
		Subject: r.FormValue("subject"),
		Date:    date,
		Logger:  h.logger,
	}
	controller, err := session.NewController(cfg, nil, h.detector, h.matcher, h.registry, h.ledger, nil)
	if err != nil {
		respondServiceError(w, err, "invalid session")
		return
	}

	result, err := controller.ProcessFrame(r.Context(), session.Frame{Name: header.Filename, Image: img})
	if err != nil {
		respondServiceError(w, err, "failed to process photo")
		return
	}

	if r.URL.Query().Get("annotated") == "true" {
		out, err := detector.EncodeJPEG(session.Annotate(img, result.Annotations))
		if err != nil {
			respondServiceError(w, err, "failed to encode annotated photo")
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(out)
		return
	}

	response := RecognizeResponse{
		Subject: cfg.Subject,
		Date:    h.ledger.Day(date),
		Faces:   make([]FaceResult, 0, len(result.Annotations)),
	}
	for _, a := range result.Annotations {
		response.Faces = append(response.Faces, FaceResult{
			Top:      a.Box.Top,
			Right:    a.Box.Right,
			Bottom:   a.Box.Bottom,
			Left:     a.Box.Left,
			Name:     a.Label,
			RollNo:   a.RollNo,
			Status:   string(a.Status),
			Distance: a.Distance,
		})
	}
	respondJSON(w, http.StatusOK, response)
}
