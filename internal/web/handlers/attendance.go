package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/ledgerio"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AttendanceHandler handles attendance ledger endpoints.
type AttendanceHandler struct {
	registry *registry.Registry
	ledger   *attendance.Ledger
	store    database.AttendanceWriter
}

// NewAttendanceHandler creates a new attendance handler. store receives
// imported sheets as they are, bypassing enrollment checks.
func NewAttendanceHandler(reg *registry.Registry, ledger *attendance.Ledger, store database.AttendanceWriter) *AttendanceHandler {
	return &AttendanceHandler{
		registry: reg,
		ledger:   ledger,
		store:    store,
	}
}

// RecordResponse represents a ledger row in API responses.
type RecordResponse struct {
	Name    string `json:"name"`
	RollNo  string `json:"roll_no"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Subject string `json:"subject"`
	Status  string `json:"status"`
}

func recordToResponse(r *database.AttendanceRecord) RecordResponse {
	return RecordResponse{
		Name:    r.Name,
		RollNo:  r.RollNo,
		Date:    r.Date,
		Time:    r.Time,
		Subject: r.Subject,
		Status:  r.Status,
	}
}

// MarkRequest is the body of a manual marking request. Name defaults to the
// registered name of the roll number.
type MarkRequest struct {
	RollNo  string `json:"roll_no"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// MarkResponse reports the outcome of a marking request together with the
// row now in the ledger. An already marked slot reports the existing status.
type MarkResponse struct {
	Outcome string `json:"outcome"`
	Name    string `json:"name"`
	RollNo  string `json:"roll_no"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Status  string `json:"status"`
}

// MarkPresent records a Present row.
func (h *AttendanceHandler) MarkPresent(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, constants.StatusPresent)
}

// MarkAbsent records an Absent row.
func (h *AttendanceHandler) MarkAbsent(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, constants.StatusAbsent)
}

func (h *AttendanceHandler) mark(w http.ResponseWriter, r *http.Request, status string) {
	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		respondServiceError(w, err, "invalid date")
		return
	}

	name := req.Name
	if name == "" {
		student, err := h.registry.Get(r.Context(), req.RollNo)
		if err != nil {
			respondServiceError(w, err, "failed to get student")
			return
		}
		name = student.Name
	}

	markFn := h.ledger.MarkPresent
	if status == constants.StatusAbsent {
		markFn = h.ledger.MarkAbsent
	}
	outcome, err := markFn(r.Context(), name, req.RollNo, req.Subject, date)
	if err != nil {
		respondServiceError(w, err, "failed to mark attendance")
		return
	}

	rec, err := h.ledger.Entry(r.Context(), req.RollNo, req.Subject, date)
	if err != nil {
		respondServiceError(w, err, "failed to read attendance")
		return
	}
	if rec == nil {
		respondServiceError(w, fmt.Errorf("row for roll %s missing after mark", req.RollNo), "failed to read attendance")
		return
	}

	code := http.StatusOK
	if outcome == attendance.Applied {
		code = http.StatusCreated
	}
	respondJSON(w, code, MarkResponse{
		Outcome: outcome.String(),
		Name:    rec.Name,
		RollNo:  rec.RollNo,
		Subject: rec.Subject,
		Date:    rec.Date,
		Status:  rec.Status,
	})
}

// filterFromQuery builds a ledger filter from query parameters.
func filterFromQuery(r *http.Request) (database.AttendanceFilter, error) {
	q := r.URL.Query()
	filter := database.AttendanceFilter{
		Name:    q.Get("name"),
		RollNo:  q.Get("roll_no"),
		Subject: q.Get("subject"),
		Date:    q.Get("date"),
		From:    q.Get("from"),
		To:      q.Get("to"),
		Status:  q.Get("status"),
	}
	for _, d := range []string{filter.Date, filter.From, filter.To} {
		if _, err := attendance.ParseDate(d); err != nil {
			return filter, err
		}
	}
	return filter, nil
}

// List returns ledger rows matching the query filter in ledger order.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondServiceError(w, err, "invalid filter")
		return
	}
	records, err := h.ledger.Records(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err, "failed to list attendance")
		return
	}

	response := make([]RecordResponse, len(records))
	for i := range records {
		response[i] = recordToResponse(&records[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// AbsenteesResponse lists the enrolled students without a Present row.
type AbsenteesResponse struct {
	Subject   string              `json:"subject"`
	Date      string              `json:"date"`
	Absentees []registry.Enrollee `json:"absentees"`
}

// Absentees computes absentees without writing anything.
func (h *AttendanceHandler) Absentees(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	date, err := attendance.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondServiceError(w, err, "invalid date")
		return
	}

	absentees, err := h.ledger.Absentees(r.Context(), subject, date)
	if err != nil {
		respondServiceError(w, err, "failed to compute absentees")
		return
	}
	respondJSON(w, http.StatusOK, AbsenteesResponse{
		Subject:   subject,
		Date:      h.ledger.Day(date),
		Absentees: absentees,
	})
}

// SweepRequest is the body of an absentee sweep.
type SweepRequest struct {
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// Sweep marks every absentee of a subject and day as Absent.
func (h *AttendanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		respondServiceError(w, err, "invalid date")
		return
	}

	result, err := h.ledger.SweepAbsentees(r.Context(), req.Subject, date)
	if err != nil {
		respondServiceError(w, err, "failed to mark absentees")
		return
	}
	if result.Marked == nil {
		result.Marked = []registry.Enrollee{}
	}
	if result.Skipped == nil {
		result.Skipped = []registry.Enrollee{}
	}
	respondJSON(w, http.StatusOK, result)
}

// Export streams the filtered ledger as an xlsx workbook.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondServiceError(w, err, "invalid filter")
		return
	}
	records, err := h.ledger.Records(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err, "failed to list attendance")
		return
	}

	var buf bytes.Buffer
	if err := ledgerio.Export(&buf, records); err != nil {
		respondServiceError(w, err, "failed to export attendance")
		return
	}

	filename := fmt.Sprintf("attendance-%s.xlsx", time.Now().Format(constants.DateLayout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ImportResponse reports what an imported sheet added to the ledger.
type ImportResponse struct {
	Added   int              `json:"added"`
	Skipped int              `json:"skipped"`
	Errors  []ImportRowError `json:"errors"`
}

// ImportRowError is a rejected sheet row.
type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Import appends the rows of an uploaded attendance sheet. Rows for a slot
// that already has an entry are skipped; invalid rows are reported.
func (h *AttendanceHandler) Import(w http.ResponseWriter, r *http.Request) {
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

	result, err := ledgerio.Import(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, skipped, err := ledgerio.Apply(r.Context(), h.store, result.Records)
	if err != nil {
		respondServiceError(w, err, "failed to import attendance")
		return
	}

	response := ImportResponse{Added: added, Skipped: skipped, Errors: []ImportRowError{}}
	for _, e := range result.Errors {
		response.Errors = append(response.Errors, ImportRowError{Row: e.Row, Error: e.Err.Error()})
	}
	respondJSON(w, http.StatusOK, response)
}
