package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/registry"
	"github.com/kozaktomas/class-attendance/internal/report"
)

// ReportsHandler handles attendance report endpoints.
type ReportsHandler struct {
	registry *registry.Registry
	ledger   *attendance.Ledger
	opts     report.Options
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(reg *registry.Registry, ledger *attendance.Ledger, opts report.Options) *ReportsHandler {
	return &ReportsHandler{
		registry: reg,
		ledger:   ledger,
		opts:     opts,
	}
}

// Attendance builds the attendance report over the filtered ledger. The
// report is returned as JSON unless format=xlsx is requested.
func (h *ReportsHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondServiceError(w, err, "invalid filter")
		return
	}

	students, err := h.registry.List(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to list students")
		return
	}
	records, err := h.ledger.Records(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err, "failed to list attendance")
		return
	}

	rep := report.Build(students, records, h.opts)

	switch r.URL.Query().Get("format") {
	case "", "json":
		respondJSON(w, http.StatusOK, rep)
	case "xlsx":
		var buf bytes.Buffer
		if err := report.Write(&buf, rep); err != nil {
			respondServiceError(w, err, "failed to write report")
			return
		}
		filename := fmt.Sprintf("attendance-report-%s.xlsx", time.Now().Format(constants.DateLayout))
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		respondError(w, http.StatusBadRequest, "format must be json or xlsx")
	}
}
