package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/report"
	"github.com/xuri/excelize/v2"
)

func reportServices() *testServices {
	return classServices().withRecords(
		database.AttendanceRecord{Name: "Alice", RollNo: "1", Date: "2026-03-01", Time: "09:00:00", Subject: "Math", Status: "Present"},
		database.AttendanceRecord{Name: "Bob", RollNo: "2", Date: "2026-03-01", Time: "09:00:00", Subject: "Math", Status: "Absent"},
		database.AttendanceRecord{Name: "Alice", RollNo: "1", Date: "2026-03-02", Time: "09:00:00", Subject: "Math", Status: "Present"},
		database.AttendanceRecord{Name: "Bob", RollNo: "2", Date: "2026-03-02", Time: "09:00:00", Subject: "Math", Status: "Present"},
	)
}

func TestReportsHandler_AttendanceJSON(t *testing.T) {
	svc := reportServices()
	handler := NewReportsHandler(svc.registry, svc.ledger, report.Options{MinimumAttendance: 75})

	recorder := httptest.NewRecorder()
	handler.Attendance(recorder, httptest.NewRequest("GET", "/api/v1/reports/attendance", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var rep report.Report
	parseJSONResponse(t, recorder, &rep)

	percentages := map[string]float64{}
	for _, row := range rep.Overall {
		percentages[row.Name] = row.Percentage
	}
	if percentages["Alice"] != 100 {
		t.Errorf("expected Alice at 100%%, got %v", percentages["Alice"])
	}
	if percentages["Bob"] != 50 {
		t.Errorf("expected Bob at 50%%, got %v", percentages["Bob"])
	}
}

func TestReportsHandler_AttendanceFiltered(t *testing.T) {
	svc := reportServices()
	handler := NewReportsHandler(svc.registry, svc.ledger, report.Options{})

	recorder := httptest.NewRecorder()
	handler.Attendance(recorder, httptest.NewRequest("GET", "/api/v1/reports/attendance?date=2026-03-02", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var rep report.Report
	parseJSONResponse(t, recorder, &rep)
	for _, row := range rep.Overall {
		if row.Name == "Bob" && row.Percentage != 100 {
			t.Errorf("expected Bob at 100%% on 2026-03-02, got %v", row.Percentage)
		}
	}
}

func TestReportsHandler_AttendanceXLSX(t *testing.T) {
	svc := reportServices()
	handler := NewReportsHandler(svc.registry, svc.ledger, report.Options{})

	recorder := httptest.NewRecorder()
	handler.Attendance(recorder, httptest.NewRequest("GET", "/api/v1/reports/attendance?format=xlsx", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, xlsxContentType)

	f, err := excelize.OpenReader(bytes.NewReader(recorder.Body.Bytes()))
	if err != nil {
		t.Fatalf("response is not a workbook: %v", err)
	}
	defer f.Close()
	if idx, err := f.GetSheetIndex(report.SheetOverall); err != nil || idx < 0 {
		t.Errorf("expected sheet %q in workbook", report.SheetOverall)
	}
}

func TestReportsHandler_UnknownFormat(t *testing.T) {
	svc := reportServices()
	handler := NewReportsHandler(svc.registry, svc.ledger, report.Options{})

	recorder := httptest.NewRecorder()
	handler.Attendance(recorder, httptest.NewRequest("GET", "/api/v1/reports/attendance?format=pdf", nil))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "format must be json or xlsx")
}
