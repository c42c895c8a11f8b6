package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/ledgerio"
)

func classServices() *testServices {
	return newTestServices(
		testStudent("1", "Alice", []float32{0, 0, 0}, "Math"),
		testStudent("2", "Bob", []float32{1, 1, 1}, "Math"),
		testStudent("3", "Chen", []float32{2, 2, 2}, "Physics"),
	)
}

func TestAttendanceHandler_MarkPresent(t *testing.T) {
	tests := []struct {
		name        string
		body        MarkRequest
		wantStatus  int
		wantOutcome string
	}{
		{"by roll number", MarkRequest{RollNo: "1", Subject: "Math"}, http.StatusCreated, "applied"},
		{"with matching name", MarkRequest{RollNo: "1", Name: "alice", Subject: "Math", Date: "2026-03-01"}, http.StatusCreated, "applied"},
		{"unknown roll", MarkRequest{RollNo: "9", Subject: "Math"}, http.StatusNotFound, ""},
		{"missing subject", MarkRequest{RollNo: "1"}, http.StatusBadRequest, ""},
		{"not enrolled", MarkRequest{RollNo: "3", Subject: "Math"}, http.StatusBadRequest, ""},
		{"name mismatch", MarkRequest{RollNo: "1", Name: "Bob", Subject: "Math"}, http.StatusBadRequest, ""},
		{"bad date", MarkRequest{RollNo: "1", Subject: "Math", Date: "02/03/2026"}, http.StatusBadRequest, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := classServices()
			handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)
			recorder := httptest.NewRecorder()

			handler.MarkPresent(recorder, jsonRequest(t, "POST", "/api/v1/attendance/present", tc.body))

			assertStatusCode(t, recorder, tc.wantStatus)
			if tc.wantOutcome == "" {
				if n := len(svc.store.All()); n != 0 {
					t.Errorf("expected no rows written, got %d", n)
				}
				return
			}
			var result MarkResponse
			parseJSONResponse(t, recorder, &result)
			if result.Outcome != tc.wantOutcome {
				t.Errorf("expected outcome %s, got %s", tc.wantOutcome, result.Outcome)
			}
			if result.Name != "Alice" && tc.body.Name == "" {
				t.Errorf("expected registered name, got %s", result.Name)
			}
		})
	}
}

func TestAttendanceHandler_MarkPresentIsIdempotent(t *testing.T) {
	svc := classServices()
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)
	body := MarkRequest{RollNo: "1", Subject: "Math", Date: "2026-03-02"}

	first := httptest.NewRecorder()
	handler.MarkPresent(first, jsonRequest(t, "POST", "/api/v1/attendance/present", body))
	assertStatusCode(t, first, http.StatusCreated)

	second := httptest.NewRecorder()
	handler.MarkPresent(second, jsonRequest(t, "POST", "/api/v1/attendance/present", body))
	assertStatusCode(t, second, http.StatusOK)

	var result MarkResponse
	parseJSONResponse(t, second, &result)
	if result.Outcome != "already_marked" {
		t.Errorf("expected already_marked, got %s", result.Outcome)
	}
	if n := len(svc.store.All()); n != 1 {
		t.Errorf("expected exactly 1 row, got %d", n)
	}
}

func TestAttendanceHandler_MarkReturnsStoredRow(t *testing.T) {
	svc := classServices()
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)
	recorder := httptest.NewRecorder()

	handler.MarkPresent(recorder, jsonRequest(t, "POST", "/api/v1/attendance/present",
		MarkRequest{RollNo: "1", Name: " alice ", Subject: " Math "}))

	assertStatusCode(t, recorder, http.StatusCreated)
	var result MarkResponse
	parseJSONResponse(t, recorder, &result)
	want := MarkResponse{Outcome: "applied", Name: "Alice", RollNo: "1", Subject: "Math", Date: "2026-03-02", Status: "Present"}
	if result != want {
		t.Errorf("response = %+v, want %+v", result, want)
	}
}

func TestAttendanceHandler_MarkPresentOverAbsentReportsAbsent(t *testing.T) {
	svc := classServices()
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)
	body := MarkRequest{RollNo: "2", Subject: "Math"}

	first := httptest.NewRecorder()
	handler.MarkAbsent(first, jsonRequest(t, "POST", "/api/v1/attendance/absent", body))
	assertStatusCode(t, first, http.StatusCreated)

	second := httptest.NewRecorder()
	handler.MarkPresent(second, jsonRequest(t, "POST", "/api/v1/attendance/present", body))
	assertStatusCode(t, second, http.StatusOK)

	var result MarkResponse
	parseJSONResponse(t, second, &result)
	if result.Outcome != "already_marked" || result.Status != "Absent" {
		t.Errorf("response = %+v, want already_marked with the stored Absent status", result)
	}
}

func TestAttendanceHandler_MarkAbsent(t *testing.T) {
	svc := classServices()
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)
	recorder := httptest.NewRecorder()

	handler.MarkAbsent(recorder, jsonRequest(t, "POST", "/api/v1/attendance/absent", MarkRequest{RollNo: "2", Subject: "Math"}))

	assertStatusCode(t, recorder, http.StatusCreated)
	rows := svc.store.All()
	if len(rows) != 1 || rows[0].Status != "Absent" || rows[0].Date != "2026-03-02" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestAttendanceHandler_List(t *testing.T) {
	svc := classServices().withRecords(
		database.AttendanceRecord{ID: "a", Name: "Alice", RollNo: "1", Date: "2026-03-01", Time: "09:00:00", Subject: "Math", Status: "Present"},
		database.AttendanceRecord{ID: "b", Name: "Bob", RollNo: "2", Date: "2026-03-01", Time: "09:05:00", Subject: "Math", Status: "Absent"},
		database.AttendanceRecord{ID: "c", Name: "Chen", RollNo: "3", Date: "2026-03-02", Time: "10:00:00", Subject: "Physics", Status: "Present"},
	)
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantRows   int
	}{
		{"all", "", http.StatusOK, 3},
		{"by subject", "?subject=Math", http.StatusOK, 2},
		{"by status", "?subject=Math&status=Present", http.StatusOK, 1},
		{"date range", "?from=2026-03-02&to=2026-03-31", http.StatusOK, 1},
		{"bad date", "?date=yesterday", http.StatusBadRequest, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.List(recorder, httptest.NewRequest("GET", "/api/v1/attendance"+tc.query, nil))

			assertStatusCode(t, recorder, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var rows []RecordResponse
			parseJSONResponse(t, recorder, &rows)
			if len(rows) != tc.wantRows {
				t.Errorf("expected %d rows, got %d", tc.wantRows, len(rows))
			}
		})
	}
}

func TestAttendanceHandler_AbsenteesAndSweep(t *testing.T) {
	svc := classServices()
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)

	mark := httptest.NewRecorder()
	handler.MarkPresent(mark, jsonRequest(t, "POST", "/api/v1/attendance/present", MarkRequest{RollNo: "1", Subject: "Math"}))
	assertStatusCode(t, mark, http.StatusCreated)

	recorder := httptest.NewRecorder()
	handler.Absentees(recorder, httptest.NewRequest("GET", "/api/v1/attendance/absentees?subject=Math", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var absentees AbsenteesResponse
	parseJSONResponse(t, recorder, &absentees)
	if len(absentees.Absentees) != 1 || absentees.Absentees[0].Name != "Bob" {
		t.Fatalf("expected only Bob absent, got %+v", absentees.Absentees)
	}
	if absentees.Date != "2026-03-02" {
		t.Errorf("expected today's date, got %s", absentees.Date)
	}

	sweep := httptest.NewRecorder()
	handler.Sweep(sweep, jsonRequest(t, "POST", "/api/v1/attendance/absentees/sweep", SweepRequest{Subject: "Math"}))
	assertStatusCode(t, sweep, http.StatusOK)

	var result struct {
		Marked  []map[string]string `json:"marked"`
		Skipped []map[string]string `json:"skipped"`
	}
	parseJSONResponse(t, sweep, &result)
	if len(result.Marked) != 1 || result.Marked[0]["name"] != "Bob" {
		t.Errorf("expected Bob marked absent, got %+v", result.Marked)
	}

	again := httptest.NewRecorder()
	handler.Sweep(again, jsonRequest(t, "POST", "/api/v1/attendance/absentees/sweep", SweepRequest{Subject: "Math"}))
	parseJSONResponse(t, again, &result)
	if len(result.Marked) != 0 || len(result.Skipped) != 1 {
		t.Errorf("expected second sweep to skip Bob, got marked=%v skipped=%v", result.Marked, result.Skipped)
	}
	if n := len(svc.store.All()); n != 2 {
		t.Errorf("expected 2 rows after sweeps, got %d", n)
	}
}

func TestAttendanceHandler_AbsenteesRequiresSubject(t *testing.T) {
	svc := classServices()
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)
	recorder := httptest.NewRecorder()

	handler.Absentees(recorder, httptest.NewRequest("GET", "/api/v1/attendance/absentees", nil))

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestAttendanceHandler_ExportAndImport(t *testing.T) {
	source := classServices()
	handler := NewAttendanceHandler(source.registry, source.ledger, source.store)
	for _, roll := range []string{"1", "2"} {
		recorder := httptest.NewRecorder()
		handler.MarkPresent(recorder, jsonRequest(t, "POST", "/api/v1/attendance/present", MarkRequest{RollNo: roll, Subject: "Math"}))
		assertStatusCode(t, recorder, http.StatusCreated)
	}

	export := httptest.NewRecorder()
	handler.Export(export, httptest.NewRequest("GET", "/api/v1/attendance/export?subject=Math", nil))
	assertStatusCode(t, export, http.StatusOK)
	assertContentType(t, export, xlsxContentType)

	parsed, err := ledgerio.Import(bytes.NewReader(export.Body.Bytes()))
	if err != nil {
		t.Fatalf("exported workbook does not import: %v", err)
	}
	if len(parsed.Records) != 2 {
		t.Fatalf("expected 2 exported rows, got %d", len(parsed.Records))
	}

	target := classServices()
	importer := NewAttendanceHandler(target.registry, target.ledger, target.store)
	upload := func() *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, _ := writer.CreateFormFile("file", "attendance.xlsx")
		part.Write(export.Body.Bytes())
		writer.Close()
		req := httptest.NewRequest("POST", "/api/v1/attendance/import", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		recorder := httptest.NewRecorder()
		importer.Import(recorder, req)
		return recorder
	}

	first := upload()
	assertStatusCode(t, first, http.StatusOK)
	var result ImportResponse
	parseJSONResponse(t, first, &result)
	if result.Added != 2 || result.Skipped != 0 {
		t.Errorf("expected 2 added, got added=%d skipped=%d", result.Added, result.Skipped)
	}

	second := upload()
	parseJSONResponse(t, second, &result)
	if result.Added != 0 || result.Skipped != 2 {
		t.Errorf("expected re-import to skip, got added=%d skipped=%d", result.Added, result.Skipped)
	}
}

func TestAttendanceHandler_ImportRejectsNonWorkbook(t *testing.T) {
	svc := classServices()
	handler := NewAttendanceHandler(svc.registry, svc.ledger, svc.store)

	req := multipartRequest(t, "/api/v1/attendance/import", nil, []byte("name,roll\n"))
	recorder := httptest.NewRecorder()
	handler.Import(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}
