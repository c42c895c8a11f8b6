package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/database/mock"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	students := mock.NewMockStudentStore(database.Student{
		RollNo: "1", Name: "Alice", Subjects: []string{"Math"}, Embedding: []float32{0, 0, 0},
	})
	ledgerStore := mock.NewMockLedger()
	reg := registry.New(students, registry.Options{Now: now})

	cfg := &config.Config{
		Web:     config.WebConfig{Host: "127.0.0.1", Port: 0},
		Storage: config.StorageConfig{FacesDir: t.TempDir()},
	}
	return NewServer(cfg, Services{
		Registry:   reg,
		Ledger:     attendance.New(ledgerStore, reg, attendance.Options{Now: now}),
		Attendance: ledgerStore,
		Matcher:    facematch.NewLinearMatcher(reg, facematch.Options{}),
	})
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{"GET", "/api/v1/health", "", http.StatusOK},
		{"GET", "/api/v1/config", "", http.StatusOK},
		{"GET", "/api/v1/students", "", http.StatusOK},
		{"GET", "/api/v1/students/1", "", http.StatusOK},
		{"GET", "/api/v1/students/2", "", http.StatusNotFound},
		{"GET", "/api/v1/subjects", "", http.StatusOK},
		{"GET", "/api/v1/subjects/Math", "", http.StatusOK},
		{"POST", "/api/v1/attendance/present", `{"roll_no":"1","subject":"Math"}`, http.StatusCreated},
		{"GET", "/api/v1/attendance?subject=Math", "", http.StatusOK},
		{"GET", "/api/v1/attendance/absentees?subject=Math", "", http.StatusOK},
		{"GET", "/api/v1/reports/attendance", "", http.StatusOK},
		{"GET", "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			recorder := httptest.NewRecorder()

			srv.Router().ServeHTTP(recorder, req)

			if recorder.Code != tc.want {
				t.Errorf("expected status %d, got %d\nBody: %s", tc.want, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestRoutes_SecurityHeaders(t *testing.T) {
	srv := newTestServer(t)
	recorder := httptest.NewRecorder()

	srv.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options header")
	}
}
