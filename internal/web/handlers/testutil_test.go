package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/database/mock"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

var testNow = time.Date(2026, 3, 2, 9, 15, 42, 0, time.UTC)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Matching:  config.MatchingConfig{Tolerance: 0.6, Index: "linear"},
		Embedding: config.EmbeddingConfig{Dim: 3},
		Policy: config.PolicyConfig{
			Matching: config.MatchingPolicy{Tolerance: 0.6, UnknownLabel: "Unknown"},
			Report:   config.ReportPolicy{MinimumAttendance: 75, GoodLabel: "Good", LowLabel: "Low"},
		},
	}
}

// testServices holds the services behind the handlers under test
type testServices struct {
	students *mock.MockStudentStore
	store    *mock.MockLedger
	registry *registry.Registry
	ledger   *attendance.Ledger
	matcher  facematch.Matcher
}

func newTestServices(students ...database.Student) *testServices {
	now := func() time.Time { return testNow }
	store := mock.NewMockStudentStore(students...)
	ledgerStore := mock.NewMockLedger()
	reg := registry.New(store, registry.Options{Now: now})
	return &testServices{
		students: store,
		store:    ledgerStore,
		registry: reg,
		ledger:   attendance.New(ledgerStore, reg, attendance.Options{Now: now}),
		matcher:  facematch.NewLinearMatcher(reg, facematch.Options{Tolerance: 0.6}),
	}
}

// withRecords replaces the ledger with one holding records
func (s *testServices) withRecords(records ...database.AttendanceRecord) *testServices {
	s.store = mock.NewMockLedger(records...)
	s.ledger = attendance.New(s.store, s.registry, attendance.Options{Now: func() time.Time { return testNow }})
	return s
}

func testStudent(rollNo, name string, embedding []float32, subjects ...string) database.Student {
	return database.Student{RollNo: rollNo, Name: name, Subjects: subjects, Embedding: embedding}
}

// fakeDetector returns the same faces for every image
type fakeDetector struct {
	faces []facematch.Face
	err   error
	calls int
}

func (d *fakeDetector) Detect(ctx context.Context, frame image.Image) ([]facematch.Face, error) {
	d.calls++
	return d.faces, d.err
}

func (d *fakeDetector) DetectImage(ctx context.Context, imageData []byte) ([]facematch.Face, error) {
	d.calls++
	return d.faces, d.err
}

// testJPEG encodes a small solid image
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{200, 180, 160, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest builds a multipart POST with form fields and an optional file
func multipartRequest(t *testing.T, path string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", "upload.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(file)
	}
	writer.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// jsonRequest builds a request with a JSON body
func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
