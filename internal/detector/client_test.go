package detector

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// faceServer answers /embed/face with body and records the decoded upload size.
func faceServer(t *testing.T, status int, body string, uploaded *image.Point) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if uploaded != nil {
			if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("part content type = %q, want image/jpeg", ct)
			}
			img, err := DecodeImage(data)
			if err != nil {
				t.Errorf("upload is not an image: %v", err)
			} else {
				*uploaded = img.Bounds().Size()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func testFrame(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	return img
}

func TestDetectScalesBoxesBack(t *testing.T) {
	var uploaded image.Point
	srv := faceServer(t, http.StatusOK, `{"faces_count":2,"faces":[
		{"face_index":0,"bbox":[10,5,30,25],"embedding":[0.1,0.2],"det_score":0.98},
		{"face_index":1,"bbox":[50,10,70,40],"embedding":[0.3,0.4],"det_score":0.91}
	],"model":"buffalo_l"}`, &uploaded)
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0.25)
	faces, err := c.Detect(context.Background(), testFrame(400, 200))
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if uploaded != (image.Point{X: 100, Y: 50}) {
		t.Errorf("uploaded frame size = %v, want 100x50", uploaded)
	}
	if len(faces) != 2 {
		t.Fatalf("faces = %d, want 2", len(faces))
	}
	want := facematch.Box{Top: 20, Right: 120, Bottom: 100, Left: 40}
	if faces[0].Box != want {
		t.Errorf("box = %+v, want %+v", faces[0].Box, want)
	}
	if faces[1].Embedding[0] != 0.3 || faces[1].Score != 0.91 {
		t.Errorf("second face = %+v", faces[1])
	}
}

func TestDetectImageNoFaces(t *testing.T) {
	srv := faceServer(t, http.StatusOK, `{"faces_count":0,"faces":[]}`, nil)
	defer srv.Close()

	faces, err := NewClient(srv.URL, 1).DetectImage(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("DetectImage() error: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("faces = %v, want none", faces)
	}
}

func TestDetectImageErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `boom`, nil},
		{"invalid json", http.StatusOK, `{`, nil},
		{"short bbox", http.StatusOK, `{"faces":[{"bbox":[1,2,3],"embedding":[1]}]}`, ErrMalformedResponse},
		{"missing embedding", http.StatusOK, `{"faces":[{"bbox":[1,2,3,4]}]}`, ErrMalformedResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := faceServer(t, tc.status, tc.body, nil)
			defer srv.Close()

			_, err := NewClient(srv.URL, 1).DetectImage(context.Background(), pngBytes(t))
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00"), "image/gif"},
		{"bmp", []byte("BM\x00\x00\x00\x00\x00\x00"), "image/bmp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"text", []byte("not an image"), "application/octet-stream"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectMIMEType(tc.data); got != tc.want {
				t.Errorf("DetectMIMEType() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDownscale(t *testing.T) {
	img := testFrame(400, 200)
	if got := Downscale(img, 0.25).Bounds().Size(); got != (image.Point{X: 100, Y: 50}) {
		t.Errorf("Downscale(0.25) size = %v", got)
	}
	if Downscale(img, 1) != image.Image(img) {
		t.Error("Downscale(1) should return the input")
	}
}

func TestResizeImage(t *testing.T) {
	data := pngBytes(t)
	out, err := ResizeImage(data, 16)
	if err != nil {
		t.Fatalf("ResizeImage() error: %v", err)
	}
	if DetectMIMEType(out) != "image/jpeg" {
		t.Error("ResizeImage() output is not JPEG")
	}
	img, err := DecodeImage(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Size(); got != (image.Point{X: 16, Y: 8}) {
		t.Errorf("resized size = %v, want 16x8", got)
	}

	if _, err := ResizeImage([]byte("not an image"), 16); err == nil {
		t.Error("expected decode error")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testFrame(64, 32)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
