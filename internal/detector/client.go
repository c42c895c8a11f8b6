// Package detector talks to the face embedding server that locates faces in
// an image and encodes each one.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/class-attendance/internal/facematch"
)

const defaultEmbeddingURL = "http://localhost:8000"

// ErrMalformedResponse is returned when a detected face lacks a box or an embedding.
var ErrMalformedResponse = errors.New("malformed face detection response")

// Client computes face locations and embeddings using the embedding server.
type Client struct {
	baseURL   string
	downscale float64
	client    *http.Client
}

// NewClient creates a client. Frames passed to Detect are shrunk by
// downscale before upload; 0 or 1 sends them at full size.
func NewClient(baseURL string, downscale float64) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if downscale <= 0 || downscale > 1 {
		downscale = 1
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		downscale: downscale,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// faceDetection is a single detected face.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse is the response of the face embedding endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// DetectImage detects faces in encoded image data. Boxes are in the
// coordinates of the uploaded image.
func (c *Client) DetectImage(ctx context.Context, imageData []byte) ([]facematch.Face, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]facematch.Face, 0, len(resp.Faces))
	for i, f := range resp.Faces {
		box, ok := facematch.BoxFromCorners(f.BBox)
		if !ok {
			return nil, fmt.Errorf("%w: face %d has %d bbox values", ErrMalformedResponse, i, len(f.BBox))
		}
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("%w: face %d has no embedding", ErrMalformedResponse, i)
		}
		faces = append(faces, facematch.Face{Box: box, Embedding: f.Embedding, Score: f.DetScore})
	}
	return faces, nil
}

// Detect detects faces in a decoded frame. The frame is downscaled before
// upload and the returned boxes are mapped back onto the original frame.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]facematch.Face, error) {
	small := Downscale(frame, c.downscale)
	data, err := EncodeJPEG(small)
	if err != nil {
		return nil, err
	}

	faces, err := c.DetectImage(ctx, data)
	if err != nil {
		return nil, err
	}
	if c.downscale == 1 {
		return faces, nil
	}

	origin := frame.Bounds().Min
	for i := range faces {
		b := faces[i].Box.Scale(1 / c.downscale)
		faces[i].Box = facematch.Box{
			Top:    b.Top + origin.Y,
			Right:  b.Right + origin.X,
			Bottom: b.Bottom + origin.Y,
			Left:   b.Left + origin.X,
		}
	}
	return faces, nil
}

// postMultipartImage posts the image as the "file" part of a multipart form.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// DetectMIMEType detects the MIME type from image data
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	return "application/octet-stream"
}
