// Package session runs the recognition loop of a class: frames in, faces
// matched, attendance marked, annotated frames out.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/framehash"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

// Frame is one captured image.
type Frame struct {
	Name  string
	Image image.Image
}

// FrameSource yields frames until it returns io.EOF.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Detector locates and encodes the faces in a frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]facematch.Face, error)
}

// Roster resolves a matched roll number to its student.
type Roster interface {
	Get(ctx context.Context, rollNo string) (database.Student, error)
}

// Marker records attendance.
type Marker interface {
	MarkPresent(ctx context.Context, name, rollNo, subject string, date time.Time) (attendance.Outcome, error)
}

// Renderer shows or stores an annotated frame.
type Renderer interface {
	Render(ctx context.Context, frame Frame, annotations []Annotation) error
}

// Status is what happened to one detected face.
type Status string

const (
	StatusMarked        Status = "marked"
	StatusAlreadyMarked Status = "already_marked"
	StatusNotEnrolled   Status = "not_enrolled"
	StatusUnknown       Status = "unknown"
)

// Annotation describes one face in a processed frame.
type Annotation struct {
	Box      facematch.Box
	Label    string
	RollNo   string
	Status   Status
	Distance float64
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	Frame       string
	Skipped     bool
	Annotations []Annotation
}

// Summary counts the outcomes of a session.
type Summary struct {
	Subject       string   `json:"subject"`
	Date          string   `json:"date"`
	Frames        int      `json:"frames"`
	SkippedFrames int      `json:"skipped_frames"`
	Faces         int      `json:"faces"`
	Unknown       int      `json:"unknown"`
	Marked        []string `json:"marked"`
	AlreadyMarked []string `json:"already_marked"`
	NotEnrolled   []string `json:"not_enrolled"`
}

// Config configures a Controller.
type Config struct {
	Subject           string
	Date              time.Time // zero means the day each frame is processed
	FrameSkipDistance int       // 0 disables skipping unchanged frames
	Logger            *slog.Logger
}

// Controller drives a recognition session for one subject.
type Controller struct {
	cfg      Config
	source   FrameSource
	detector Detector
	matcher  facematch.Matcher
	roster   Roster
	marker   Marker
	renderer Renderer
	skipper  *framehash.Skipper
	logger   *slog.Logger
}

// NewController wires a session. renderer may be nil.
func NewController(cfg Config, source FrameSource, detector Detector, matcher facematch.Matcher,
	roster Roster, marker Marker, renderer Renderer) (*Controller, error) {
	cfg.Subject = strings.TrimSpace(cfg.Subject)
	if cfg.Subject == "" {
		return nil, attendance.ErrInvalidSubject
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		cfg:      cfg,
		source:   source,
		detector: detector,
		matcher:  matcher,
		roster:   roster,
		marker:   marker,
		renderer: renderer,
		skipper:  &framehash.Skipper{MaxDistance: cfg.FrameSkipDistance},
		logger:   cfg.Logger.With("subject", cfg.Subject),
	}, nil
}

// Run processes frames until the source is exhausted or ctx is cancelled.
// Cancellation is a normal stop and returns the summary without error.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Subject: c.cfg.Subject}
	if !c.cfg.Date.IsZero() {
		summary.Date = c.cfg.Date.Format(constants.DateLayout)
	}
	c.logger.Info("session started")

	for {
		if ctx.Err() != nil {
			break
		}
		frame, err := c.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return summary, fmt.Errorf("next frame: %w", err)
		}

		result, err := c.ProcessFrame(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return summary, err
		}
		summary.add(result)
	}

	c.logger.Info("session finished", "frames", summary.Frames, "faces", summary.Faces,
		"marked", len(summary.Marked), "unknown", summary.Unknown)
	return summary, nil
}

func (s *Summary) add(r FrameResult) {
	s.Frames++
	if r.Skipped {
		s.SkippedFrames++
		return
	}
	for _, a := range r.Annotations {
		s.Faces++
		switch a.Status {
		case StatusMarked:
			s.Marked = append(s.Marked, a.Label)
		case StatusAlreadyMarked:
			s.AlreadyMarked = appendUnique(s.AlreadyMarked, a.Label)
		case StatusNotEnrolled:
			s.NotEnrolled = appendUnique(s.NotEnrolled, a.Label)
		case StatusUnknown:
			s.Unknown++
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// ProcessFrame detects, identifies and marks every face in frame and hands
// the annotated frame to the renderer.
func (c *Controller) ProcessFrame(ctx context.Context, frame Frame) (FrameResult, error) {
	result := FrameResult{Frame: frame.Name}
	if c.skipper.Unchanged(frame.Image) {
		result.Skipped = true
		return result, nil
	}

	faces, err := c.detector.Detect(ctx, frame.Image)
	if err != nil {
		return result, fmt.Errorf("detect faces in %s: %w", frame.Name, err)
	}

	for _, face := range faces {
		a, err := c.processFace(ctx, face)
		if err != nil {
			return result, err
		}
		result.Annotations = append(result.Annotations, a)
	}

	if c.renderer != nil {
		if err := c.renderer.Render(ctx, frame, result.Annotations); err != nil {
			return result, fmt.Errorf("render %s: %w", frame.Name, err)
		}
	}
	return result, nil
}

func (c *Controller) processFace(ctx context.Context, face facematch.Face) (Annotation, error) {
	a := Annotation{Box: face.Box, Status: StatusUnknown}

	match, err := c.matcher.Match(ctx, face.Embedding)
	if err != nil {
		return a, fmt.Errorf("match face: %w", err)
	}
	a.Label = match.Name
	a.Distance = match.Distance
	if !match.Known {
		c.logger.Debug("unknown face", "distance", match.Distance)
		return a, nil
	}
	a.RollNo = match.RollNo

	student, err := c.roster.Get(ctx, match.RollNo)
	if errors.Is(err, registry.ErrNotFound) {
		// Removed between match and lookup.
		a.Status = StatusUnknown
		return a, nil
	}
	if err != nil {
		return a, err
	}
	if !student.HasSubject(c.cfg.Subject) {
		a.Status = StatusNotEnrolled
		c.logger.Warn("student not enrolled", "name", student.Name, "roll_no", student.RollNo)
		return a, nil
	}

	outcome, err := c.marker.MarkPresent(ctx, student.Name, student.RollNo, c.cfg.Subject, c.cfg.Date)
	if err != nil {
		return a, fmt.Errorf("mark %s present: %w", student.Name, err)
	}
	if outcome == attendance.Applied {
		a.Status = StatusMarked
	} else {
		a.Status = StatusAlreadyMarked
	}
	return a, nil
}
