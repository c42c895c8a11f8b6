package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kozaktomas/class-attendance/internal/detector"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}

// FileSource yields frames from image files in order. Files that cannot be
// decoded are logged and skipped.
type FileSource struct {
	paths  []string
	next   int
	logger *slog.Logger
}

// NewFileSource creates a source over the given image paths.
func NewFileSource(paths []string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileSource{paths: paths, logger: logger}
}

// NewDirectorySource creates a source over the images in dir sorted by name.
func NewDirectorySource(dir string, logger *slog.Logger) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return NewFileSource(paths, logger), nil
}

// Len returns the number of frames the source was created with.
func (s *FileSource) Len() int {
	return len(s.paths)
}

// Next decodes the next image.
func (s *FileSource) Next(ctx context.Context) (Frame, error) {
	for s.next < len(s.paths) {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		path := s.paths[s.next]
		s.next++

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable frame", "path", path, "error", err)
			continue
		}
		img, err := detector.DecodeImage(data)
		if err != nil {
			s.logger.Warn("skipping undecodable frame", "path", path, "error", err)
			continue
		}
		return Frame{Name: filepath.Base(path), Image: img}, nil
	}
	return Frame{}, io.EOF
}
