package session

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/class-attendance/internal/detector"
)

var statusColors = map[Status]color.RGBA{
	StatusMarked:        {0, 200, 0, 255},
	StatusAlreadyMarked: {0, 120, 255, 255},
	StatusNotEnrolled:   {255, 165, 0, 255},
	StatusUnknown:       {255, 0, 0, 255},
}

const (
	boxLineWidth = 2
	labelHeight  = 17
)

// Annotate draws a box around every face with its label on a filled strip
// below the box.
func Annotate(img image.Image, annotations []Annotation) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	for _, a := range annotations {
		c, ok := statusColors[a.Status]
		if !ok {
			c = statusColors[StatusUnknown]
		}
		b := a.Box
		for w := range boxLineWidth {
			drawHLine(dst, b.Left, b.Right, b.Top+w, c)
			drawHLine(dst, b.Left, b.Right, b.Bottom-w, c)
			drawVLine(dst, b.Top, b.Bottom, b.Left+w, c)
			drawVLine(dst, b.Top, b.Bottom, b.Right-w, c)
		}

		strip := image.Rect(b.Left, b.Bottom-labelHeight, b.Right, b.Bottom).Intersect(bounds)
		draw.Draw(dst, strip, image.NewUniform(c), image.Point{}, draw.Src)
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.White,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(b.Left+4, b.Bottom-4),
		}
		d.DrawString(a.Label)
	}
	return dst
}

// drawHLine draws a horizontal line on the image.
func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	bounds := dst.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	for x := x1; x <= x2; x++ {
		if x >= bounds.Min.X && x < bounds.Max.X {
			dst.SetRGBA(x, y, c)
		}
	}
}

// drawVLine draws a vertical line on the image.
func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	bounds := dst.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := y1; y <= y2; y++ {
		if y >= bounds.Min.Y && y < bounds.Max.Y {
			dst.SetRGBA(x, y, c)
		}
	}
}

// JPEGRenderer writes annotated frames as JPEG files into a directory.
type JPEGRenderer struct {
	Dir string
}

// Render writes <Dir>/<frame name>.jpg.
func (r *JPEGRenderer) Render(ctx context.Context, frame Frame, annotations []Annotation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := detector.EncodeJPEG(Annotate(frame.Image, annotations))
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(frame.Name, filepath.Ext(frame.Name)) + ".jpg"
	return os.WriteFile(filepath.Join(r.Dir, name), data, 0o644)
}
