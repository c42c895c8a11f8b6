package facematch

import "image"

// Box is a face location in pixels as (top, right, bottom, left).
type Box struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// BoxFromCorners converts a detector bbox [x1, y1, x2, y2] to a Box.
// Returns false if the bbox does not have four coordinates.
func BoxFromCorners(bbox []float64) (Box, bool) {
	if len(bbox) != 4 {
		return Box{}, false
	}
	return Box{
		Top:    int(bbox[1]),
		Right:  int(bbox[2]),
		Bottom: int(bbox[3]),
		Left:   int(bbox[0]),
	}, true
}

// Scale multiplies every coordinate by factor. Used to map boxes found on a
// downscaled frame back onto the original one.
func (b Box) Scale(factor float64) Box {
	return Box{
		Top:    int(float64(b.Top) * factor),
		Right:  int(float64(b.Right) * factor),
		Bottom: int(float64(b.Bottom) * factor),
		Left:   int(float64(b.Left) * factor),
	}
}

// Width returns the horizontal extent of the box.
func (b Box) Width() int {
	return b.Right - b.Left
}

// Height returns the vertical extent of the box.
func (b Box) Height() int {
	return b.Bottom - b.Top
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Rect returns the box as an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Clamp limits the box to the given bounds.
func (b Box) Clamp(bounds image.Rectangle) Box {
	r := b.Rect().Intersect(bounds)
	return Box{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}
