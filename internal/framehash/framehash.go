// Package framehash fingerprints camera frames so a session can skip frames
// that did not change.
package framehash

import (
	"image"

	"golang.org/x/image/draw"
)

// DHash computes a 64-bit difference hash of img.
func DHash(img image.Image) uint64 {
	// 9 columns give 8 horizontal differences per row.
	gray := toGrayscale(resize(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// HammingDistance counts the differing bits of two hashes.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1
	}
	return distance
}

// Skipper remembers the last processed frame and reports frames within
// MaxDistance bits of it as unchanged. A zero MaxDistance disables skipping.
type Skipper struct {
	MaxDistance int

	last uint64
	seen bool
}

// Unchanged reports whether img can be skipped. Frames that are processed
// become the new reference.
func (s *Skipper) Unchanged(img image.Image) bool {
	if s.MaxDistance <= 0 {
		return false
	}
	h := DHash(img)
	if s.seen && HammingDistance(s.last, h) <= s.MaxDistance {
		return true
	}
	s.last = h
	s.seen = true
	return false
}

// Reset forgets the reference frame.
func (s *Skipper) Reset() {
	s.seen = false
	s.last = 0
}

func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale returns BT.601 luma indexed [x][y].
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}
