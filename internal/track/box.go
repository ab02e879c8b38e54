// Package track owns vehicle identities: the registry of active tracks,
// detection-to-track association and one-shot speed measurement.
package track

import "image"

// Box is a bounding box stored as its top-left corner and size, in pixels.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// BoxFromRect converts an image.Rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect returns b as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// TopLeft returns the top-left corner of b.
func (b Box) TopLeft() image.Point {
	return image.Pt(b.X, b.Y)
}

// Center returns the center of b.
func (b Box) Center() (float64, float64) {
	return float64(b.X) + 0.5*float64(b.W), float64(b.Y) + 0.5*float64(b.H)
}

// Contains reports whether (x, y) lies inside b, edges included.
func (b Box) Contains(x, y float64) bool {
	return float64(b.X) <= x && x <= float64(b.X+b.W) &&
		float64(b.Y) <= y && y <= float64(b.Y+b.H)
}
