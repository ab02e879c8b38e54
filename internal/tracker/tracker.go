// Package tracker wraps short-term visual trackers that follow one object
// between detection cycles.
package tracker

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Kind selects the visual tracking algorithm backing a Handle.
type Kind string

const (
	// KindMIL is the Multiple Instance Learning tracker from OpenCV core.
	KindMIL Kind = "mil"
	// KindKCF is the Kernelized Correlation Filter tracker from opencv_contrib.
	KindKCF Kind = "kcf"
	// KindCSRT is the discriminative correlation filter tracker from opencv_contrib.
	KindCSRT Kind = "csrt"
)

// ErrInitFailed is returned when a tracker cannot be seeded with the initial box.
var ErrInitFailed = errors.New("tracker initialization failed")

// Handle follows a single object across frames.
type Handle interface {
	// Update re-estimates the tracked region on frame and returns a quality
	// score for the estimate. Higher is better.
	Update(frame *gocv.Mat) (float64, error)

	// Position returns the most recent bounding box of the tracked object.
	Position() image.Rectangle

	// Close releases any resources held by the handle.
	Close() error
}

// Factory constructs handles seeded with an initial frame and box.
type Factory interface {
	New(frame *gocv.Mat, box image.Rectangle) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(frame *gocv.Mat, box image.Rectangle) (Handle, error)

// New calls f(frame, box).
func (f FactoryFunc) New(frame *gocv.Mat, box image.Rectangle) (Handle, error) {
	return f(frame, box)
}

// Config holds configuration options for visual trackers.
type Config struct {
	// Kind is the tracking algorithm.
	Kind Kind

	// QualityScale multiplies the normalized cross-correlation between the
	// seeded template and the current region (range -1..1) to produce the
	// quality score reported by Update.
	QualityScale float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Kind:         KindMIL,
		QualityScale: 20,
	}
}

// ParseKind validates a tracker kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMIL, KindKCF, KindCSRT:
		return k, nil
	default:
		return "", fmt.Errorf("unknown tracker kind %q", s)
	}
}
