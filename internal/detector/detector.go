package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

var (
	// ErrModelNotFound is returned when the model artifact does not exist.
	ErrModelNotFound = errors.New("model file not found")
	// ErrLabelsNotFound is returned when the label artifact does not exist.
	ErrLabelsNotFound = errors.New("labels file not found")
)

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected objects in frame
	// pixel coordinates. Returns an empty slice if nothing is detected.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Describer is implemented by detectors that can report model metadata.
type Describer interface {
	Describe() []string
}

// Kind selects a Detector implementation.
type Kind string

const (
	KindTFLite     Kind = "tflite"
	KindSubprocess Kind = "subprocess"
	KindMock       Kind = "mock"
)

// Config holds configuration options for object detection.
type Config struct {
	// MinScore drops detections scoring below it (0.0-1.0).
	MinScore float64

	// Classes keeps only detections whose label is listed. Empty keeps all.
	Classes []string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinScore: 0.6,
	}
}
