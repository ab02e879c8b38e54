package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	detections []Detection
	script     map[int][]Detection
	err        error
	calls      int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections returned by every Detect call that has
// no scripted result.
func (m *MockDetector) SetDetections(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = dets
}

// Script sets the detections returned by the n-th Detect call (zero-based).
func (m *MockDetector) Script(call int, dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.script == nil {
		m.script = make(map[int][]Detection)
	}
	m.script[call] = dets
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured detections or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if dets, ok := m.script[call]; ok {
		return dets, nil
	}
	return m.detections, nil
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Describe reports that this is a mock.
func (m *MockDetector) Describe() []string {
	return []string{"Model: mock detector"}
}

// CarDetection returns a preset detection of a car (COCO class 2) at box.
func CarDetection(box image.Rectangle) Detection {
	return Detection{
		ClassID: 2,
		Label:   "car",
		Score:   0.9,
		Box:     box,
	}
}
