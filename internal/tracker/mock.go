package tracker

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultMockQuality is the quality a MockHandle reports once its script runs out.
const DefaultMockQuality = 10.0

// MockHandle is a test implementation of the Handle interface.
// It replays scripted quality scores and positions, one per Update call.
// When a script is exhausted the last value is repeated.
type MockHandle struct {
	Qualities []float64
	Positions []image.Rectangle
	Err       error

	box     image.Rectangle
	quality float64
	updates int
	closed  bool
}

// NewMockHandle creates a MockHandle seeded at box that reports
// DefaultMockQuality and never moves.
func NewMockHandle(box image.Rectangle) *MockHandle {
	return &MockHandle{box: box, quality: DefaultMockQuality}
}

// Update returns the next scripted quality and advances the position.
func (m *MockHandle) Update(frame *gocv.Mat) (float64, error) {
	if m.Err != nil {
		return 0, m.Err
	}

	if m.updates < len(m.Qualities) {
		m.quality = m.Qualities[m.updates]
	}
	if m.updates < len(m.Positions) {
		m.box = m.Positions[m.updates]
	}
	m.updates++

	return m.quality, nil
}

// Position returns the current scripted box.
func (m *MockHandle) Position() image.Rectangle {
	return m.box
}

// Close marks the handle closed.
func (m *MockHandle) Close() error {
	m.closed = true
	return nil
}

// Updates returns how many times Update has been called.
func (m *MockHandle) Updates() int {
	return m.updates
}

// Closed reports whether Close has been called.
func (m *MockHandle) Closed() bool {
	return m.closed
}

// MockFactory is a test implementation of the Factory interface.
// Script, when set, builds each handle; otherwise NewMockHandle is used.
type MockFactory struct {
	Script func(box image.Rectangle) *MockHandle
	Err    error

	mu      sync.Mutex
	handles []*MockHandle
}

// NewMockFactory creates a new MockFactory instance.
func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

// New returns a scripted handle or the configured error.
func (f *MockFactory) New(frame *gocv.Mat, box image.Rectangle) (Handle, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	var h *MockHandle
	if f.Script != nil {
		h = f.Script(box)
	}
	if h == nil {
		h = NewMockHandle(box)
	}
	if h.box.Empty() {
		h.box = box
	}
	if h.quality == 0 {
		h.quality = DefaultMockQuality
	}

	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()

	return h, nil
}

// Handles returns every handle created so far, in creation order.
func (f *MockFactory) Handles() []*MockHandle {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*MockHandle, len(f.handles))
	copy(out, f.handles)
	return out
}
