package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back pre-recorded frames for testing.
// Nil entries are returned as nil frames, which lets loop tests run
// without OpenCV allocations.
type MockSource struct {
	frames  []*gocv.Mat
	info    StreamInfo
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
	reads   int
}

func NewMockSource(frames []*gocv.Mat, loop bool) *MockSource {
	return &MockSource{
		frames: frames,
		loop:   loop,
		info:   StreamInfo{Width: 640, Height: 480, FPS: 18},
	}
}

// NewBlankSource returns a source yielding n nil frames.
func NewBlankSource(n int) *MockSource {
	return NewMockSource(make([]*gocv.Mat, n), false)
}

func (s *MockSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.index = 0
	return nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *MockSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}

	if s.index >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, ErrEndOfStream
		}
		s.index = 0
	}

	src := s.frames[s.index]
	s.index++
	s.reads++

	if src == nil {
		return nil, nil
	}

	// Clone the frame so the original isn't modified
	frame := src.Clone()
	return &frame, nil
}

func (s *MockSource) Info() StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *MockSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetInfo replaces the reported stream info.
func (s *MockSource) SetInfo(info StreamInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
}

// Reads returns how many frames have been handed out.
func (s *MockSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Reset restarts playback from the beginning
func (s *MockSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
}
