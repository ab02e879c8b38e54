// Package capture provides video input from files and devices using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrSourceNotOpen is returned when trying to read from a source that is not open.
	ErrSourceNotOpen = errors.New("video source is not open")

	// ErrEndOfStream is returned when a source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// StreamInfo describes an opened video stream.
type StreamInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	Bitrate     float64 `json:"bitrate"`
	PixelFormat int     `json:"pixel_format"`
	Codec       string  `json:"codec,omitempty"`
	FrameCount  int     `json:"frame_count"`
}

// String formats the info the way it is printed in info mode.
func (s StreamInfo) String() string {
	return fmt.Sprintf("%dx%d %dfps. %.0fbps %d pixel format.", s.Width, s.Height, int(s.FPS), s.Bitrate, s.PixelFormat)
}

// Source defines the interface for frame sources.
type Source interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame, or ErrEndOfStream when exhausted.
	// The caller is responsible for closing the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	Info() StreamInfo
	IsOpen() bool
}

// videoSource reads frames from a file, URL or capture device.
type videoSource struct {
	location string
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
}

// NewSource creates a Source for location. A location that parses as an
// integer is treated as a device index, anything else as a file path or URL.
func NewSource(location string) Source {
	return &videoSource{location: location}
}

// Open opens the underlying capture.
func (s *videoSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if id, convErr := strconv.Atoi(s.location); convErr == nil {
		capture, err = gocv.OpenVideoCapture(id)
	} else {
		capture, err = gocv.VideoCaptureFile(s.location)
	}
	if err != nil {
		return fmt.Errorf("open video source %q: %w", s.location, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video source %q: not opened", s.location)
	}

	s.capture = capture
	s.running = true

	return nil
}

// Close closes the source and releases resources.
func (s *videoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		s.running = false
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	s.running = false

	return err
}

// ReadFrame reads the next frame. A failed or empty read ends the stream.
func (s *videoSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrEndOfStream
	}

	return &mat, nil
}

// Info probes the stream properties. It returns the zero value when closed.
func (s *videoSource) Info() StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return StreamInfo{}
	}

	return StreamInfo{
		Width:       int(s.capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(s.capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:         s.capture.Get(gocv.VideoCaptureFPS),
		Bitrate:     s.capture.Get(gocv.VideoCaptureBitrate),
		PixelFormat: int(s.capture.Get(gocv.VideoCaptureCodecPixelFormat)),
		Codec:       s.capture.CodecString(),
		FrameCount:  int(s.capture.Get(gocv.VideoCaptureFrameCount)),
	}
}

// IsOpen returns true if the source is currently open.
func (s *videoSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}
