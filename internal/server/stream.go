package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// FrameBuffer holds the most recent annotated frame as JPEG. It is the
// frame loop's streaming sink.
type FrameBuffer struct {
	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	updated chan struct{}
	closed  bool
}

// NewFrameBuffer creates an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{updated: make(chan struct{})}
}

// Publish encodes frame as JPEG and makes it the latest frame.
func (b *FrameBuffer) Publish(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		log.Debug().Err(err).Msg("encode stream frame")
		return
	}
	defer buf.Close()

	b.PublishJPEG(append([]byte(nil), buf.GetBytes()...))
}

// PublishJPEG stores an already encoded frame and wakes waiting readers.
func (b *FrameBuffer) PublishJPEG(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.jpeg = data
	b.seq++
	close(b.updated)
	b.updated = make(chan struct{})
}

// Latest returns the latest frame, its sequence number and a channel closed
// on the next publish. The frame is nil before the first publish.
func (b *FrameBuffer) Latest() ([]byte, uint64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jpeg, b.seq, b.updated
}

// Seq returns the number of frames published.
func (b *FrameBuffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close wakes all readers and stops accepting frames.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.updated)
}

func (b *FrameBuffer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// StreamHandler serves the annotated frames as MJPEG.
type StreamHandler struct {
	frames *FrameBuffer
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames *FrameBuffer) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams every new frame to the client until it disconnects or
// the buffer is closed.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	var last uint64
	for {
		frame, seq, updated := h.frames.Latest()
		if seq != last && frame != nil {
			last = seq
			if err := writePart(w, frame); err != nil {
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-updated:
			if h.frames.isClosed() {
				return
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
