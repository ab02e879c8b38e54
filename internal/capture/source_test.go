package capture

import (
	"errors"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		name     string
		location string
	}{
		{name: "device index", location: "0"},
		{name: "file path", location: "testdata/cars.mp4"},
		{name: "url", location: "rtsp://camera.local/stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSource(tt.location)
			if src == nil {
				t.Fatal("NewSource returned nil")
			}
			if src.IsOpen() {
				t.Error("source should not be open initially")
			}
			if info := src.Info(); info != (StreamInfo{}) {
				t.Errorf("Info() on closed source = %+v, want zero value", info)
			}
		})
	}
}

func TestSource_ReadFrame_NotOpened(t *testing.T) {
	src := NewSource("0")

	_, err := src.ReadFrame()
	if !errors.Is(err, ErrSourceNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrSourceNotOpen", err)
	}
}

func TestSource_Close_NotOpened(t *testing.T) {
	src := NewSource("0")

	if err := src.Close(); err != nil {
		t.Errorf("Close() on not opened source should return nil, got: %v", err)
	}
}

func TestSource_OpenMissingFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	src := NewSource(filepath.Join(t.TempDir(), "missing.mp4"))
	if err := src.Open(); err == nil {
		src.Close()
		t.Error("Open() should fail for a missing file")
	}
	if src.IsOpen() {
		t.Error("source should not be open after a failed Open()")
	}
}

func TestStreamInfo_String(t *testing.T) {
	info := StreamInfo{Width: 1280, Height: 720, FPS: 29.97, Bitrate: 4000, PixelFormat: 842094169}
	want := "1280x720 29fps. 4000bps 842094169 pixel format."
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMockSource_BlankPlayback(t *testing.T) {
	src := NewBlankSource(3)

	if _, err := src.ReadFrame(); !errors.Is(err, ErrSourceNotOpen) {
		t.Errorf("ReadFrame() before Open() error = %v, want ErrSourceNotOpen", err)
	}

	src.Open()
	defer src.Close()

	for i := 0; i < 3; i++ {
		frame, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		if frame != nil {
			t.Errorf("expected nil frame, got %v", frame)
		}
	}

	if _, err := src.ReadFrame(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("ReadFrame() after last frame error = %v, want ErrEndOfStream", err)
	}
	if src.Reads() != 3 {
		t.Errorf("Reads() = %d, want 3", src.Reads())
	}
}

func TestMockSource_Playback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	src := NewMockSource([]*gocv.Mat{&frame1, &frame2}, false)
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	for i := 0; i < 2; i++ {
		f, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if f.Cols() != 640 || f.Rows() != 480 {
			t.Errorf("frame %d is %dx%d, want 640x480", i, f.Cols(), f.Rows())
		}
		f.Close()
	}

	if _, err := src.ReadFrame(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("expected ErrEndOfStream after all frames consumed, got %v", err)
	}
}

func TestMockSource_Loop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	src := NewMockSource([]*gocv.Mat{&frame}, true)
	src.Open()
	defer src.Close()

	for i := 0; i < 5; i++ {
		f, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Close()
	}
}
