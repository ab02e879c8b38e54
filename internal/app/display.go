package app

import (
	"gocv.io/x/gocv"
)

// WindowTitle is the title of the preview window.
const WindowTitle = "TrafficCV speed detector. Press q to quit."

// Display shows annotated frames.
type Display interface {
	// Show presents frame and reports whether the user asked to quit.
	Show(frame *gocv.Mat) bool
	Close() error
}

// FrameSink receives every annotated frame, e.g. for streaming. Publish must
// not retain frame after returning.
type FrameSink interface {
	Publish(frame *gocv.Mat)
}

// windowDisplay renders into an OpenCV HighGUI window.
type windowDisplay struct {
	window *gocv.Window
}

// NewWindowDisplay opens the preview window.
func NewWindowDisplay() Display {
	return &windowDisplay{window: gocv.NewWindow(WindowTitle)}
}

func (d *windowDisplay) Show(frame *gocv.Mat) bool {
	if frame == nil || frame.Empty() {
		return false
	}
	d.window.IMShow(*frame)
	return d.window.WaitKey(1)&0xFF == 'q'
}

func (d *windowDisplay) Close() error {
	return d.window.Close()
}

// nullDisplay discards frames. Used with nowindow.
type nullDisplay struct{}

func (nullDisplay) Show(*gocv.Mat) bool { return false }
func (nullDisplay) Close() error        { return nil }
