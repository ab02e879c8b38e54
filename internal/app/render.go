package app

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/trafficcv/internal/track"
)

// Overlay styling.
var (
	BoxColor   = color.RGBA{G: 255}
	FPSColor   = color.RGBA{R: 255}
	LabelColor = color.RGBA{R: 255, G: 255, B: 255}
	FPSAnchor  = image.Pt(620, 30)
)

const (
	boxThickness  = 4
	textScale     = 0.75
	textThickness = 2
)

// SpeedLabel formats a latched speed for display.
func SpeedLabel(speed float64) string {
	return fmt.Sprintf("%d km/hr", int(speed))
}

// FPSLabel formats the frame rate counter.
func FPSLabel(fps float64) string {
	return fmt.Sprintf("FPS: %d", int(fps))
}

// Render draws track boxes, the fps counter and displayable speed labels
// onto out.
func Render(out *gocv.Mat, positions []track.Position, fps float64, readings []track.Reading) {
	if out == nil || out.Empty() {
		return
	}

	for _, p := range positions {
		gocv.Rectangle(out, p.Box.Rect(), BoxColor, boxThickness)
	}

	gocv.PutText(out, FPSLabel(fps), FPSAnchor, gocv.FontHersheySimplex, textScale, FPSColor, textThickness)

	for _, r := range readings {
		if !r.Display {
			continue
		}
		gocv.PutText(out, SpeedLabel(r.Speed), r.Anchor, gocv.FontHersheySimplex, textScale, LabelColor, textThickness)
	}
}
