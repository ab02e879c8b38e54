// Package synth renders synthetic road clips for exercising the frame loop
// with real OpenCV trackers.
package synth

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	road       = gocv.NewScalar(90, 90, 90, 0)
	body       = color.RGBA{230, 230, 230, 0}
	windshield = color.RGBA{30, 30, 60, 0}
	laneMark   = color.RGBA{255, 255, 255, 0}
)

// Car is a box moving a fixed number of pixels per frame.
type Car struct {
	Start  image.Rectangle
	DX, DY int
}

// At returns the car's box in frame i.
func (c Car) At(i int) image.Rectangle {
	return c.Start.Add(image.Pt(c.DX*i, c.DY*i))
}

// Frame draws cars on an empty road of size w x h.
func Frame(w, h int, boxes ...image.Rectangle) gocv.Mat {
	frame := gocv.NewMatWithSizeFromScalar(road, h, w, gocv.MatTypeCV8UC3)

	for y := 0; y < h; y += 40 {
		gocv.Line(&frame, image.Pt(w/2, y), image.Pt(w/2, y+20), laneMark, 2)
	}
	for _, b := range boxes {
		gocv.Rectangle(&frame, b, body, -1)
		ws := image.Rect(b.Min.X+b.Dx()/6, b.Min.Y+b.Dy()/5, b.Max.X-b.Dx()/6, b.Min.Y+b.Dy()/2)
		gocv.Rectangle(&frame, ws, windshield, -1)
	}
	return frame
}

// Clip renders n frames of cars driving across a w x h road. The caller
// owns the returned Mats; release them with Close.
func Clip(n, w, h int, cars ...Car) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		boxes := make([]image.Rectangle, len(cars))
		for j, c := range cars {
			boxes[j] = c.At(i)
		}
		m := Frame(w, h, boxes...)
		frames[i] = &m
	}
	return frames
}

// Close releases every frame.
func Close(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
